package streaming

import (
	"encoding/json"
	"fmt"
	"time"
)

// frameType distinguishes the outbound control frames from inbound
// market-data frames. AlgoLab exchanges plain JSON over the duplex
// connection, unlike Saxo's binary wire format
// (message-ID/reference-ID/payload-format/payload-size header), so this
// package only ever marshals/unmarshals with encoding/json.
type frameType string

const (
	frameSubscribe   frameType = "subscribe"
	frameUnsubscribe frameType = "unsubscribe"
	framePing        frameType = "ping"
	framePong        frameType = "pong"
	frameTick        frameType = "Tick"
	frameOrderBook   frameType = "OrderBook"
	frameTrade       frameType = "Trade"
)

// controlFrame is the outbound shape for subscribe/unsubscribe/ping.
type controlFrame struct {
	Type    frameType `json:"type"`
	Channel Channel   `json:"channel,omitempty"`
	Symbol  string    `json:"symbol,omitempty"`
}

func encodeControlFrame(typ frameType, sub Subscription) ([]byte, error) {
	return json.Marshal(controlFrame{Type: typ, Channel: sub.Channel, Symbol: sub.Symbol})
}

func encodePingFrame() ([]byte, error) {
	return json.Marshal(controlFrame{Type: framePing})
}

// inboundEnvelope is the common shape every inbound frame carries: a type
// discriminator plus a type-specific payload.
type inboundEnvelope struct {
	Type frameType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

type tickWire struct {
	Symbol    string   `json:"symbol"`
	LastPrice float64  `json:"lastPrice"`
	BidPrice  *float64 `json:"bidPrice,omitempty"`
	AskPrice  *float64 `json:"askPrice,omitempty"`
	BidSize   *float64 `json:"bidSize,omitempty"`
	AskSize   *float64 `json:"askSize,omitempty"`
	Volume    *float64 `json:"volume,omitempty"`
	Timestamp int64    `json:"timestamp"` // epoch millis
}

type priceLevelWire struct {
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	OrderCount int     `json:"orderCount"`
}

type orderBookWire struct {
	Symbol    string           `json:"symbol"`
	Bids      []priceLevelWire `json:"bids"`
	Asks      []priceLevelWire `json:"asks"`
	Timestamp int64            `json:"timestamp"`
}

type tradeWire struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	Side      string  `json:"side"`
	Timestamp int64   `json:"timestamp"`
}

// InboundMessage is a decoded, typed market-data frame ready for caching
// and dispatch to subscribers.
type InboundMessage struct {
	Channel   Channel
	Symbol    string
	Tick      *TickDatum
	OrderBook *OrderBookDatum
	Trade     *TradeDatum
}

// decodeInbound parses one inbound WebSocket text frame. Control frames
// (ping, pong) return (nil, false, nil) — not an error, just nothing to cache.
func decodeInbound(raw []byte) (*InboundMessage, bool, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, fmt.Errorf("streaming: decode inbound frame: %w", err)
	}

	switch env.Type {
	case framePong, framePing:
		return nil, false, nil
	case frameTick:
		var w tickWire
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, false, fmt.Errorf("streaming: decode tick payload: %w", err)
		}
		return &InboundMessage{
			Channel: ChannelTick,
			Symbol:  w.Symbol,
			Tick: &TickDatum{
				Symbol:    w.Symbol,
				LastPrice: w.LastPrice,
				BidPrice:  w.BidPrice,
				AskPrice:  w.AskPrice,
				BidSize:   w.BidSize,
				AskSize:   w.AskSize,
				Volume:    w.Volume,
				Timestamp: millisToTime(w.Timestamp),
			},
		}, true, nil
	case frameOrderBook:
		var w orderBookWire
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, false, fmt.Errorf("streaming: decode orderbook payload: %w", err)
		}
		bids := make([]PriceLevel, len(w.Bids))
		for i, b := range w.Bids {
			bids[i] = PriceLevel{Price: b.Price, Quantity: b.Quantity, OrderCount: b.OrderCount}
		}
		asks := make([]PriceLevel, len(w.Asks))
		for i, a := range w.Asks {
			asks[i] = PriceLevel{Price: a.Price, Quantity: a.Quantity, OrderCount: a.OrderCount}
		}
		datum := &OrderBookDatum{
			Symbol:    w.Symbol,
			Bids:      bids,
			Asks:      asks,
			Timestamp: millisToTime(w.Timestamp),
		}
		if len(bids) > 0 && len(asks) > 0 {
			datum.Spread = asks[0].Price - bids[0].Price
			datum.MidPrice = (asks[0].Price + bids[0].Price) / 2
		}
		return &InboundMessage{Channel: ChannelOrderBook, Symbol: w.Symbol, OrderBook: datum}, true, nil
	case frameTrade:
		var w tradeWire
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, false, fmt.Errorf("streaming: decode trade payload: %w", err)
		}
		return &InboundMessage{
			Channel: ChannelTrade,
			Symbol:  w.Symbol,
			Trade: &TradeDatum{
				Symbol:    w.Symbol,
				Price:     w.Price,
				Quantity:  w.Quantity,
				Side:      w.Side,
				Timestamp: millisToTime(w.Timestamp),
			},
		}, true, nil
	default:
		return nil, false, fmt.Errorf("streaming: unrecognized inbound frame type %q", env.Type)
	}
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}

// cacheKeyFor builds the opaque storage key a channel/symbol pair maps to.
func cacheKeyFor(channel Channel, symbol string) string {
	switch channel {
	case ChannelTick:
		return "tick:" + symbol
	case ChannelOrderBook:
		return "orderbook:" + symbol
	case ChannelTrade:
		return "trade:" + symbol
	default:
		return string(channel) + ":" + symbol
	}
}

// payload re-encodes the typed datum back to JSON for cache storage, so
// Recent() callers can decode the same shape they'd get live.
func (m *InboundMessage) payload() ([]byte, error) {
	switch m.Channel {
	case ChannelTick:
		return json.Marshal(m.Tick)
	case ChannelOrderBook:
		return json.Marshal(m.OrderBook)
	case ChannelTrade:
		return json.Marshal(m.Trade)
	default:
		return nil, fmt.Errorf("streaming: cannot encode unknown channel %q", m.Channel)
	}
}
