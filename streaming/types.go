// Package streaming implements the market-data WebSocket client: the
// authenticated duplex connection, subscription management, and message
// routing into the tick cache. See the cache subpackage for the bounded
// per-symbol storage tier.
package streaming

import "time"

// Channel identifies the kind of market-data feed a subscription carries.
type Channel string

const (
	ChannelTick      Channel = "Tick"
	ChannelOrderBook Channel = "OrderBook"
	ChannelTrade     Channel = "Trade"
)

// AllSymbols is the special symbol meaning "every instrument on this
// channel" when passed to SubscribeAll.
const AllSymbols = "ALL"

// Subscription identifies one (channel, symbol) pair. Identity is the pair
// itself: two Subscriptions with the same Channel and Symbol are the same
// subscription.
type Subscription struct {
	Channel Channel
	Symbol  string
}

func (s Subscription) key() string { return string(s.Channel) + ":" + s.Symbol }

// TickDatum is a single price-update event for a symbol.
type TickDatum struct {
	Symbol    string
	LastPrice float64
	BidPrice  *float64
	AskPrice  *float64
	BidSize   *float64
	AskSize   *float64
	Volume    *float64
	Timestamp time.Time
}

// PriceLevel is one bid or ask rung of an order book.
type PriceLevel struct {
	Price      float64
	Quantity   float64
	OrderCount int
}

// OrderBookDatum is the top-N bid/ask levels for a symbol at an instant.
type OrderBookDatum struct {
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Spread    float64
	MidPrice  float64
	Timestamp time.Time
}

// TradeDatum is a single executed trade print.
type TradeDatum struct {
	Symbol    string
	Price     float64
	Quantity  float64
	Side      string
	Timestamp time.Time
}
