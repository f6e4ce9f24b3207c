package algolab

import (
	"context"
	"encoding/json"

	"github.com/algolab-go/broker-gateway/apierr"
	"github.com/algolab-go/broker-gateway/crypto"
	"github.com/algolab-go/broker-gateway/resilience"
)

// Position is a single open/net position row from InstantPosition.
type Position struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AveragePrice  float64 `json:"averagePrice"`
	UnrealizedPnl float64 `json:"unrealizedPnl"`
}

// Transaction is a single fill from TodaysTransaction.
type Transaction struct {
	Symbol    string  `json:"symbol"`
	Direction string  `json:"direction"`
	Price     float64 `json:"price"`
	Lot       int     `json:"lot"`
	Time      string  `json:"time"`
}

// Equity is the account equity snapshot from GetEquityInfo.
type Equity struct {
	Cash        float64 `json:"cash"`
	BuyingPower float64 `json:"buyingPower"`
}

// Candle is a single OHLCV bar from GetCandleData.
type Candle struct {
	Time   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type positionsResponse struct {
	Success bool       `json:"success"`
	Content []Position `json:"content"`
	Message string     `json:"message"`
}

type transactionsResponse struct {
	Success bool          `json:"success"`
	Content []Transaction `json:"content"`
	Message string        `json:"message"`
}

type equityResponse struct {
	Success bool   `json:"success"`
	Content Equity `json:"content"`
	Message string `json:"message"`
}

type candleResponse struct {
	Success bool     `json:"success"`
	Content []Candle `json:"content"`
	Message string   `json:"message"`
}

// MarketDataService covers the read-only reference/quote endpoints: open
// positions, today's fills, account equity, and historical candles.
// Grounded on adapter's historical/position-query methods, generalized to
// AlgoLab's InstantPosition/TodaysTransaction/GetEquityInfo/GetCandleData
// endpoints. Every call here runs under ClassRead, so the envelope serves
// last-good cached data (marked FromCache) on circuit-open or exhaustion
// instead of failing outright.
type MarketDataService struct {
	client *Client

	// devMockPositions enables an optional dev-only mock positions payload;
	// nil in production wiring.
	devMockPositions func() ([]Position, bool)
}

func NewMarketDataService(client *Client) *MarketDataService {
	return &MarketDataService{client: client}
}

// SetDevMockPositions installs a dev-only mock positions fallback. Never
// wired in the production cmd/gateway assembly.
func (m *MarketDataService) SetDevMockPositions(fn func() ([]Position, bool)) {
	m.devMockPositions = fn
}

// Positions fetches open positions via InstantPosition.
func (m *MarketDataService) Positions(ctx context.Context) ([]Position, bool, error) {
	body, fromCache, err := m.client.doAuthenticated(ctx, resilience.ClassRead, "/api/InstantPosition", crypto.OrderedPayload{})
	if err != nil {
		if m.devMockPositions != nil {
			if mock, ok := m.devMockPositions(); ok {
				return mock, true, nil
			}
		}
		return nil, false, err
	}

	var resp positionsResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		return nil, false, &apierr.ApiError{Status: 0, Body: "unexpected InstantPosition response shape"}
	}
	if !resp.Success {
		return nil, false, &apierr.ApiError{Status: 0, Body: resp.Message}
	}
	return resp.Content, fromCache, nil
}

// TodaysTransactions fetches today's fills.
func (m *MarketDataService) TodaysTransactions(ctx context.Context) ([]Transaction, bool, error) {
	body, fromCache, err := m.client.doAuthenticated(ctx, resilience.ClassRead, "/api/TodaysTransaction", crypto.OrderedPayload{})
	if err != nil {
		return nil, false, err
	}

	var resp transactionsResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		return nil, false, &apierr.ApiError{Status: 0, Body: "unexpected TodaysTransaction response shape"}
	}
	if !resp.Success {
		return nil, false, &apierr.ApiError{Status: 0, Body: resp.Message}
	}
	return resp.Content, fromCache, nil
}

// Equity fetches the account equity snapshot.
func (m *MarketDataService) Equity(ctx context.Context) (*Equity, bool, error) {
	body, fromCache, err := m.client.doAuthenticated(ctx, resilience.ClassRead, "/api/GetEquityInfo", crypto.OrderedPayload{})
	if err != nil {
		return nil, false, err
	}

	var resp equityResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		return nil, false, &apierr.ApiError{Status: 0, Body: "unexpected GetEquityInfo response shape"}
	}
	if !resp.Success {
		return nil, false, &apierr.ApiError{Status: 0, Body: resp.Message}
	}
	return &resp.Content, fromCache, nil
}

// CandleData fetches historical OHLCV bars for symbol/period.
func (m *MarketDataService) CandleData(ctx context.Context, symbol, period string) ([]Candle, bool, error) {
	p := crypto.OrderedPayload{}
	p.Set("symbol", symbol)
	p.Set("period", period)

	body, fromCache, err := m.client.doAuthenticated(ctx, resilience.ClassRead, "/api/GetCandleData", p)
	if err != nil {
		return nil, false, err
	}

	var resp candleResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		return nil, false, &apierr.ApiError{Status: 0, Body: "unexpected GetCandleData response shape"}
	}
	if !resp.Success {
		return nil, false, &apierr.ApiError{Status: 0, Body: resp.Message}
	}
	return resp.Content, fromCache, nil
}
