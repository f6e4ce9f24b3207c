package algolab

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/algolab-go/broker-gateway/apierr"
	"github.com/algolab-go/broker-gateway/crypto"
	"github.com/algolab-go/broker-gateway/resilience"
)

// Direction is the normalized BUY/SELL token every order-side input is
// reduced to before it reaches the wire.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// NormalizeDirection accepts "0"/"BUY"/"buy"/" BUY " (and the SELL
// equivalents, including numeric "1") and returns the canonical token.
// Any other input is a client-side ValidationError.
func NormalizeDirection(raw string) (Direction, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	switch trimmed {
	case "0", "BUY":
		return Buy, nil
	case "1", "SELL":
		return Sell, nil
	default:
		return "", &apierr.ValidationError{Field: "direction", Message: "unrecognized order direction: " + raw}
	}
}

// PriceType is AlgoLab's order-type token, distinct from the generic
// Market/Limit vocabulary Saxo's order types use.
type PriceType string

const (
	PriceTypeLimit  PriceType = "limit"
	PriceTypePiyasa PriceType = "piyasa" // market order
)

// OrderRequest is the canonical order-send shape. Field order matches the
// fixed signing key order exactly: symbol, direction, pricetype, price,
// lot, sms, email, subAccount. This is the single builder for the payload,
// using one consistent subAccount key instead of two divergent
// payload-casing copies.
type OrderRequest struct {
	Symbol     string
	Direction  Direction
	PriceType  PriceType
	Price      float64
	Lot        int
	SMS        bool
	Email      bool
	SubAccount string
}

// OrderResponse mirrors the broker's order acknowledgement. ClientOrderID is
// minted locally before the call goes out, so it's available for log
// correlation and caller-side idempotency tracking even if the call never
// reaches the broker (circuit open, validation failure).
type OrderResponse struct {
	ClientOrderID string
	OrderID       string
	Message       string
}

type orderAckResponse struct {
	Success bool `json:"success"`
	Content struct {
		OrderID string `json:"orderId"` // broker's transaction id (no stable shared field name, kept generic)
	} `json:"content"`
	Message string `json:"message"`
}

// OrderService builds and invokes the REST calls for new/modify/cancel.
// Grounded on adapter/saxo.go's PlaceOrder/ModifyOrder/DeleteOrder/
// GetOrderStatus/GetOpenOrders: same method shapes and error-handling
// idiom, retargeted at AlgoLab's SendOrder/ModifyOrder/DeleteOrder
// endpoints and fixed payload key order.
type OrderService struct {
	client *Client
}

func NewOrderService(client *Client) *OrderService {
	return &OrderService{client: client}
}

// buildSendOrderPayload constructs the insertion-ordered payload for
// SendOrder, preserving the exact key order the Checker signature depends
// on.
func buildSendOrderPayload(req OrderRequest) crypto.OrderedPayload {
	p := crypto.OrderedPayload{}
	p.Set("symbol", req.Symbol)
	p.Set("direction", string(req.Direction))
	p.Set("pricetype", string(req.PriceType))
	p.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
	p.Set("lot", strconv.Itoa(req.Lot))
	p.Set("sms", req.SMS)
	p.Set("email", req.Email)
	p.Set("subAccount", req.SubAccount)
	return p
}

// Send places a new order. Order-placement calls never retry internally
// (at-most-once discipline): the resilience envelope skips retry for
// ClassOrder and, on circuit-open or exhaustion, returns
// apierr.OrderNotPlaced rather than inventing a success. On failure the
// returned OrderResponse carries only the locally minted ClientOrderID.
func (s *OrderService) Send(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	clientOrderID := uuid.New().String()

	body, _, err := s.client.doAuthenticated(ctx, resilience.ClassOrder, "/api/SendOrder", buildSendOrderPayload(req))
	if err != nil {
		return &OrderResponse{ClientOrderID: clientOrderID}, err
	}

	var resp orderAckResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		return &OrderResponse{ClientOrderID: clientOrderID}, &apierr.OrderNotPlaced{Cause: jsonErr}
	}
	if !resp.Success {
		return &OrderResponse{ClientOrderID: clientOrderID}, &apierr.OrderNotPlaced{Cause: &apierr.ApiError{Status: 0, Body: resp.Message}}
	}
	return &OrderResponse{ClientOrderID: clientOrderID, OrderID: resp.Content.OrderID, Message: resp.Message}, nil
}

// ModifyOrderRequest carries the fields needed to amend an existing order.
type ModifyOrderRequest struct {
	OrderID string
	Price   float64
	Lot     int
}

// Modify amends an existing order's price/size. Never retried (ClassOrder).
func (s *OrderService) Modify(ctx context.Context, req ModifyOrderRequest) (*OrderResponse, error) {
	p := crypto.OrderedPayload{}
	p.Set("id", req.OrderID)
	p.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
	p.Set("lot", strconv.Itoa(req.Lot))

	body, _, err := s.client.doAuthenticated(ctx, resilience.ClassOrder, "/api/ModifyOrder", p)
	if err != nil {
		return nil, err
	}

	var resp orderAckResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		return nil, &apierr.ApiError{Status: 0, Body: "unexpected ModifyOrder response shape"}
	}
	if !resp.Success {
		return nil, &apierr.ApiError{Status: 0, Body: resp.Message}
	}
	return &OrderResponse{OrderID: req.OrderID, Message: resp.Message}, nil
}

// Cancel deletes a pending order by id. Never retried (ClassOrder).
func (s *OrderService) Cancel(ctx context.Context, orderID string) error {
	p := crypto.OrderedPayload{}
	p.Set("id", orderID)

	body, _, err := s.client.doAuthenticated(ctx, resilience.ClassOrder, "/api/DeleteOrder", p)
	if err != nil {
		return err
	}

	var resp genericAckResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		return &apierr.ApiError{Status: 0, Body: "unexpected DeleteOrder response shape"}
	}
	if !resp.Success {
		return &apierr.ApiError{Status: 0, Body: resp.Message}
	}
	return nil
}
