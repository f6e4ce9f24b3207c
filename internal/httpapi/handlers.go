package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/algolab-go/broker-gateway/algolab"
	"github.com/algolab-go/broker-gateway/streaming"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	health := s.health.Check()
	status := http.StatusOK
	if health.Status == algolab.StatusDown {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]any{
		"authenticated": s.auth.IsAuthenticated(),
	}

	if s.client != nil {
		breaker := s.client.Envelope().Breaker
		counts := breaker.Counts()
		metrics["circuit_state"] = string(breaker.State())
		metrics["circuit_requests"] = counts.Requests
		metrics["circuit_total_successes"] = counts.TotalSuccesses
		metrics["circuit_total_failures"] = counts.TotalFailures
		metrics["circuit_consecutive_failures"] = counts.ConsecutiveFailures
	}

	if s.stream != nil {
		metrics["active_subscriptions"] = s.stream.Subscriptions().Active()
		if tickMetrics, err := s.stream.Cache().Metrics(r.Context()); err == nil {
			metrics["tick_cache_total"] = tickMetrics.Total
			metrics["tick_cache_ticks_per_second"] = tickMetrics.TicksPerSecond
			metrics["tick_cache_top_symbols"] = tickMetrics.TopSymbols
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.auth.LoginUser(r.Context(), req.Username, req.Password); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"state": s.auth.State().String()})
}

type otpRequest struct {
	SMSCode string `json:"smsCode"`
}

func (s *Server) handleVerifyOtp(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.auth.VerifyOtp(r.Context(), req.SMSCode); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": s.auth.State().String()})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Refresh(r.Context()); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": s.auth.State().String()})
}

type sendOrderRequest struct {
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"`
	PriceType  string  `json:"priceType"`
	Price      float64 `json:"price"`
	Lot        int     `json:"lot"`
	SMS        bool    `json:"sms"`
	Email      bool    `json:"email"`
	SubAccount string  `json:"subAccount"`
}

func (s *Server) handleSendOrder(w http.ResponseWriter, r *http.Request) {
	var req sendOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	direction, err := algolab.NormalizeDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.orders.Send(r.Context(), algolab.OrderRequest{
		Symbol:     req.Symbol,
		Direction:  direction,
		PriceType:  algolab.PriceType(req.PriceType),
		Price:      req.Price,
		Lot:        req.Lot,
		SMS:        req.SMS,
		Email:      req.Email,
		SubAccount: req.SubAccount,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

type modifyOrderRequest struct {
	Price float64 `json:"price"`
	Lot   int     `json:"lot"`
}

func (s *Server) handleModifyOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	var req modifyOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.orders.Modify(r.Context(), algolab.ModifyOrderRequest{
		OrderID: orderID,
		Price:   req.Price,
		Lot:     req.Lot,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if err := s.orders.Cancel(r.Context(), orderID); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, fromCache, err := s.marketData.Positions(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions, "fromCache": fromCache})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, fromCache, err := s.marketData.TodaysTransactions(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions, "fromCache": fromCache})
}

func (s *Server) handleEquity(w http.ResponseWriter, r *http.Request) {
	equity, fromCache, err := s.marketData.Equity(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"equity": equity, "fromCache": fromCache})
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	period := r.URL.Query().Get("period")
	if symbol == "" || period == "" {
		writeError(w, http.StatusBadRequest, errMissingQueryParams)
		return
	}
	candles, fromCache, err := s.marketData.CandleData(r.Context(), symbol, period)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"candles": candles, "fromCache": fromCache})
}

type subscriptionRequest struct {
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"` // on subscribe, empty means "all symbols" on this channel; on unsubscribe, empty matches nothing
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		writeError(w, http.StatusServiceUnavailable, errStreamingDisabled)
		return
	}
	var req subscriptionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	channel := streaming.Channel(req.Channel)

	var err error
	if req.Symbol == "" {
		err = s.stream.SubscribeAll(channel)
	} else {
		err = s.stream.Subscribe(channel, req.Symbol)
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		writeError(w, http.StatusServiceUnavailable, errStreamingDisabled)
		return
	}
	var req subscriptionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.stream.Unsubscribe(streaming.Channel(req.Channel), req.Symbol); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActiveSubscriptions(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		writeJSON(w, http.StatusOK, map[string]any{"subscriptions": []streaming.Subscription{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": s.stream.Subscriptions().Active()})
}
