package algolab

// Status is the composed UP/DEGRADED/DOWN health verdict, derived from
// auth state x websocket connectivity x cache reachability. No teacher
// equivalent; new code.
type Status string

const (
	StatusUp       Status = "UP"
	StatusDegraded Status = "DEGRADED"
	StatusDown     Status = "DOWN"
)

// Health is the aggregate health snapshot exposed on /healthz.
type Health struct {
	Status         Status `json:"status"`
	Authenticated  bool   `json:"authenticated"`
	WebsocketUp    bool   `json:"websocket_up"`
	CacheReachable bool   `json:"cache_reachable"`
	CircuitState   string `json:"circuit_state"`
}

// WebsocketStatusFunc and CacheStatusFunc let HealthService query the
// streaming client and cache without importing the streaming package
// directly (avoiding a cycle: streaming already imports algolab).
type WebsocketStatusFunc func() bool
type CacheStatusFunc func() bool
type CircuitStateFunc func() string

// HealthService composes the three signals into one verdict.
type HealthService struct {
	auth            *AuthService
	websocketStatus WebsocketStatusFunc
	cacheStatus     CacheStatusFunc
	circuitState    CircuitStateFunc
}

// NewHealthService wires the composed health check. websocketStatus and
// cacheStatus may be nil if those subsystems are disabled by config.
func NewHealthService(auth *AuthService, websocketStatus WebsocketStatusFunc, cacheStatus CacheStatusFunc, circuitState CircuitStateFunc) *HealthService {
	return &HealthService{
		auth:            auth,
		websocketStatus: websocketStatus,
		cacheStatus:     cacheStatus,
		circuitState:    circuitState,
	}
}

// Check computes the current aggregate health.
//
// UP: authenticated, websocket connected (if enabled), cache reachable (if
// enabled). DEGRADED: authenticated but one optional subsystem is down.
// DOWN: not authenticated.
func (h *HealthService) Check() Health {
	authenticated := h.auth.IsAuthenticated()

	wsUp := true
	if h.websocketStatus != nil {
		wsUp = h.websocketStatus()
	}

	cacheUp := true
	if h.cacheStatus != nil {
		cacheUp = h.cacheStatus()
	}

	status := StatusUp
	switch {
	case !authenticated:
		status = StatusDown
	case !wsUp || !cacheUp:
		status = StatusDegraded
	}

	circuit := "closed"
	if h.circuitState != nil {
		circuit = h.circuitState()
	}

	return Health{
		Status:         status,
		Authenticated:  authenticated,
		WebsocketUp:    wsUp,
		CacheReachable: cacheUp,
		CircuitState:   circuit,
	}
}
