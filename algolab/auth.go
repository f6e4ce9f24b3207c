package algolab

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/algolab-go/broker-gateway/apierr"
	"github.com/algolab-go/broker-gateway/crypto"
	"github.com/algolab-go/broker-gateway/resilience"
	"github.com/algolab-go/broker-gateway/sessionstore"
)

// AuthState is the two-step login state machine. The only two ways back to
// Authenticated are a full two-step login or restore+validate; there is no
// direct Authenticated -> AwaitingOtp transition.
type AuthState int

const (
	Unauthenticated AuthState = iota
	AwaitingOtp
	Authenticated
)

func (s AuthState) String() string {
	switch s {
	case AwaitingOtp:
		return "AwaitingOtp"
	case Authenticated:
		return "Authenticated"
	default:
		return "Unauthenticated"
	}
}

// AuthEvent is published on AuthService.Events() whenever the state machine
// reaches Authenticated, replacing the Spring-style event publishing the
// teacher's auth flow relies on. The WebSocket client subscribes to
// auto-connect.
type AuthEvent struct {
	State AuthState
	Owner string
}

type loginResponse struct {
	Success bool `json:"success"`
	Content struct {
		Token string `json:"token"`
	} `json:"content"`
	Message string `json:"message"`
}

type otpResponse struct {
	Success bool `json:"success"`
	Content struct {
		Hash string `json:"hash"`
	} `json:"content"`
	Message string `json:"message"`
}

type genericAckResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AuthService owns the brokerage login lifecycle. Grounded on
// adapter/oauth.go's SaxoAuthClient: the RWMutex-guarded credential field
// and read accessor idiom, and the StartAuthenticationKeeper-style
// long-lived refresh loop are kept; the OAuth2 code-grant flow is replaced
// with the credentials -> token -> OTP -> hash flow AlgoLab requires.
type AuthService struct {
	mu    sync.RWMutex
	state AuthState
	token string
	hash  string
	owner string // logical brokerage login identity, used as the Session Store key

	client     *Client
	encryptor  *crypto.Encryptor
	store      sessionstore.Store
	logger     zerolog.Logger
	events     chan AuthEvent
	refreshDur time.Duration

	stopRefresh chan struct{}
	refreshOnce sync.Once
}

// NewAuthService wires an AuthService against client (for installing the
// resulting (token, hash) pair and issuing login/OTP/refresh/liveness
// calls) and store (for session persistence).
func NewAuthService(client *Client, encryptor *crypto.Encryptor, store sessionstore.Store, owner string, refreshDur time.Duration, logger zerolog.Logger) *AuthService {
	return &AuthService{
		state:       Unauthenticated,
		owner:       owner,
		client:      client,
		encryptor:   encryptor,
		store:       store,
		logger:      logger.With().Str("component", "algolab.auth").Logger(),
		events:      make(chan AuthEvent, 1),
		refreshDur:  refreshDur,
		stopRefresh: make(chan struct{}),
	}
}

// Events exposes the channel AuthEvent is published on when the state
// machine reaches Authenticated. Subscribers must attach before Login*
// is called to avoid missing the first event.
func (a *AuthService) Events() <-chan AuthEvent { return a.events }

// State returns the current state. Safe for concurrent use.
func (a *AuthService) State() AuthState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// IsAuthenticated reports the single boolean every caller outside this
// package is allowed to check.
func (a *AuthService) IsAuthenticated() bool {
	return a.State() == Authenticated
}

// LoginUser encrypts username and password, posts to the login endpoint
// without session headers, and stores the returned opaque token in memory.
// Triggers a broker-side SMS. Never retried internally; the resilience
// envelope already skips retry for ClassAuth.
func (a *AuthService) LoginUser(ctx context.Context, username, password string) error {
	encUser, err := a.encryptor.Encrypt(username)
	if err != nil {
		return &apierr.AuthError{Kind: apierr.InvalidCredentials, Message: "failed to encrypt username"}
	}
	encPass, err := a.encryptor.Encrypt(password)
	if err != nil {
		return &apierr.AuthError{Kind: apierr.InvalidCredentials, Message: "failed to encrypt password"}
	}

	payload := crypto.OrderedPayload{}
	payload.Set("username", encUser)
	payload.Set("password", encPass)

	body, _, err := a.client.doUnauthenticated(ctx, "/api/LoginUser", payload)
	if err != nil {
		return err
	}

	var resp loginResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		return &apierr.AuthError{Kind: apierr.BrokerRejected, Message: "unexpected LoginUser response shape"}
	}
	if !resp.Success || resp.Content.Token == "" {
		return &apierr.AuthError{Kind: apierr.InvalidCredentials, Message: resp.Message}
	}

	a.mu.Lock()
	a.token = resp.Content.Token
	a.state = AwaitingOtp
	a.mu.Unlock()

	return nil
}

// VerifyOtp requires AwaitingOtp, encrypts the held token and the SMS code,
// posts to the verification endpoint, and on success stores the hash,
// installs it on the REST client, and persists the session.
func (a *AuthService) VerifyOtp(ctx context.Context, smsCode string) error {
	a.mu.RLock()
	state := a.state
	token := a.token
	a.mu.RUnlock()

	if state != AwaitingOtp {
		return &apierr.AuthError{Kind: apierr.MissingPriorStep, Message: "verifyOtp called before a successful loginUser"}
	}

	encToken, err := a.encryptor.Encrypt(token)
	if err != nil {
		return &apierr.AuthError{Kind: apierr.BrokerRejected, Message: "failed to encrypt token"}
	}
	encCode, err := a.encryptor.Encrypt(smsCode)
	if err != nil {
		return &apierr.AuthError{Kind: apierr.BrokerRejected, Message: "failed to encrypt sms code"}
	}

	payload := crypto.OrderedPayload{}
	payload.Set("token", encToken)
	payload.Set("password", encCode)

	body, _, err := a.client.doUnauthenticated(ctx, "/api/LoginUserControl", payload)
	if err != nil {
		return err
	}

	var resp otpResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		return &apierr.AuthError{Kind: apierr.BrokerRejected, Message: "unexpected LoginUserControl response shape"}
	}
	if !resp.Success || resp.Content.Hash == "" {
		return &apierr.AuthError{Kind: apierr.BrokerRejected, Message: resp.Message}
	}

	now := time.Now()
	record := sessionstore.Record{
		Owner:     a.owner,
		Token:     token,
		Hash:      resp.Content.Hash,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
		Active:    true,
	}
	if err := a.store.Save(ctx, record); err != nil {
		a.logger.Warn().Err(err).Msg("failed to persist session after successful OTP verification")
	}

	a.mu.Lock()
	a.hash = resp.Content.Hash
	a.state = Authenticated
	a.mu.Unlock()
	a.client.setAuth(token, resp.Content.Hash)

	select {
	case a.events <- AuthEvent{State: Authenticated, Owner: a.owner}:
	default:
	}

	return nil
}

// RestoreSession loads the persisted session, installs it into the REST
// client, and validates it with isAlive before declaring success. Returns
// false (and clears state) if no session exists or validation fails,
// since the WebSocket handshake requires a fresh hash.
func (a *AuthService) RestoreSession(ctx context.Context) bool {
	record, err := a.store.Load(ctx, a.owner)
	if err != nil {
		return false
	}

	a.client.setAuth(record.Token, record.Hash)
	if !a.IsAlive(ctx) {
		a.client.clearAuth()
		return false
	}

	a.mu.Lock()
	a.token = record.Token
	a.hash = record.Hash
	a.state = Authenticated
	a.mu.Unlock()

	select {
	case a.events <- AuthEvent{State: Authenticated, Owner: a.owner}:
	default:
	}
	return true
}

// IsAlive issues a cheap authenticated call (GetSubAccounts) and reports
// success iff the response is HTTP 2xx with a true success flag.
func (a *AuthService) IsAlive(ctx context.Context) bool {
	body, fromCache, err := a.client.doAuthenticated(ctx, resilience.ClassRead, "/api/GetSubAccounts", crypto.OrderedPayload{})
	if err != nil || fromCache {
		return false
	}
	var resp genericAckResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		return false
	}
	return resp.Success
}

// Refresh is invoked on the scheduled interval while keepAlive is on and
// state is Authenticated. On an auth failure it transitions to
// Unauthenticated.
func (a *AuthService) Refresh(ctx context.Context) error {
	if a.State() != Authenticated {
		return nil
	}

	_, _, err := a.client.doAuthenticated(ctx, resilience.ClassAuth, "/api/SessionRefresh", crypto.OrderedPayload{})
	if err != nil {
		if apiErr, ok := err.(*apierr.ApiError); ok && apiErr.Status == 401 {
			a.Clear(ctx, "refresh_401")
			return &apierr.AuthError{Kind: apierr.SessionExpired, Message: "session expired on refresh"}
		}
		return err
	}

	a.mu.Lock()
	a.state = Authenticated
	a.mu.Unlock()
	return nil
}

// StartKeepAlive runs Refresh on refreshDur until ctx is cancelled or Stop
// is called, mirroring StartAuthenticationKeeper's long-lived loop.
func (a *AuthService) StartKeepAlive(ctx context.Context) {
	ticker := time.NewTicker(a.refreshDur)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stopRefresh:
				return
			case <-ticker.C:
				if err := a.Refresh(ctx); err != nil {
					a.logger.Warn().Err(err).Msg("scheduled session refresh failed")
				}
			}
		}
	}()
}

// Stop ends the keep-alive loop started by StartKeepAlive.
func (a *AuthService) Stop() {
	a.refreshOnce.Do(func() { close(a.stopRefresh) })
}

// Clear forgets the in-memory token, clears the REST client's header, and
// marks the persisted session inactive with reason.
func (a *AuthService) Clear(ctx context.Context, reason string) {
	a.mu.Lock()
	a.token = ""
	a.hash = ""
	a.state = Unauthenticated
	a.mu.Unlock()

	a.client.clearAuth()
	if err := a.store.Deactivate(ctx, a.owner, reason); err != nil {
		a.logger.Warn().Err(err).Msg("failed to deactivate persisted session")
	}
}
