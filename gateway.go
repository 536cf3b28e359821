package frontdesk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Auth endpoints.
const (
	LoginPath          = "/auth/login"
	RegisterPath       = "/auth/register"
	ForgotPasswordPath = "/auth/forgot-password"
	RefreshPath        = "/auth/refresh"
	LogoutPath         = "/auth/logout"
	MePath             = "/auth/me"
)

// DefaultAuthFlowPaths are exempt from refresh-and-retry so their own 401s
// reach the caller. The refresh endpoint is not exempt.
var DefaultAuthFlowPaths = []string{LoginPath, RegisterPath, ForgotPasswordPath}

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	Transport Transport
	Store     CredentialStore
	Notifier  Notifier
	Navigator Navigator
	Logger    zerolog.Logger

	// AuthFlowPaths overrides DefaultAuthFlowPaths.
	AuthFlowPaths []string
	// ThrottleThreshold overrides DefaultThrottleThreshold.
	ThrottleThreshold int
	// Refresh overrides the call to RefreshPath. It must not write to Store.
	Refresh RefreshFunc
}

// Gateway applies the client's resilience policy to every request:
// throttled responses feed the rate-limit breaker and are never retried,
// and an auth failure on an authenticated session triggers one shared
// credential refresh followed by exactly one retry.
type Gateway struct {
	transport     Transport
	store         CredentialStore
	notifier      Notifier
	navigator     Navigator
	breaker       *RateLimitBreaker
	refresher     *RefreshCoordinator
	authFlowPaths []string
	log           zerolog.Logger
	metrics       *instruments
}

// NewGateway builds a Gateway. Transport and Store are required.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Navigator == nil {
		cfg.Navigator = nopNavigator{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NewLogNotifier(cfg.Logger)
	}
	if cfg.AuthFlowPaths == nil {
		cfg.AuthFlowPaths = DefaultAuthFlowPaths
	}
	g := &Gateway{
		transport:     cfg.Transport,
		store:         cfg.Store,
		notifier:      cfg.Notifier,
		navigator:     cfg.Navigator,
		authFlowPaths: cfg.AuthFlowPaths,
		log:           cfg.Logger,
		metrics:       newInstruments(),
	}
	g.breaker = NewRateLimitBreaker(cfg.ThrottleThreshold, cfg.Store, cfg.Notifier, cfg.Navigator, cfg.Logger)

	call := cfg.Refresh
	if call == nil {
		call = g.callRefresh
	}
	// Side effects of a refresh outcome run here, once per refresh, and
	// every joined caller only sees the shared result.
	g.refresher = NewRefreshCoordinator(func(ctx context.Context) (*AuthResult, error) {
		res, err := call(ctx)
		switch {
		case IsThrottled(err):
			return nil, g.throttled(err)
		case IsAuthFailure(err):
			g.endSession("refresh_rejected")
			return nil, err
		case err != nil:
			return nil, err
		}
		if err := g.store.SetCredentials(mergeAuthResult(g.store.Credentials(), res)); err != nil {
			return nil, fmt.Errorf("store refreshed credentials: %w", err)
		}
		return res, nil
	}, cfg.Logger)
	return g
}

// Breaker returns the gateway's rate-limit breaker.
func (g *Gateway) Breaker() *RateLimitBreaker { return g.breaker }

// Refresher returns the gateway's refresh coordinator.
func (g *Gateway) Refresher() *RefreshCoordinator { return g.refresher }

// Do sends req through the transport under the resilience policy.
// Errors for statuses >= 400 are *APIError, or *ThrottledError for 429.
func (g *Gateway) Do(ctx context.Context, req *Request) (*Response, error) {
	resp, err := g.transport.Send(ctx, req)
	if IsThrottled(err) {
		return nil, g.throttled(err)
	}
	g.breaker.OnSuccess()

	if err == nil || !IsAuthFailure(err) || g.isAuthFlow(req.Path) {
		return resp, err
	}

	if !g.store.IsAuthenticated() {
		g.log.Debug().Str("path", req.Path).Msg("auth failure without session")
		g.navigator.RedirectToLogin()
		return nil, err
	}

	if _, rerr := g.refresher.Acquire(ctx); rerr != nil {
		var te *ThrottledError
		switch {
		case errors.As(rerr, &te):
			return nil, te
		case IsAuthFailure(rerr):
			return nil, err
		default:
			return nil, fmt.Errorf("refresh credentials: %w", rerr)
		}
	}

	resp, err = g.transport.Send(ctx, req)
	if IsThrottled(err) {
		return nil, g.throttled(err)
	}
	g.breaker.OnSuccess()
	if IsAuthFailure(err) {
		g.endSession("retry_rejected")
		return nil, err
	}
	return resp, err
}

func (g *Gateway) throttled(err error) error {
	res := g.breaker.OnThrottled()
	return &ThrottledError{Attempt: res.Attempt, Threshold: res.Threshold, LoggedOut: res.LoggedOut, Err: err}
}

// endSession clears credentials and sends the user to log in again.
func (g *Gateway) endSession(reason string) {
	g.log.Warn().Str("reason", reason).Msg("ending session")
	g.metrics.add(g.metrics.forcedLogouts, attribute.String("reason", reason))
	if err := g.store.Clear(); err != nil {
		g.log.Error().Err(err).Msg("clear credentials")
	}
	g.notifier.ShowError(sessionExpiredMessage)
	g.navigator.RedirectToLogin()
}

func (g *Gateway) isAuthFlow(path string) bool {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	for _, p := range g.authFlowPaths {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

func (g *Gateway) callRefresh(ctx context.Context) (*AuthResult, error) {
	var body interface{}
	if rt := g.store.Credentials().RefreshToken; rt != "" {
		body = map[string]string{"refreshToken": rt}
	}
	resp, err := g.transport.Send(ctx, &Request{Method: http.MethodPost, Path: RefreshPath, Body: body})
	if err != nil {
		return nil, err
	}
	if len(resp.Body) == 0 {
		return &AuthResult{}, nil
	}
	return decodeJSON[AuthResult](resp)
}
