// Package frontdesk is the Go client for the Frontdesk receptionist
// dashboard API.
//
// Every request goes through a Gateway that refreshes expired credentials
// once under concurrent load and ends the session after repeated
// throttling. Push updates arrive over a single realtime channel.
//
// Example:
//
//	store := frontdesk.NewMemoryCredentialStore(frontdesk.Credentials{})
//	client := frontdesk.NewClient(frontdesk.WithCredentialStore(store))
//
//	_, _ = client.Auth.Login(ctx, &frontdesk.LoginOptions{Email: "a@b.co", Password: "..."})
//	count, _ := client.Notifications.UnreadCount(ctx)
//
//	rt := client.Realtime(nil)
//	rt.SubscribeFunc(frontdesk.EventNotification, func(e frontdesk.Event) { ... })
//	_ = rt.Connect(ctx)
package frontdesk

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ============================================================================
// Environment
// ============================================================================

type Environment string

const (
	Production Environment = "production"
	Staging    Environment = "staging"
)

var environments = map[Environment]string{
	Production: "https://api.frontdesk.ai",
	Staging:    "https://api.staging.frontdesk.ai",
}

const (
	DefaultBaseURL = "https://api.frontdesk.ai"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

type Client struct {
	baseURL       string
	wsURL         string
	httpClient    *http.Client
	transport     Transport
	store         CredentialStore
	notifier      Notifier
	navigator     Navigator
	log           zerolog.Logger
	authFlowPaths []string
	gateway       *Gateway

	Auth          *AuthClient
	Notifications *NotificationsClient
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithEnvironment(env Environment) ClientOption {
	return func(c *Client) {
		if u, ok := environments[env]; ok {
			c.baseURL = u
		}
	}
}

// WithRealtimeURL overrides the channel URL derived from the base URL.
func WithRealtimeURL(url string) ClientOption {
	return func(c *Client) { c.wsURL = url }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(t Transport) ClientOption {
	return func(c *Client) { c.transport = t }
}

func WithCredentialStore(s CredentialStore) ClientOption {
	return func(c *Client) { c.store = s }
}

func WithNotifier(n Notifier) ClientOption {
	return func(c *Client) { c.notifier = n }
}

func WithNavigator(n Navigator) ClientOption {
	return func(c *Client) { c.navigator = n }
}

func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// WithAuthPaths replaces the paths exempt from refresh-and-retry.
func WithAuthPaths(paths ...string) ClientOption {
	return func(c *Client) { c.authFlowPaths = paths }
}

// NewClient creates a client. Without WithCredentialStore the client keeps
// credentials in memory.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.store == nil {
		c.store = NewMemoryCredentialStore(Credentials{})
	}
	if c.notifier == nil {
		c.notifier = NewLogNotifier(c.log)
	}
	if c.navigator == nil {
		c.navigator = nopNavigator{}
	}
	if c.transport == nil {
		c.transport = &HTTPTransport{BaseURL: c.baseURL, HTTPClient: c.httpClient, Store: c.store}
	}
	c.gateway = NewGateway(GatewayConfig{
		Transport:     c.transport,
		Store:         c.store,
		Notifier:      c.notifier,
		Navigator:     c.navigator,
		Logger:        c.log,
		AuthFlowPaths: c.authFlowPaths,
	})

	c.Auth = &AuthClient{client: c}
	c.Notifications = &NotificationsClient{client: c}
	return c
}

// Do sends a request through the gateway.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	return c.gateway.Do(ctx, req)
}

// Gateway returns the client's request gateway.
func (c *Client) Gateway() *Gateway { return c.gateway }

// Store returns the client's credential store.
func (c *Client) Store() CredentialStore { return c.store }

// RealtimeURL returns the channel URL: the configured one, or the base URL
// with ws(s) scheme and /ws path.
func (c *Client) RealtimeURL() string {
	if c.wsURL != "" {
		return c.wsURL
	}
	base := strings.Replace(c.baseURL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + "/ws"
}

// Realtime creates a channel manager bound to the client's credentials.
// Call Connect to open it. cfg may be nil.
func (c *Client) Realtime(cfg *ChannelConfig) *ChannelManager {
	var cc ChannelConfig
	if cfg != nil {
		cc = *cfg
	}
	if cc.URL == "" {
		cc.URL = c.RealtimeURL()
	}
	if cc.Store == nil {
		cc.Store = c.store
	}
	if cc.Notifier == nil {
		cc.Notifier = c.notifier
	}
	if cc.Dialer == nil {
		// Dial deadlines come from the context; the socket outlives any client timeout.
		hc := *c.httpClient
		hc.Timeout = 0
		cc.Dialer = &WebSocketDialer{HTTPClient: &hc}
	}
	if cfg == nil {
		cc.Logger = c.log
	}
	return NewChannelManager(cc)
}

// ============================================================================
// Sub-Clients
// ============================================================================

// AuthClient handles login, registration and session endpoints.
type AuthClient struct{ client *Client }

// Login authenticates and stores the returned credentials.
func (a *AuthClient) Login(ctx context.Context, opts *LoginOptions) (*AuthResult, error) {
	return a.authenticate(ctx, LoginPath, opts)
}

// Register creates an account and stores the returned credentials.
func (a *AuthClient) Register(ctx context.Context, opts *RegisterOptions) (*AuthResult, error) {
	return a.authenticate(ctx, RegisterPath, opts)
}

// ForgotPassword requests a password reset email.
func (a *AuthClient) ForgotPassword(ctx context.Context, email string) error {
	_, err := a.client.Do(ctx, &Request{Method: http.MethodPost, Path: ForgotPasswordPath, Body: map[string]string{"email": email}})
	return err
}

// Refresh forces a credential refresh, joining one already in flight. A
// rejected or throttled refresh is handled as it is for any request.
func (a *AuthClient) Refresh(ctx context.Context) (*AuthResult, error) {
	return a.client.gateway.Refresher().Acquire(ctx)
}

// Logout ends the session server-side and clears local credentials even if
// the server call fails.
func (a *AuthClient) Logout(ctx context.Context) error {
	_, err := a.client.transport.Send(ctx, &Request{Method: http.MethodPost, Path: LogoutPath})
	if cerr := a.client.store.Clear(); cerr != nil {
		return cerr
	}
	return err
}

// Me returns the authenticated user.
func (a *AuthClient) Me(ctx context.Context) (*User, error) {
	resp, err := a.client.Do(ctx, &Request{Method: http.MethodGet, Path: MePath})
	if err != nil {
		return nil, err
	}
	return decodeJSON[User](resp)
}

func (a *AuthClient) authenticate(ctx context.Context, path string, body interface{}) (*AuthResult, error) {
	resp, err := a.client.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
	if err != nil {
		return nil, err
	}
	res, err := decodeJSON[AuthResult](resp)
	if err != nil {
		return nil, err
	}
	if err := a.client.store.SetCredentials(mergeAuthResult(Credentials{}, res)); err != nil {
		return nil, err
	}
	return res, nil
}

// NotificationsClient reads and acknowledges in-app notifications.
type NotificationsClient struct{ client *Client }

func (n *NotificationsClient) UnreadCount(ctx context.Context) (int, error) {
	resp, err := n.client.Do(ctx, &Request{Method: http.MethodGet, Path: "/notifications/unread-count"})
	if err != nil {
		return 0, err
	}
	uc, err := decodeJSON[UnreadCount](resp)
	if err != nil {
		return 0, err
	}
	return uc.Count, nil
}

func (n *NotificationsClient) MarkRead(ctx context.Context, id string) error {
	_, err := n.client.Do(ctx, &Request{Method: http.MethodPost, Path: "/notifications/" + id + "/read"})
	return err
}

func (n *NotificationsClient) MarkAllRead(ctx context.Context) error {
	_, err := n.client.Do(ctx, &Request{Method: http.MethodPost, Path: "/notifications/read-all"})
	return err
}
