package frontdesk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError is returned for every response with a status code of 400 or more.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s: %s", e.Status, e.Code, e.Message)
}

// ThrottledError is returned when the server answered 429 and the
// rate-limit breaker has handled it.
type ThrottledError struct {
	Attempt   int
	Threshold int
	LoggedOut bool
	Err       error
}

func (e *ThrottledError) Error() string {
	if e.LoggedOut {
		return fmt.Sprintf("rate limited (%d/%d), session ended", e.Attempt, e.Threshold)
	}
	return fmt.Sprintf("rate limited (%d/%d)", e.Attempt, e.Threshold)
}

func (e *ThrottledError) Unwrap() error { return e.Err }

var (
	// ErrNotOpen is returned by ChannelManager.Send when the channel is not Open.
	ErrNotOpen = errors.New("realtime channel is not open")
	// ErrNotAuthenticated is returned when a channel is requested without credentials.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNoChannelURL is returned when no realtime URL is configured.
	ErrNoChannelURL = errors.New("realtime url not configured")
	// ErrClosed is returned after the manager has been torn down.
	ErrClosed = errors.New("realtime channel manager closed")
)

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsAuthFailure reports whether err is a 401 or 403.
func IsAuthFailure(err error) bool {
	s := StatusOf(err)
	return s == http.StatusUnauthorized || s == http.StatusForbidden
}

// IsThrottled reports whether err is a 429.
func IsThrottled(err error) bool {
	return StatusOf(err) == http.StatusTooManyRequests
}

// ============================================================================
// Request / Response
// ============================================================================

// Request describes one outbound API call. It is not modified by the gateway.
type Request struct {
	Method string
	Path   string
	Query  map[string]string
	Body   interface{}
}

// Response is a successful (status < 400) API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v interface{}) error {
	if r == nil || len(r.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func decodeJSON[T any](r *Response) (*T, error) {
	var result T
	if err := r.Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ============================================================================
// Auth Types
// ============================================================================

// User is the identity returned by the auth endpoints.
type User struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name,omitempty"`
	Role           string `json:"role,omitempty"`
	OrganizationID string `json:"organizationId,omitempty"`
}

// LoginOptions are the credentials for Login.
type LoginOptions struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterOptions create a new account.
type RegisterOptions struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name,omitempty"`
	BusinessName string `json:"businessName,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

// AuthResult is returned by login, register and refresh.
type AuthResult struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// UnreadCount is the body of the unread-count endpoint and realtime event.
type UnreadCount struct {
	Count int `json:"count"`
}

// ============================================================================
// Realtime Payload Types
// ============================================================================

// ConnectedPayload acknowledges an authenticated channel.
type ConnectedPayload struct {
	UserID string `json:"userId"`
}

// NotificationPayload is a server-pushed user notification.
type NotificationPayload struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind,omitempty"`
	Title     string         `json:"title,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt string         `json:"createdAt,omitempty"`
}

// ChannelErrorPayload is a server-side error reported over the channel.
type ChannelErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ClosedPayload is published as channel.closed.
type ClosedPayload struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

// ReconnectingPayload is published as channel.reconnecting.
type ReconnectingPayload struct {
	Attempt int   `json:"attempt"`
	DelayMS int64 `json:"delayMs"`
}
