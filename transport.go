package frontdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// Transport performs a single request/response exchange. Responses with a
// status of 400 or more are returned as *APIError.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport is the default Transport. It attaches the access token from
// the credential store to every request.
type HTTPTransport struct {
	BaseURL    string
	HTTPClient *http.Client
	Store      CredentialStore
	UserAgent  string
}

func (t *HTTPTransport) Send(ctx context.Context, r *Request) (*Response, error) {
	u := t.BaseURL + r.Path
	if len(r.Query) > 0 {
		params := url.Values{}
		for k, v := range r.Query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if r.Body != nil {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}
	if t.Store != nil {
		if tok := t.Store.Credentials().AccessToken; tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	client := t.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, newAPIError(resp.StatusCode, data)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// newAPIError builds an APIError from an error body. Both {"code","message"}
// and {"error":{"code","message"}} shapes are accepted.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var wrapped struct {
		Code    string    `json:"code"`
		Message string    `json:"message"`
		Error   *APIError `json:"error"`
	}
	if json.Unmarshal(body, &wrapped) == nil {
		if wrapped.Error != nil {
			apiErr.Code, apiErr.Message = wrapped.Error.Code, wrapped.Error.Message
		} else {
			apiErr.Code, apiErr.Message = wrapped.Code, wrapped.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
