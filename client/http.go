package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNetwork wraps every transport failure of [HTTPAPI].
	ErrNetwork = errors.New("client: network error")
	// ErrServer is returned when the server answers 5xx or 429. The reply
	// says nothing about the request itself, so callers should retry later.
	ErrServer = errors.New("client: server unavailable")
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxResponseBytes      = 64 << 10
)

// HTTPAPI implements [API] against the goOTP JSON routes.
type HTTPAPI struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

var _ API = (*HTTPAPI)(nil)

// HTTPOption customizes an [HTTPAPI].
type HTTPOption func(*HTTPAPI)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(a *HTTPAPI) { a.client = c }
}

// WithRequestTimeout bounds each call. The default is 10s.
func WithRequestTimeout(d time.Duration) HTTPOption {
	return func(a *HTTPAPI) { a.timeout = d }
}

// NewHTTPAPI targets baseURL, which includes the /api prefix
// (for example "http://localhost:3001/api").
func NewHTTPAPI(baseURL string, opts ...HTTPOption) *HTTPAPI {
	a := &HTTPAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *HTTPAPI) CheckUser(ctx context.Context, email string) (CheckUserResponse, error) {
	var out CheckUserResponse
	err := a.post(ctx, "/check-user", map[string]string{"email": email}, &out)
	return out, err
}

func (a *HTTPAPI) SendCode(ctx context.Context, email string) (Response, error) {
	var out Response
	err := a.post(ctx, "/send-code", map[string]string{"email": email}, &out)
	return out, err
}

func (a *HTTPAPI) Signup(ctx context.Context, email string) (Response, error) {
	var out Response
	err := a.post(ctx, "/signup", map[string]string{"email": email}, &out)
	return out, err
}

func (a *HTTPAPI) VerifyCode(ctx context.Context, email, code string) (Response, error) {
	var out Response
	err := a.post(ctx, "/verify-code", map[string]string{"email": email, "code": code}, &out)
	return out, err
}

func (a *HTTPAPI) CompleteSignup(ctx context.Context, req SignupRequest) (Response, error) {
	var out Response
	err := a.post(ctx, "/complete-signup", req, &out)
	return out, err
}

// post sends body as JSON and decodes the reply into out. 4xx replies other
// than 429 carry the same shape as successes and are decoded; 5xx and 429
// become ErrServer.
func (a *HTTPAPI) post(ctx context.Context, path string, body, out any) error {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return fmt.Errorf("%w: %s %s", ErrServer, path, resp.Status)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: decode: %v", ErrNetwork, path, resp.Status, err)
	}
	return nil
}
