// Package client implements the HTTP client used by an RLN peer to relay
// proofs to other peers and to query their view of the membership registry.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/vocdoni/rln-sandbox/api"
	"github.com/vocdoni/rln-sandbox/log"
)

const (
	// DefaultRetries is the number of attempts made when the peer can not
	// be reached.
	DefaultRetries = 3
	// DefaultTimeout is the timeout of every attempt.
	DefaultTimeout = 10 * time.Second

	retryDelay   = 500 * time.Millisecond
	maxLoggedLen = 512
)

// HTTPclient is the HTTP client of the API of an RLN peer.
type HTTPclient struct {
	c       *http.Client
	host    *url.URL
	retries int
}

// Option configures an HTTPclient.
type Option func(*HTTPclient)

// WithRetries sets the number of attempts made for each request. Values
// lower than one are ignored.
func WithRetries(n int) Option {
	return func(c *HTTPclient) {
		if n > 0 {
			c.retries = n
		}
	}
}

// WithTimeout sets the timeout of every attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPclient) {
		c.c.Timeout = d
	}
}

// New returns a client of the peer at host and checks that it is alive.
func New(ctx context.Context, host string, opts ...Option) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	if hostURL.Scheme == "" || hostURL.Host == "" {
		return nil, fmt.Errorf("invalid peer url %q", host)
	}
	c := &HTTPclient{
		c: &http.Client{
			Transport: &http.Transport{IdleConnTimeout: DefaultTimeout},
			Timeout:   DefaultTimeout,
		},
		host:    hostURL,
		retries: DefaultRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	log.Debugw("peer client created", "host", hostURL.String())
	return c, nil
}

// Ping checks that the peer is alive.
func (c *HTTPclient) Ping(ctx context.Context) error {
	data, status, err := c.Request(ctx, http.MethodGet, nil, api.PingEndpoint)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return responseError(data, status)
	}
	return nil
}

// Request sends a request with the JSON encoding of jsonBody, if any, to the
// path made of the segments provided. Only connection errors are retried, a
// response with any status is returned to the caller.
func (c *HTTPclient) Request(ctx context.Context, method string, jsonBody any, urlPath ...string) ([]byte, int, error) {
	var body []byte
	if jsonBody != nil {
		var err error
		if body, err = json.Marshal(jsonBody); err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}
	u := *c.host
	u.Path = path.Join(u.Path, path.Join(urlPath...))
	log.Debugw("peer request", "method", method, "url", u.String(), "body", truncate(body))

	var (
		resp *http.Response
		err  error
	)
	for i := 1; i <= c.retries; i++ {
		if i > 1 {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		if jsonBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if resp, err = c.c.Do(req); err == nil {
			break
		}
		log.Warnw("peer request failed", "error", err.Error(), "attempt", i, "retries", c.retries)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("peer request failed after %d attempts: %w", c.retries, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("could not close response body", "error", err)
		}
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// APIError is returned when the peer answers with an error response. Code is
// the code of the api.Error that produced it.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("peer returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("peer returned %d (code %d): %s", e.Status, e.Code, e.Message)
}

// Is matches an api.Error definition with the same code.
func (e *APIError) Is(target error) bool {
	var t api.Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code != 0 && e.Code == t.Code
}

func responseError(data []byte, status int) error {
	apiErr := &APIError{Status: status, Message: string(bytes.TrimSpace(data))}
	res := &api.ErrorResponse{}
	if err := json.Unmarshal(data, res); err == nil && res.Code != 0 {
		apiErr.Code, apiErr.Message = res.Code, res.Error
	}
	return apiErr
}

// decode checks the status of a response and unmarshals its body into v.
func decode(data []byte, status int, err error, v any) error {
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return responseError(data, status)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	return nil
}

func truncate(body []byte) string {
	if len(body) > maxLoggedLen {
		return string(body[:maxLoggedLen]) + "..."
	}
	return string(body)
}
