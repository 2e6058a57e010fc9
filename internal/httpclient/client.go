// Package httpclient issues HTTP requests for chain steps and scripts.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second

	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes = 10 << 20
)

// ErrNetwork marks transport failures: timeouts, refused connections, bad URLs.
var ErrNetwork = errors.New("network error")

// Request is a transport-neutral HTTP request.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// Response is a normalized HTTP response. Non-2xx statuses are responses, not errors.
type Response struct {
	Status   int
	Headers  map[string]string
	BodyText string
}

// Client issues requests.
type Client interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// HTTPClient is the net/http backed Client.
type HTTPClient struct {
	client *http.Client
}

// New creates a client with the given per-request timeout.
func New(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// NewWithHTTPClient wraps an existing *http.Client.
func NewWithHTTPClient(client *http.Client) *HTTPClient {
	if client == nil {
		return New(0)
	}
	return &HTTPClient{client: client}
}

// Do sends req and reads the whole body.
func (c *HTTPClient) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Body != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}

	return &Response{
		Status:   resp.StatusCode,
		Headers:  headers,
		BodyText: string(data),
	}, nil
}
