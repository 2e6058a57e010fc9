package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Echo", r.Header.Get("X-Test"))
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(r.Method + ":" + string(body)))
	}))
	defer srv.Close()

	resp, err := New(time.Second).Do(context.Background(), Request{
		Method:  "post",
		URL:     srv.URL,
		Headers: map[string]string{"X-Test": "yes"},
		Body:    `{"a":1}`,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusTeapot, resp.Status)
	require.Equal(t, "yes", resp.Headers["x-echo"])
	require.Equal(t, `POST:{"a":1}`, resp.BodyText)
}

func TestHTTPClientNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(time.Second).Do(context.Background(), Request{URL: url})
	require.ErrorIs(t, err, ErrNetwork)
}

type scriptedClient struct {
	failures int
	calls    int
}

func (c *scriptedClient) Do(ctx context.Context, req Request) (*Response, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, errors.New("connection reset")
	}
	return &Response{Status: 200, BodyText: "ok"}, nil
}

func TestRetryingSucceedsOnThirdAttempt(t *testing.T) {
	var logs bytes.Buffer
	var waits []time.Duration
	client := &scriptedClient{failures: 2}
	r := &Retrying{
		Client:      client,
		MaxAttempts: 3,
		Backoff:     500 * time.Millisecond,
		Logger:      zerolog.New(&logs),
		Sleep: func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	}

	resp, err := r.Do(context.Background(), Request{URL: "http://example.test"})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.BodyText)
	require.Equal(t, 3, client.calls)
	require.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, waits)
	require.Equal(t, 2, strings.Count(logs.String(), `"level":"warn"`))
}

func TestRetryingReturnsLastError(t *testing.T) {
	client := &scriptedClient{failures: 5}
	r := NewRetrying(client, zerolog.Nop())
	r.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_, err := r.Do(context.Background(), Request{URL: "http://example.test"})
	require.EqualError(t, err, "connection reset")
	require.Equal(t, 3, client.calls)
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
