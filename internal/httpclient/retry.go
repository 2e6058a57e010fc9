package httpclient

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxAttempts is the total number of tries, first attempt included.
	DefaultMaxAttempts = 3

	// DefaultBackoff is multiplied by the attempt number between tries.
	DefaultBackoff = 500 * time.Millisecond
)

// Retrying retries failed requests with linear backoff.
type Retrying struct {
	Client      Client
	MaxAttempts int
	Backoff     time.Duration
	Logger      zerolog.Logger

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps client with the default policy.
func NewRetrying(client Client, logger zerolog.Logger) *Retrying {
	return &Retrying{
		Client:      client,
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoff,
		Logger:      logger,
	}
}

// Do tries req up to MaxAttempts times. After attempt n fails it waits
// Backoff*n. The last error is returned when every attempt fails.
func (r *Retrying) Do(ctx context.Context, req Request) (*Response, error) {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := r.Client.Do(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		r.Logger.Warn().
			Err(err).
			Str("url", req.URL).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Msg("http request failed")

		if attempt == attempts {
			break
		}
		if err := sleep(ctx, r.Backoff*time.Duration(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
