package daemon

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RateLimitConfig defines a token bucket: a sustained rate and a burst.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustainable rate.
	RequestsPerSecond float64

	// BurstSize is the maximum number of requests allowed at once.
	BurstSize int
}

// DefaultRateLimits holds per-key limits applied on top of the global limit.
// Keys are gRPC full method names or HTTP "METHOD /path" pairs.
var DefaultRateLimits = map[string]RateLimitConfig{
	"POST /v1/queue":               {RequestsPerSecond: 10, BurstSize: 50},
	"POST /v1/cancel":              {RequestsPerSecond: 1, BurstSize: 5},
	"/grpc.health.v1.Health/Check": {RequestsPerSecond: 100, BurstSize: 200},
	"/grpc.health.v1.Health/Watch": {RequestsPerSecond: 5, BurstSize: 10},
}

type limiterEntry struct {
	limiter *rate.Limiter
	cfg     RateLimitConfig
	total   atomic.Int64
	denied  atomic.Int64
}

func newLimiterEntry(cfg RateLimitConfig) *limiterEntry {
	return &limiterEntry{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize), cfg: cfg}
}

func (e *limiterEntry) allow() bool {
	e.total.Add(1)
	if e.limiter.Allow() {
		return true
	}
	e.denied.Add(1)
	return false
}

// RateLimiter applies a global limit plus optional per-key limits.
type RateLimiter struct {
	mu      sync.RWMutex
	entries map[string]*limiterEntry
	configs map[string]RateLimitConfig
	global  *limiterEntry
	enabled atomic.Bool
}

// RateLimiterOption configures the RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithKeyLimits sets custom limits for specific keys.
func WithKeyLimits(limits map[string]RateLimitConfig) RateLimiterOption {
	return func(rl *RateLimiter) {
		for key, cfg := range limits {
			rl.configs[key] = cfg
		}
	}
}

// WithGlobalLimit sets a limit applied to every request.
func WithGlobalLimit(cfg RateLimitConfig) RateLimiterOption {
	return func(rl *RateLimiter) {
		if cfg.RequestsPerSecond > 0 && cfg.BurstSize > 0 {
			rl.global = newLimiterEntry(cfg)
		}
	}
}

// NewRateLimiter creates an enabled rate limiter with the default key limits.
func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		entries: make(map[string]*limiterEntry),
		configs: make(map[string]RateLimitConfig),
	}
	rl.enabled.Store(true)
	for key, cfg := range DefaultRateLimits {
		rl.configs[key] = cfg
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Allow reports whether a request for key may proceed and consumes a token if so.
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.enabled.Load() {
		return true
	}
	if rl.global != nil && !rl.global.allow() {
		return false
	}
	entry := rl.entry(key)
	if entry == nil {
		return true
	}
	return entry.allow()
}

func (rl *RateLimiter) entry(key string) *limiterEntry {
	rl.mu.RLock()
	entry, ok := rl.entries[key]
	rl.mu.RUnlock()
	if ok {
		return entry
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if entry, ok = rl.entries[key]; ok {
		return entry
	}
	cfg, ok := rl.configs[key]
	if !ok {
		return nil
	}
	entry = newLimiterEntry(cfg)
	rl.entries[key] = entry
	return entry
}

// SetEnabled enables or disables rate limiting at runtime.
func (rl *RateLimiter) SetEnabled(enabled bool) {
	rl.enabled.Store(enabled)
}

// KeyStats is the request accounting for one key.
type KeyStats struct {
	Key            string  `json:"key"`
	RequestsPerSec float64 `json:"requests_per_sec"`
	BurstSize      int     `json:"burst_size"`
	TotalRequests  int64   `json:"total_requests"`
	DeniedRequests int64   `json:"denied_requests"`
}

// Stats returns accounting for every key seen so far, plus "global".
func (rl *RateLimiter) Stats() []KeyStats {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	stats := make([]KeyStats, 0, len(rl.entries)+1)
	if rl.global != nil {
		stats = append(stats, rl.global.stats("global"))
	}
	for key, entry := range rl.entries {
		stats = append(stats, entry.stats(key))
	}
	return stats
}

func (e *limiterEntry) stats(key string) KeyStats {
	return KeyStats{
		Key:            key,
		RequestsPerSec: e.cfg.RequestsPerSecond,
		BurstSize:      e.cfg.BurstSize,
		TotalRequests:  e.total.Load(),
		DeniedRequests: e.denied.Load(),
	}
}

// UnaryServerInterceptor returns a gRPC unary interceptor that applies rate limiting.
func (rl *RateLimiter) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !rl.Allow(info.FullMethod) {
			return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded for method %s", info.FullMethod)
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor returns a gRPC stream interceptor that limits stream creation.
func (rl *RateLimiter) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if !rl.Allow(info.FullMethod) {
			return status.Errorf(codes.ResourceExhausted, "rate limit exceeded for stream %s", info.FullMethod)
		}
		return handler(srv, ss)
	}
}

// Middleware rate-limits HTTP requests keyed by method and path.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(r.Method + " " + r.URL.Path) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
