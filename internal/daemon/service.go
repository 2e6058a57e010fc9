package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/opencode-ai/promptchain/internal/batch"
	"github.com/opencode-ai/promptchain/internal/queue"
)

// BatchHealthService is the gRPC health service name that reports SERVING
// while a batch is running and NOT_SERVING while idle.
const BatchHealthService = "promptchain.batch"

// Service watches a persisted queue and runs a batch whenever it has items.
type Service struct {
	controller   *batch.Controller
	queue        *queue.Persistent
	pollInterval time.Duration
	logger       zerolog.Logger
	health       *health.Server

	wake chan struct{}

	mu      sync.Mutex
	current *batch.Session
	last    *batch.Summary
}

// NewService creates a service running controller over q.
func NewService(controller *batch.Controller, q *queue.Persistent, pollInterval time.Duration, logger zerolog.Logger) *Service {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(BatchHealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Service{
		controller:   controller,
		queue:        q,
		pollInterval: pollInterval,
		logger:       logger,
		health:       hs,
		wake:         make(chan struct{}, 1),
	}
}

// Health returns the gRPC health server.
func (s *Service) Health() *health.Server {
	return s.health
}

// Queue returns the watched queue.
func (s *Service) Queue() *queue.Persistent {
	return s.queue
}

// Wake asks the poll loop to check the queue now.
func (s *Service) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Cancel asks the running batch to stop after its current step.
func (s *Service) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false
	}
	s.current.Cancel()
	return true
}

// Status describes the service for the status endpoint.
type Status struct {
	Running   bool         `json:"running"`
	SessionID string       `json:"session_id,omitempty"`
	Processed int          `json:"processed"`
	Queue     string       `json:"queue"`
	Pending   int          `json:"pending"`
	Last      *LastSummary `json:"last,omitempty"`
}

// LastSummary is the outcome of the most recent batch.
type LastSummary struct {
	SessionID string `json:"session_id"`
	Outcome   string `json:"outcome"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
	Duration  string `json:"duration"`
}

// Status returns a snapshot of the service state.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	pending, err := s.queue.Len(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := &Status{Queue: s.queue.Name(), Pending: pending}
	if s.current != nil {
		st.Running = true
		st.SessionID = s.current.ID
		st.Processed = s.current.Processed()
	}
	if s.last != nil {
		st.Last = &LastSummary{
			SessionID: s.last.SessionID,
			Outcome:   s.last.Outcome(),
			Processed: s.last.Processed,
			Failed:    s.last.Failed(),
			Duration:  s.last.Duration.Round(time.Millisecond).String(),
		}
		if s.last.Err != nil {
			st.Last.Error = s.last.Err.Error()
		}
	}
	return st, nil
}

// pollLoop checks the queue immediately, then on every tick or wake-up,
// until ctx is done.
func (s *Service) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		case <-s.wake:
			s.poll(ctx)
		}
	}
}

// poll runs one batch when the queue has items. An empty queue is left
// alone here; only an explicit run processes an empty queue.
func (s *Service) poll(ctx context.Context) {
	pending, err := s.queue.Len(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read queue")
		return
	}
	if pending == 0 || s.controller.Running() {
		return
	}

	session := batch.NewSession(s.queue)
	s.mu.Lock()
	s.current = session
	s.mu.Unlock()
	s.health.SetServingStatus(BatchHealthService, healthpb.HealthCheckResponse_SERVING)

	summary, err := s.controller.Run(ctx, session)

	s.health.SetServingStatus(BatchHealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	s.mu.Lock()
	s.current = nil
	if summary != nil {
		s.last = summary
	}
	s.mu.Unlock()

	switch {
	case errors.Is(err, batch.ErrLockHeld):
		s.logger.Debug().Msg("run lock held elsewhere; will retry")
	case err != nil:
		s.logger.Error().Err(err).Str("session", session.ID).Msg("batch run failed")
	}
}
