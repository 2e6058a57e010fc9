package daemon

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/opencode-ai/promptchain/internal/metrics"
)

const maxEnqueueBody = 1 << 20

// Handler builds the HTTP API: health, metrics, queue and cancel.
func (s *Service) Handler(limiter *RateLimiter) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /v1/status", s.handleStatus)
	api.HandleFunc("GET /v1/queue", s.handleListQueue)
	api.HandleFunc("POST /v1/queue", s.handleEnqueue)
	api.HandleFunc("POST /v1/cancel", s.handleCancel)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())
	if limiter != nil {
		mux.Handle("/v1/", limiter.Middleware(api))
	} else {
		mux.Handle("/v1/", api)
	}
	return mux
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Service) handleListQueue(w http.ResponseWriter, r *http.Request) {
	items, err := s.queue.Items(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": s.queue.Name(), "items": items})
}

// handleEnqueue appends the body to the queue. A JSON array adds one item
// per element; any other JSON value adds a single item.
func (s *Service) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEnqueueBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		writeError(w, http.StatusBadRequest, "body must be JSON: "+err.Error())
		return
	}

	values := []any{value}
	if list, ok := value.([]any); ok {
		values = list
	}
	if err := s.queue.Append(r.Context(), values...); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info().Int("added", len(values)).Str("queue", s.queue.Name()).Msg("items enqueued")
	s.Wake()
	writeJSON(w, http.StatusAccepted, map[string]any{"added": len(values)})
}

func (s *Service) handleCancel(w http.ResponseWriter, r *http.Request) {
	cancelled := s.Cancel()
	if cancelled {
		s.logger.Info().Msg("cancel requested")
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": cancelled})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
