package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/promptchain/internal/batch"
	"github.com/opencode-ai/promptchain/internal/models"
)

// Recorder is a batch observer that appends every lifecycle step to the
// event log. Write failures are logged and never interrupt the batch.
type Recorder struct {
	batch.NopObserver

	repo    Repository
	logger  zerolog.Logger
	lock    string
	ownerID string
}

// NewRecorder creates a recorder. lockName and ownerID label lock.refused events.
func NewRecorder(repo Repository, logger zerolog.Logger, lockName, ownerID string) *Recorder {
	return &Recorder{repo: repo, logger: logger, lock: lockName, ownerID: ownerID}
}

func (r *Recorder) Started(info batch.StartInfo) {
	r.check(LogBatchStarted(context.Background(), r.repo, info.SessionID, models.BatchStartedPayload{
		Chain:     info.Chain,
		Mode:      string(info.Mode),
		QueueSize: info.QueueSize,
	}))
}

func (r *Recorder) ItemFinished(outcome batch.ItemOutcome) {
	payload := models.ItemPayload{
		Index:    outcome.Index,
		Item:     outcome.Item,
		Duration: outcome.Duration.Round(time.Millisecond).String(),
	}
	if outcome.Err != nil {
		payload.Error = outcome.Err.Error()
	}
	r.check(LogItem(context.Background(), r.repo, outcome.SessionID, payload))
}

func (r *Recorder) Finished(summary *batch.Summary) {
	ctx := context.Background()
	if summary.LockRefused {
		payload := models.LockRefusedPayload{Name: r.lock, OwnerID: r.ownerID}
		if summary.Holder != nil {
			payload.Holder = summary.Holder.OwnerID
		}
		r.check(LogLockRefused(ctx, r.repo, payload))
		return
	}

	payload := models.BatchFinishedPayload{
		Processed: summary.Processed,
		Failed:    summary.Failed(),
		Cancelled: summary.Cancelled,
	}
	if summary.Err != nil {
		payload.Error = summary.Err.Error()
	}
	r.check(LogBatchFinished(ctx, r.repo, summary.SessionID, payload))
}

func (r *Recorder) check(err error) {
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to record event")
	}
}
