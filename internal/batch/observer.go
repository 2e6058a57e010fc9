package batch

import (
	"time"

	"github.com/opencode-ai/promptchain/internal/metrics"
	"github.com/opencode-ai/promptchain/internal/models"
)

// StartInfo describes a batch that is about to run.
type StartInfo struct {
	SessionID string
	Chain     string
	Mode      Mode
	QueueSize int
}

// ItemOutcome describes one finished chain run.
type ItemOutcome struct {
	SessionID string
	Index     int
	Total     int
	Item      any
	Exec      *models.ExecutionContext
	Err       error
	Duration  time.Duration
}

// ItemFailure records an item whose chain run failed.
type ItemFailure struct {
	Index int
	Item  any
	Err   error
}

// Summary is the result of a batch run.
type Summary struct {
	SessionID   string
	Chain       string
	Processed   int
	Failures    []ItemFailure
	Cancelled   bool
	LockRefused bool
	Holder      *models.LockRecord
	Err         error
	Duration    time.Duration
}

// Failed returns the number of failed items.
func (s *Summary) Failed() int {
	return len(s.Failures)
}

// Outcome returns the metrics label for the run.
func (s *Summary) Outcome() string {
	switch {
	case s.LockRefused:
		return metrics.OutcomeRefused
	case s.Err != nil:
		return metrics.OutcomeFailure
	case s.Cancelled:
		return metrics.OutcomeCancelled
	default:
		return metrics.OutcomeSuccess
	}
}

// Observer receives batch lifecycle callbacks. Calls happen on the batch
// goroutine, so implementations must not block for long.
type Observer interface {
	Started(info StartInfo)
	Progress(done, total int)
	SubProgress(done, total int)
	ItemFinished(outcome ItemOutcome)
	Finished(summary *Summary)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) Started(StartInfo)        {}
func (NopObserver) Progress(int, int)        {}
func (NopObserver) SubProgress(int, int)     {}
func (NopObserver) ItemFinished(ItemOutcome) {}
func (NopObserver) Finished(*Summary)        {}

// Observers fans callbacks out to several observers in order.
type Observers []Observer

func (o Observers) Started(info StartInfo) {
	for _, obs := range o {
		obs.Started(info)
	}
}

func (o Observers) Progress(done, total int) {
	for _, obs := range o {
		obs.Progress(done, total)
	}
}

func (o Observers) SubProgress(done, total int) {
	for _, obs := range o {
		obs.SubProgress(done, total)
	}
}

func (o Observers) ItemFinished(outcome ItemOutcome) {
	for _, obs := range o {
		obs.ItemFinished(outcome)
	}
}

func (o Observers) Finished(summary *Summary) {
	for _, obs := range o {
		obs.Finished(summary)
	}
}
