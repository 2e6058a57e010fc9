package batch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/promptchain/internal/httpclient"
	"github.com/opencode-ai/promptchain/internal/metrics"
	"github.com/opencode-ai/promptchain/internal/models"
	"github.com/opencode-ai/promptchain/internal/queue"
	"github.com/opencode-ai/promptchain/internal/steps"
)

// Batch errors.
var (
	ErrAlreadyRunning  = errors.New("a batch is already running")
	ErrLockHeld        = errors.New("run lock is held by another instance")
	ErrInvalidMode     = errors.New("invalid batch mode")
	ErrInvalidPolicy   = errors.New("invalid failure policy")
	ErrChainRequired   = errors.New("chain is required")
	ErrSessionRequired = errors.New("session with a queue is required")
)

// Mode selects how the queue is consumed.
type Mode string

const (
	// ModeAutoRemove runs the head item and removes it after the run.
	ModeAutoRemove Mode = "auto-remove"
	// ModePositional walks the queue by index and never mutates it.
	ModePositional Mode = "positional"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeAutoRemove || m == ModePositional
}

// FailurePolicy selects what a failed item does to the rest of the batch.
type FailurePolicy string

const (
	// FailureAbort ends the batch at the first failed item.
	FailureAbort FailurePolicy = "abort"
	// FailureContinue records the failure and moves on to the next item.
	FailureContinue FailurePolicy = "continue"
)

// Valid reports whether p is a known policy.
func (p FailurePolicy) Valid() bool {
	return p == FailureAbort || p == FailureContinue
}

// ChainRunner runs a chain for one item.
type ChainRunner interface {
	Run(ctx context.Context, c *models.Chain, exec *models.ExecutionContext, ctl steps.Control) error
}

// Lease is the cross-process run lock.
type Lease interface {
	Name() string
	OwnerID() string
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	Holder(ctx context.Context) (*models.LockRecord, error)
	Lost() <-chan struct{}
}

// Controller runs a chain once per queued item. A controller runs one
// batch at a time.
type Controller struct {
	Runner        ChainRunner
	Chain         *models.Chain
	Mode          Mode
	FailurePolicy FailurePolicy

	// ItemWait elapses between items while items remain.
	ItemWait time.Duration

	// Lease is optional. When set it must be acquired before the run starts.
	Lease Lease

	Observer Observer
	Logger   zerolog.Logger

	// Sleep waits between items. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	running bool
}

// Running reports whether a batch is in progress.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Run processes session's queue until it is exhausted, cancelled, or an
// item fails under the abort policy. The lock is always released and the
// observer always receives Finished once the run has been attempted.
func (c *Controller) Run(ctx context.Context, session *Session) (*Summary, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	if err := c.validate(session); err != nil {
		return nil, err
	}

	observer := c.observer()
	start := time.Now()
	summary := &Summary{SessionID: session.ID, Chain: c.Chain.Name}
	defer func() {
		summary.Duration = time.Since(start)
		observer.Progress(0, 0)
		observer.SubProgress(0, 0)
		observer.Finished(summary)
		metrics.BatchFinished(summary.Outcome())
	}()

	if c.Lease != nil {
		acquired, err := c.Lease.Acquire(ctx)
		if err != nil {
			summary.Err = fmt.Errorf("acquire run lock: %w", err)
			return summary, summary.Err
		}
		metrics.LockAcquire(acquired)
		if !acquired {
			summary.LockRefused = true
			summary.Holder, _ = c.Lease.Holder(ctx)
			event := c.Logger.Info().Str("lock", c.Lease.Name())
			if summary.Holder != nil {
				event = event.Str("holder", summary.Holder.OwnerID).Dur("age", summary.Holder.Age(time.Now()))
			}
			event.Msg("run lock held by another instance; not starting")
			return summary, ErrLockHeld
		}
		defer func() {
			if err := c.Lease.Release(context.WithoutCancel(ctx)); err != nil {
				c.Logger.Warn().Err(err).Str("lock", c.Lease.Name()).Msg("failed to release run lock")
			}
		}()
		done := make(chan struct{})
		defer close(done)
		go c.watchLease(session, c.Lease.Lost(), done)
	}

	metrics.SetRunning(true)
	defer metrics.SetRunning(false)

	err := c.loop(ctx, session, summary, observer)
	summary.Processed = session.Processed()
	if err != nil {
		summary.Err = err
		c.Logger.Error().Err(err).Int("processed", summary.Processed).Msg("batch failed")
		return summary, err
	}

	c.Logger.Info().
		Int("processed", summary.Processed).
		Int("failed", summary.Failed()).
		Bool("cancelled", summary.Cancelled).
		Dur("duration", time.Since(start)).
		Msg("batch finished")
	return summary, nil
}

func (c *Controller) loop(ctx context.Context, session *Session, summary *Summary, observer Observer) error {
	chain := c.Chain.Clone()
	ctl := steps.Control{Cancelled: session.CancelRequested, SubProgress: observer.SubProgress}
	sleep := c.Sleep
	if sleep == nil {
		sleep = httpclient.Sleep
	}

	session.start(time.Now())
	remaining, err := c.remaining(ctx, session)
	if err != nil {
		return err
	}
	observer.Started(StartInfo{SessionID: session.ID, Chain: chain.Name, Mode: c.Mode, QueueSize: remaining})
	c.Logger.Info().Str("chain", chain.Name).Str("mode", string(c.Mode)).Int("queue", remaining).Msg("batch started")

	if remaining == 0 {
		observer.Progress(0, 1)
		err := c.runItem(ctx, session, chain, nil, 1, 1, ctl, observer)
		if errors.Is(err, steps.ErrCancelled) {
			summary.Cancelled = true
			return nil
		}
		if err != nil {
			summary.Failures = append(summary.Failures, ItemFailure{Index: 1, Err: err})
			if c.FailurePolicy != FailureContinue {
				return err
			}
		}
		session.advance()
		observer.Progress(1, 1)
		return nil
	}

	for {
		if session.CancelRequested() {
			summary.Cancelled = true
			c.Logger.Info().Int("processed", session.Processed()).Msg("batch cancelled")
			return nil
		}

		remaining, err := c.remaining(ctx, session)
		if err != nil {
			return err
		}
		if remaining == 0 {
			return nil
		}

		processed := session.Processed()
		observer.Progress(processed, processed+remaining)

		position := 0
		if c.Mode == ModePositional {
			position = processed
		}
		item, err := session.Queue.At(ctx, position)
		if err != nil {
			return fmt.Errorf("read queue item %d: %w", position, err)
		}

		index, total := processed+1, processed+remaining
		runErr := c.runItem(ctx, session, chain, item, index, total, ctl, observer)
		if errors.Is(runErr, steps.ErrCancelled) {
			summary.Cancelled = true
			c.Logger.Info().Int("processed", processed).Int("index", index).Msg("batch cancelled mid-item")
			return nil
		}
		if runErr != nil {
			summary.Failures = append(summary.Failures, ItemFailure{Index: index, Item: item, Err: runErr})
			if c.FailurePolicy != FailureContinue {
				return runErr
			}
		}

		if c.Mode == ModeAutoRemove {
			if err := c.removeProcessedHead(ctx, session, item); err != nil {
				return fmt.Errorf("remove processed item: %w", err)
			}
		}
		processed = session.advance()

		remaining, err = c.remaining(ctx, session)
		if err != nil {
			return err
		}
		observer.Progress(processed, processed+remaining)

		if session.CancelRequested() {
			summary.Cancelled = true
			c.Logger.Info().Int("processed", processed).Msg("batch cancelled")
			return nil
		}
		if remaining > 0 {
			if err := sleep(ctx, c.ItemWait); err != nil {
				return err
			}
		}
	}
}

func (c *Controller) runItem(ctx context.Context, session *Session, chain *models.Chain, item any, index, total int, ctl steps.Control, observer Observer) error {
	exec := models.NewExecutionContext(item, index, total)
	started := time.Now()

	c.Logger.Info().Int("index", index).Int("total", total).Msg("processing item")
	err := c.Runner.Run(ctx, chain, exec, ctl)

	outcome := ItemOutcome{
		SessionID: session.ID,
		Index:     index,
		Total:     total,
		Item:      item,
		Exec:      exec,
		Err:       err,
		Duration:  time.Since(started),
	}
	observer.ItemFinished(outcome)

	if errors.Is(err, steps.ErrCancelled) {
		metrics.ItemProcessed(metrics.OutcomeCancelled)
		return err
	}
	if err != nil {
		metrics.ItemProcessed(metrics.OutcomeFailure)
		c.Logger.Error().Err(err).Int("index", index).Msg("item failed")
		return err
	}
	metrics.ItemProcessed(metrics.OutcomeSuccess)
	return nil
}

// removeProcessedHead drops item from the head of the queue. An item that was
// already removed by someone else while its chain ran is not an error; the
// head is left alone when it no longer holds item.
func (c *Controller) removeProcessedHead(ctx context.Context, session *Session, item any) error {
	head, err := session.Queue.At(ctx, 0)
	if errors.Is(err, queue.ErrOutOfRange) {
		c.Logger.Debug().Msg("processed item already removed from the queue")
		return nil
	}
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(head, item) {
		c.Logger.Debug().Msg("queue head changed during the run; leaving it in place")
		return nil
	}
	err = session.Queue.RemoveHead(ctx)
	if errors.Is(err, queue.ErrOutOfRange) {
		c.Logger.Debug().Msg("processed item already removed from the queue")
		return nil
	}
	return err
}

// remaining returns how many items are still to be processed.
func (c *Controller) remaining(ctx context.Context, session *Session) (int, error) {
	n, err := session.Queue.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("read queue length: %w", err)
	}
	if c.Mode == ModePositional {
		n -= session.Processed()
		if n < 0 {
			n = 0
		}
	}
	return n, nil
}

// watchLease cancels the session when the lease is taken over.
func (c *Controller) watchLease(session *Session, lost <-chan struct{}, done <-chan struct{}) {
	select {
	case <-lost:
		c.Logger.Error().Str("lock", c.Lease.Name()).Msg("run lock lost; stopping after the current step")
		session.Cancel()
	case <-done:
	}
}

func (c *Controller) validate(session *Session) error {
	if c.Chain == nil || len(c.Chain.Steps) == 0 {
		return ErrChainRequired
	}
	if session == nil || session.Queue == nil {
		return ErrSessionRequired
	}
	if c.Mode == "" {
		c.Mode = ModeAutoRemove
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Mode)
	}
	if c.FailurePolicy == "" {
		c.FailurePolicy = FailureAbort
	}
	if !c.FailurePolicy.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPolicy, c.FailurePolicy)
	}
	return nil
}

func (c *Controller) observer() Observer {
	if c.Observer == nil {
		return NopObserver{}
	}
	return c.Observer
}
