// Package lock implements the lease that keeps two batch runs from
// processing the same queue at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/promptchain/internal/models"
)

// Lock errors.
var (
	ErrInvalidTiming = errors.New("renew interval must be positive and shorter than the ttl")
	ErrNotHeld       = errors.New("lease is not held")
)

// Store persists lock records. Every method must be atomic with respect to
// other processes sharing the store.
type Store interface {
	// Get returns the current record, or nil when the lock is free.
	Get(ctx context.Context, name string) (*models.LockRecord, error)
	// TryAcquire claims the lock when it is free, expired at now, or already owned by owner.
	TryAcquire(ctx context.Context, name, owner string, now time.Time, ttl time.Duration) (bool, error)
	// Renew refreshes the timestamp while owner still holds the lock.
	Renew(ctx context.Context, name, owner string, now time.Time) (bool, error)
	// Release deletes the record while owner still holds it.
	Release(ctx context.Context, name, owner string) (bool, error)
	// ForceRelease deletes the record regardless of owner.
	ForceRelease(ctx context.Context, name string) error
}

// Options configures a Lease.
type Options struct {
	// OwnerID identifies this instance. Defaults to a random id.
	OwnerID string

	// TTL is how long a record stays valid without renewal.
	TTL time.Duration

	// RenewInterval is the heartbeat period. Must be shorter than TTL.
	RenewInterval time.Duration

	Logger zerolog.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Lease is a renewable, owner-checked claim on a named lock.
type Lease struct {
	store  Store
	name   string
	owner  string
	ttl    time.Duration
	renew  time.Duration
	logger zerolog.Logger
	now    func() time.Time

	mu   sync.Mutex
	held bool
	stop chan struct{}
	done chan struct{}
	lost chan struct{}
}

// NewLease creates a lease on name.
func NewLease(store Store, name string, opts Options) (*Lease, error) {
	if store == nil {
		return nil, fmt.Errorf("lock store is required")
	}
	if name == "" {
		return nil, fmt.Errorf("lock name is required")
	}
	if opts.RenewInterval <= 0 || opts.TTL <= opts.RenewInterval {
		return nil, fmt.Errorf("%w: ttl=%s renew=%s", ErrInvalidTiming, opts.TTL, opts.RenewInterval)
	}
	if opts.OwnerID == "" {
		opts.OwnerID = uuid.New().String()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Lease{
		store:  store,
		name:   name,
		owner:  opts.OwnerID,
		ttl:    opts.TTL,
		renew:  opts.RenewInterval,
		logger: opts.Logger,
		now:    opts.Now,
		lost:   make(chan struct{}),
	}, nil
}

// Name returns the lock name.
func (l *Lease) Name() string { return l.name }

// OwnerID returns the id written into the record while held.
func (l *Lease) OwnerID() string { return l.owner }

// Acquire claims the lock and starts the heartbeat. It returns false when
// another owner holds a fresh record.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return true, nil
	}

	ok, err := l.store.TryAcquire(ctx, l.name, l.owner, l.now(), l.ttl)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	l.held = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	l.lost = make(chan struct{})
	go l.heartbeat(l.stop, l.done, l.lost)

	l.logger.Debug().Str("lock", l.name).Str("owner", l.owner).Msg("lease acquired")
	return true, nil
}

// Holder returns the record currently stored for the lock.
func (l *Lease) Holder(ctx context.Context) (*models.LockRecord, error) {
	return l.store.Get(ctx, l.name)
}

// Held reports whether this lease believes it holds the lock.
func (l *Lease) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Lost is closed when a renewal finds the record owned by someone else.
func (l *Lease) Lost() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lost
}

// Release stops the heartbeat and deletes the record if this lease still owns it.
func (l *Lease) Release(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		return ErrNotHeld
	}
	l.held = false
	stop, done := l.stop, l.done
	l.mu.Unlock()

	close(stop)
	<-done

	released, err := l.store.Release(ctx, l.name, l.owner)
	if err != nil {
		return err
	}
	if !released {
		l.logger.Warn().Str("lock", l.name).Str("owner", l.owner).Msg("lease was taken over before release")
	}
	return nil
}

func (l *Lease) heartbeat(stop <-chan struct{}, done, lost chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.renew)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.renew)
			ok, err := l.store.Renew(ctx, l.name, l.owner, l.now())
			cancel()
			if err != nil {
				l.logger.Warn().Err(err).Str("lock", l.name).Msg("lease renewal failed")
				continue
			}
			if !ok {
				l.logger.Error().Str("lock", l.name).Str("owner", l.owner).Msg("lease lost")
				close(lost)
				<-stop
				return
			}
		}
	}
}

// MemoryStore is a Store for a single process.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]models.LockRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.LockRecord)}
}

func (s *MemoryStore) Get(ctx context.Context, name string) (*models.LockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[name]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *MemoryStore) TryAcquire(ctx context.Context, name, owner string, now time.Time, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[name]; ok && record.OwnerID != owner && !record.Expired(now, ttl) {
		return false, nil
	}
	s.records[name] = models.LockRecord{OwnerID: owner, Timestamp: now}
	return true, nil
}

func (s *MemoryStore) Renew(ctx context.Context, name, owner string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[name]
	if !ok || record.OwnerID != owner {
		return false, nil
	}
	record.Timestamp = now
	s.records[name] = record
	return true, nil
}

func (s *MemoryStore) Release(ctx context.Context, name, owner string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[name]
	if !ok || record.OwnerID != owner {
		return false, nil
	}
	delete(s.records, name)
	return true, nil
}

func (s *MemoryStore) ForceRelease(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, name)
	return nil
}
