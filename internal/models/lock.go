package models

import "time"

// LockRecord is the shared lease record guarding batch runs.
type LockRecord struct {
	// OwnerID identifies the instance holding the lease.
	OwnerID string `json:"ownerId"`

	// Timestamp is when the owner last wrote the record.
	Timestamp time.Time `json:"timestamp"`
}

// Age returns how long ago the record was written.
func (r *LockRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.Timestamp)
}

// Expired reports whether the record is older than ttl.
func (r *LockRecord) Expired(now time.Time, ttl time.Duration) bool {
	return r.Age(now) >= ttl
}
