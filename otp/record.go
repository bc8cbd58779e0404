package otp

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Store.Get when no record exists for a phone.
	ErrNotFound = errors.New("otp record not found")
	// ErrStoreUnavailable wraps backend failures of a Store implementation.
	ErrStoreUnavailable = errors.New("otp store unavailable")
	// ErrContention is returned when an optimistic update could not commit after retries.
	ErrContention = errors.New("otp record update contention")
	// ErrInvalidRecord is returned when a record is missing its phone key.
	ErrInvalidRecord = errors.New("invalid otp record")
)

// Record is the OTP state held for one phone number.
//
// LockedUntil is the zero time when no lock is set. Attempts counts consecutive
// failed verifications since the last Issue and never exceeds the policy maximum.
type Record struct {
	Phone           string
	Code            string
	ExpiresAt       time.Time
	Attempts        int
	LockedUntil     time.Time
	LastRequestTime time.Time
}

// Locked reports whether the lock is set and still in the future at now.
func (r *Record) Locked(now time.Time) bool {
	return r != nil && !r.LockedUntil.IsZero() && now.Before(r.LockedUntil)
}

// Expired reports whether now is past the code expiry.
func (r *Record) Expired(now time.Time) bool {
	return r != nil && now.After(r.ExpiresAt)
}

// Dead reports whether both the code and any lock have lapsed, which makes the
// record eligible for purging.
func (r *Record) Dead(now time.Time) bool {
	if r == nil {
		return true
	}
	if !now.After(r.ExpiresAt) {
		return false
	}
	return r.LockedUntil.IsZero() || !now.Before(r.LockedUntil)
}

// RetainUntil is the latest instant at which the record can still influence a
// decision. Stores with native expiry use it as the key deadline.
func (r *Record) RetainUntil() time.Time {
	until := r.ExpiresAt
	if r.LockedUntil.After(until) {
		until = r.LockedUntil
	}
	return until
}

// Action tells a Store what to do with the record after an UpdateFunc returns.
type Action uint8

const (
	// ActionKeep leaves the stored record untouched.
	ActionKeep Action = iota
	// ActionSave persists the (possibly modified) record passed to the UpdateFunc.
	ActionSave
	// ActionDelete removes the record.
	ActionDelete
)

// UpdateFunc inspects and optionally modifies rec in place. rec is nil when no
// record exists; returning ActionSave with a nil rec is treated as ActionKeep.
type UpdateFunc func(rec *Record) (Action, error)

// Store is keyed OTP storage with an atomic per-phone read-modify-write.
//
// Update must guarantee that no other Update or Upsert for the same phone
// interleaves between the read handed to fn and the write of its result.
type Store interface {
	Get(ctx context.Context, phone string) (*Record, error)
	Upsert(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, phone string) error
	Update(ctx context.Context, phone string, fn UpdateFunc) error
}

// Purger is implemented by stores that need explicit removal of dead records.
type Purger interface {
	Purge(ctx context.Context, now time.Time) (int, error)
}

func cloneRecord(r *Record) *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
