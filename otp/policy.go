package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"math"
	"time"
)

// Config holds the policy timings and thresholds.
type Config struct {
	ResendInterval time.Duration
	CodeTTL        time.Duration
	MaxAttempts    int
	LockDuration   time.Duration
}

// DefaultConfig returns a 60s resend interval, 5m code lifetime, 5 attempts and a 10m lock.
func DefaultConfig() Config {
	return Config{
		ResendInterval: 60 * time.Second,
		CodeTTL:        5 * time.Minute,
		MaxAttempts:    5,
		LockDuration:   10 * time.Minute,
	}
}

// Validate checks that every duration and the attempt cap are positive.
// CodeTTL must cover ResendInterval: record retention follows the code expiry,
// so a shorter TTL would drop the last send time before the interval ends.
func (c Config) Validate() error {
	if c.ResendInterval <= 0 {
		return errors.New("otp ResendInterval must be > 0")
	}
	if c.CodeTTL <= 0 {
		return errors.New("otp CodeTTL must be > 0")
	}
	if c.CodeTTL < c.ResendInterval {
		return errors.New("otp CodeTTL must be >= ResendInterval")
	}
	if c.MaxAttempts <= 0 || c.MaxAttempts > 0xFFFF {
		return errors.New("otp MaxAttempts must be between 1 and 65535")
	}
	if c.LockDuration <= 0 {
		return errors.New("otp LockDuration must be > 0")
	}
	return nil
}

// DenyReason explains why a send was refused.
type DenyReason uint8

const (
	// DenyNone means the send is allowed.
	DenyNone DenyReason = iota
	// DenyLocked means the phone is inside a lockout window.
	DenyLocked
	// DenyTooFrequent means the resend interval has not elapsed.
	DenyTooFrequent
)

func (r DenyReason) String() string {
	switch r {
	case DenyLocked:
		return "locked"
	case DenyTooFrequent:
		return "too_frequent"
	default:
		return "none"
	}
}

// SendDecision is the result of Policy.CanSend.
//
// Degraded is set when the store could not be read and the decision failed open.
type SendDecision struct {
	Allowed    bool
	Reason     DenyReason
	RetryAfter time.Duration
	Degraded   bool
}

// MinutesRemaining returns RetryAfter rounded up to whole minutes.
func (d SendDecision) MinutesRemaining() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(d.RetryAfter.Minutes()))
}

// Outcome is the result class of Policy.Verify.
type Outcome uint8

const (
	OutcomeValid Outcome = iota
	OutcomeNoRecord
	OutcomeLocked
	OutcomeExpired
	OutcomeMismatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeNoRecord:
		return "no_record"
	case OutcomeLocked:
		return "locked"
	case OutcomeExpired:
		return "expired"
	case OutcomeMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// VerifyResult describes one verification attempt.
//
// AttemptsRemaining is only meaningful for OutcomeMismatch. LockTriggered is set
// on the single call whose failure moved the record into lockout.
type VerifyResult struct {
	Outcome           Outcome
	AttemptsRemaining int
	LockedUntil       time.Time
	RetryAfter        time.Duration
	LockTriggered     bool
}

// Policy enforces send throttling, attempt counting and lockout on top of a Store.
type Policy struct {
	store  Store
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Policy.
type Option func(*Policy)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets the logger used for store failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Policy) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPolicy validates cfg and binds it to store.
func NewPolicy(store Store, cfg Config, opts ...Option) (*Policy, error) {
	if store == nil {
		return nil, errors.New("otp store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Policy{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the active policy configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// CanSend reports whether a new code may be sent to phone.
//
// A missing record always allows. A store failure is logged and allows, with
// Degraded set, so an outage cannot block every user.
func (p *Policy) CanSend(ctx context.Context, phone string) SendDecision {
	rec, err := p.store.Get(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return SendDecision{Allowed: true}
		}
		p.logger.WarnContext(ctx, "otp store read failed, allowing send",
			slog.String("phone", MaskPhone(phone)),
			slog.Any("error", err),
		)
		return SendDecision{Allowed: true, Degraded: true}
	}

	now := p.now()
	if rec.Locked(now) {
		return SendDecision{
			Reason:     DenyLocked,
			RetryAfter: rec.LockedUntil.Sub(now),
		}
	}

	next := rec.LastRequestTime.Add(p.cfg.ResendInterval)
	if now.Before(next) {
		return SendDecision{
			Reason:     DenyTooFrequent,
			RetryAfter: next.Sub(now),
		}
	}

	return SendDecision{Allowed: true}
}

// Issue overwrites any record for phone with a fresh code cycle. It is the only
// operation that clears a lock.
func (p *Policy) Issue(ctx context.Context, phone, code string) error {
	if phone == "" || code == "" {
		return ErrInvalidRecord
	}
	now := p.now()
	return p.store.Upsert(ctx, &Record{
		Phone:           phone,
		Code:            code,
		ExpiresAt:       now.Add(p.cfg.CodeTTL),
		Attempts:        0,
		LastRequestTime: now,
	})
}

// Verify checks submitted against the active code for phone in one atomic update.
//
// Order: no record, lock, expiry, exhausted attempts, then a string comparison.
// A match deletes the record. The MaxAttempts-th mismatch sets the lock and is
// reported as OutcomeLocked. The returned error is non-nil only for store failures.
func (p *Policy) Verify(ctx context.Context, phone, submitted string) (VerifyResult, error) {
	var res VerifyResult

	err := p.store.Update(ctx, phone, func(rec *Record) (Action, error) {
		now := p.now()
		res = VerifyResult{}

		if rec == nil {
			res.Outcome = OutcomeNoRecord
			return ActionKeep, nil
		}
		if rec.Locked(now) {
			res.Outcome = OutcomeLocked
			res.LockedUntil = rec.LockedUntil
			res.RetryAfter = rec.LockedUntil.Sub(now)
			return ActionKeep, nil
		}
		if rec.Expired(now) {
			res.Outcome = OutcomeExpired
			return ActionKeep, nil
		}
		// Lock lapsed on a still-live code: stays locked until reissued.
		if rec.Attempts >= p.cfg.MaxAttempts {
			res.Outcome = OutcomeLocked
			res.LockedUntil = rec.LockedUntil
			return ActionKeep, nil
		}

		if subtle.ConstantTimeCompare([]byte(submitted), []byte(rec.Code)) == 1 {
			res.Outcome = OutcomeValid
			return ActionDelete, nil
		}

		rec.Attempts++
		if rec.Attempts >= p.cfg.MaxAttempts {
			rec.LockedUntil = now.Add(p.cfg.LockDuration)
			res.Outcome = OutcomeLocked
			res.LockedUntil = rec.LockedUntil
			res.RetryAfter = p.cfg.LockDuration
			res.LockTriggered = true
			return ActionSave, nil
		}

		res.Outcome = OutcomeMismatch
		res.AttemptsRemaining = p.cfg.MaxAttempts - rec.Attempts
		return ActionSave, nil
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "otp verify update failed",
			slog.String("phone", MaskPhone(phone)),
			slog.Any("error", err),
		)
		return VerifyResult{}, err
	}

	return res, nil
}

// Purge removes dead records when the store needs explicit cleanup. Stores with
// native expiry report zero.
func (p *Policy) Purge(ctx context.Context) (int, error) {
	purger, ok := p.store.(Purger)
	if !ok {
		return 0, nil
	}
	return purger.Purge(ctx, p.now())
}

// MaskPhone keeps the last four characters of phone for logs and audit trails.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
