package phoneAuth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	internalaudit "github.com/MrEthical07/phoneAuth/internal/audit"
	"github.com/MrEthical07/phoneAuth/internal/rate"
	"github.com/MrEthical07/phoneAuth/jwt"
	"github.com/MrEthical07/phoneAuth/otp"
	"github.com/MrEthical07/phoneAuth/password"
	"github.com/MrEthical07/phoneAuth/sms"
)

// Engine is the phone authentication service. It composes the OTP policy,
// the token issuer, the password hasher, the SMS sender and the caller's
// user store. Build one with [New]; it is safe for concurrent use.
type Engine struct {
	config       Config
	otpStore     otp.Store
	policy       *otp.Policy
	jwtManager   *jwt.Manager
	passwordHash password.Hasher
	sender       sms.Sender
	userProvider UserProvider
	rateLimiter  *rate.Limiter
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	logger       *slog.Logger
	clock        func() time.Time

	janitorStop chan struct{}
	janitorDone chan struct{}
	closeOnce   sync.Once
}

// Close stops the purge janitor and drains pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.janitorStop != nil {
			close(e.janitorStop)
			<-e.janitorDone
		}
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped returns how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters. It is empty when
// metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Profile returns the stored account for userID.
func (e *Engine) Profile(ctx context.Context, userID string) (UserRecord, error) {
	if e == nil || e.userProvider == nil {
		return UserRecord{}, ErrEngineNotReady
	}
	if userID == "" {
		return UserRecord{}, ErrUserNotFound
	}
	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}
	user.PasswordHash = ""
	return user, nil
}

// PurgeExpiredCodes removes dead OTP records now. Stores with native expiry
// report zero. The janitor calls it on OTPConfig.PurgeInterval.
func (e *Engine) PurgeExpiredCodes(ctx context.Context) (int, error) {
	if e == nil || e.policy == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.policy.Purge(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.metrics.Add(MetricOTPPurged, uint64(n))
	}
	return n, nil
}

func (e *Engine) startJanitor(interval time.Duration) {
	e.janitorStop = make(chan struct{})
	e.janitorDone = make(chan struct{})

	go func() {
		defer close(e.janitorDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				n, err := e.PurgeExpiredCodes(ctx)
				cancel()
				if err != nil {
					e.logger.Warn("otp purge failed", slog.Any("error", err))
				} else if n > 0 {
					e.logger.Debug("otp records purged", slog.Int("count", n))
				}
			case <-e.janitorStop:
				return
			}
		}
	}()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now()
}
