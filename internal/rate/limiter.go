package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	EnableIPThrottle    bool
	MaxSendsPerIP       int
	SendWindow          time.Duration
	MaxPasswordAttempts int
	PasswordCooldown    time.Duration
}

// window is one fixed-window counter family.
type window struct {
	prefix string
	limit  int64
	ttl    time.Duration
}

func (w window) key(id string) string { return w.prefix + id }

// Limiter enforces per-IP send-code throttling and per-phone password login
// budgets using Redis counters.
type Limiter struct {
	rdb      redis.UniversalClient
	perIP    bool
	sends    window
	pwPhone  window
	pwClient window
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(rdb redis.UniversalClient, cfg Config) *Limiter {
	pw := int64(cfg.MaxPasswordAttempts)
	return &Limiter{
		rdb:      rdb,
		perIP:    cfg.EnableIPThrottle,
		sends:    window{prefix: "rs:", limit: int64(cfg.MaxSendsPerIP), ttl: cfg.SendWindow},
		pwPhone:  window{prefix: "rp:", limit: pw, ttl: cfg.PasswordCooldown},
		pwClient: window{prefix: "rpi:", limit: pw, ttl: cfg.PasswordCooldown},
	}
}

// AllowSend counts one send-code request from ip. Once the window budget is
// spent it returns ErrRateLimited and the time left in the window. A disabled
// throttle or empty ip always passes.
func (l *Limiter) AllowSend(ctx context.Context, ip string) (time.Duration, error) {
	if !l.perIP || ip == "" || l.sends.limit <= 0 {
		return 0, nil
	}
	n, left, err := l.hit(ctx, l.sends, ip)
	if err != nil {
		return 0, err
	}
	if n > l.sends.limit {
		return left, ErrRateLimited
	}
	return 0, nil
}

// CheckPasswordLogin checks whether phone (and ip, when IP throttling is on)
// is within the failed password attempt budget. It does not count.
func (l *Limiter) CheckPasswordLogin(ctx context.Context, phone, ip string) error {
	for _, c := range l.passwordCounters(phone, ip) {
		n, err := l.current(ctx, c.w.key(c.id))
		if err != nil {
			return err
		}
		if n >= c.w.limit {
			return ErrRateLimited
		}
	}
	return nil
}

// IncrementPasswordLogin records a failed password login.
func (l *Limiter) IncrementPasswordLogin(ctx context.Context, phone, ip string) error {
	for _, c := range l.passwordCounters(phone, ip) {
		n, _, err := l.hit(ctx, c.w, c.id)
		if err != nil {
			return err
		}
		if n > c.w.limit {
			return ErrRateLimited
		}
	}
	return nil
}

// ResetPasswordLogin clears the failed-login counters after a successful login.
func (l *Limiter) ResetPasswordLogin(ctx context.Context, phone, ip string) error {
	counters := l.passwordCounters(phone, ip)
	if len(counters) == 0 {
		return nil
	}
	keys := make([]string, 0, len(counters))
	for _, c := range counters {
		keys = append(keys, c.w.key(c.id))
	}
	if err := l.rdb.Del(ctx, keys...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

type counterRef struct {
	w  window
	id string
}

// passwordCounters returns nothing when the attempt budget is zero, which
// turns password limiting off.
func (l *Limiter) passwordCounters(phone, ip string) []counterRef {
	if l.pwPhone.limit <= 0 {
		return nil
	}
	refs := []counterRef{{l.pwPhone, phone}}
	if l.perIP && ip != "" {
		refs = append(refs, counterRef{l.pwClient, ip})
	}
	return refs
}

func (l *Limiter) current(ctx context.Context, key string) (int64, error) {
	n, err := l.rdb.Get(ctx, key).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, unavailable(err)
	}
	return n, nil
}

// hit increments the counter for id and starts its window on the first hit.
// A key left without a TTL by an earlier partial failure gets one here too.
// It returns the new count and the time left in the window.
func (l *Limiter) hit(ctx context.Context, w window, id string) (int64, time.Duration, error) {
	key := w.key(id)
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, unavailable(err)
	}
	left := ttl.Val()
	if left < 0 {
		if err := l.rdb.Expire(ctx, key, w.ttl).Err(); err != nil {
			return 0, 0, unavailable(err)
		}
		left = w.ttl
	}
	return incr.Val(), left, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}
