package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisUpdateRetries = 64

// RedisStore persists records as versioned binary values, one key per phone.
// Keys expire at Record.RetainUntil, so Redis itself purges dead records.
// Update is a WATCH/MULTI optimistic transaction retried on contention.
type RedisStore struct {
	redis      redis.UniversalClient
	prefix     string
	maxRetries int
	now        func() time.Time
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisClock overrides the clock used to derive key TTLs.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRedisRetries sets how many times Update retries an aborted transaction.
func WithRedisRetries(n int) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// NewRedisStore returns a RedisStore writing keys under prefix ("otp" when empty).
func NewRedisStore(redisClient redis.UniversalClient, prefix string, opts ...RedisOption) *RedisStore {
	if prefix == "" {
		prefix = "otp"
	}
	s := &RedisStore{
		redis:      redisClient,
		prefix:     prefix,
		maxRetries: defaultRedisUpdateRetries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(phone string) string {
	return s.prefix + ":" + phone
}

func (s *RedisStore) Get(ctx context.Context, phone string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(phone)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *RedisStore) Upsert(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Phone == "" {
		return ErrInvalidRecord
	}
	encoded, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	key := s.key(rec.Phone)
	ttl := rec.RetainUntil().Sub(s.now())
	if ttl <= 0 {
		err = s.redis.Del(ctx, key).Err()
	} else {
		err = s.redis.Set(ctx, key, encoded, ttl).Err()
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, phone string) error {
	if err := s.redis.Del(ctx, s.key(phone)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

type callbackError struct {
	err error
}

func (e *callbackError) Error() string { return e.err.Error() }

func (s *RedisStore) Update(ctx context.Context, phone string, fn UpdateFunc) error {
	key := s.key(phone)

	for i := 0; i < s.maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			var current *Record

			data, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				// An undecodable value is treated as absent and overwritten on save.
				current, _ = decodeRecord(data)
			}

			action, err := fn(current)
			if err != nil {
				return &callbackError{err: err}
			}

			switch action {
			case ActionSave:
				if current == nil {
					return nil
				}
				current.Phone = phone
				encoded, err := encodeRecord(current)
				if err != nil {
					return &callbackError{err: err}
				}
				ttl := current.RetainUntil().Sub(s.now())
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					if ttl <= 0 {
						pipe.Del(ctx, key)
						return nil
					}
					pipe.Set(ctx, key, encoded, ttl)
					return nil
				})
				return err
			case ActionDelete:
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			var cbErr *callbackError
			if errors.As(err, &cbErr) {
				return cbErr.err
			}
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil
	}

	return ErrContention
}

var _ Store = (*RedisStore)(nil)
