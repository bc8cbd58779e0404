package userstore

import (
	"context"
	"sync"
	"time"

	phoneAuth "github.com/MrEthical07/phoneAuth"
	"github.com/google/uuid"
)

// Memory keeps accounts in process memory keyed by id and phone.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]phoneAuth.UserRecord
	byPhone map[string]string
	now     func() time.Time
}

// Option configures a Memory store.
type Option func(*Memory)

// WithClock sets the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory returns an empty store.
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		byID:    make(map[string]phoneAuth.UserRecord),
		byPhone: make(map[string]string),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) GetUserByPhone(ctx context.Context, phone string) (phoneAuth.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return phoneAuth.UserRecord{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byPhone[phone]
	if !ok {
		return phoneAuth.UserRecord{}, phoneAuth.ErrUserNotFound
	}
	return m.byID[id], nil
}

func (m *Memory) GetUserByID(ctx context.Context, userID string) (phoneAuth.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return phoneAuth.UserRecord{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[userID]
	if !ok {
		return phoneAuth.UserRecord{}, phoneAuth.ErrUserNotFound
	}
	return u, nil
}

// CreateUser inserts a new account with a random UUID. The phone uniqueness
// check and the insert happen under one lock.
func (m *Memory) CreateUser(ctx context.Context, in phoneAuth.CreateUserInput) (phoneAuth.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return phoneAuth.UserRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byPhone[in.Phone]; ok {
		return phoneAuth.UserRecord{}, phoneAuth.ErrAccountExists
	}

	u := phoneAuth.UserRecord{
		UserID:       uuid.NewString(),
		Phone:        in.Phone,
		Nickname:     in.Nickname,
		Avatar:       in.Avatar,
		PasswordHash: in.PasswordHash,
		CreatedAt:    m.now().UTC(),
	}
	m.byID[u.UserID] = u
	m.byPhone[u.Phone] = u.UserID
	return u, nil
}

func (m *Memory) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[userID]
	if !ok {
		return phoneAuth.ErrUserNotFound
	}
	u.LastLoginAt = at.UTC()
	m.byID[userID] = u
	return nil
}

// Len returns the number of accounts.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

var _ phoneAuth.UserProvider = (*Memory)(nil)
