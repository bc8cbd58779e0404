package userstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	phoneAuth "github.com/MrEthical07/phoneAuth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMemoryCreateAndLookup(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := NewMemory(WithClock(func() time.Time { return created }))
	ctx := context.Background()

	u, err := m.CreateUser(ctx, phoneAuth.CreateUserInput{
		Phone:    "+8613800001234",
		Nickname: "Reader_1234",
		Avatar:   "/static/a.png",
	})
	require.NoError(t, err)
	_, err = uuid.Parse(u.UserID)
	require.NoError(t, err)
	require.Equal(t, created, u.CreatedAt)

	byPhone, err := m.GetUserByPhone(ctx, "+8613800001234")
	require.NoError(t, err)
	require.Equal(t, u, byPhone)

	byID, err := m.GetUserByID(ctx, u.UserID)
	require.NoError(t, err)
	require.Equal(t, u, byID)
}

func TestMemoryNotFound(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.GetUserByPhone(ctx, "+8613800001234")
	require.ErrorIs(t, err, phoneAuth.ErrUserNotFound)
	_, err = m.GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, phoneAuth.ErrUserNotFound)
	require.ErrorIs(t, m.RecordLogin(ctx, "missing", time.Now()), phoneAuth.ErrUserNotFound)
}

func TestMemoryRecordLogin(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	u, err := m.CreateUser(ctx, phoneAuth.CreateUserInput{Phone: "+8613800001234"})
	require.NoError(t, err)

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.RecordLogin(ctx, u.UserID, at))

	got, err := m.GetUserByID(ctx, u.UserID)
	require.NoError(t, err)
	require.Equal(t, at, got.LastLoginAt)
}

func TestMemoryConcurrentCreateSinglePhone(t *testing.T) {
	m := NewMemory()

	const n = 32
	var wg sync.WaitGroup
	var ok, dup atomic.Int32
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := m.CreateUser(context.Background(), phoneAuth.CreateUserInput{Phone: "+8613800001234"})
			switch {
			case err == nil:
				ok.Add(1)
			case err == phoneAuth.ErrAccountExists:
				dup.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, ok.Load())
	require.EqualValues(t, n-1, dup.Load())
	require.Equal(t, 1, m.Len())
}

func TestMemoryHonoursCancelledContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.CreateUser(ctx, phoneAuth.CreateUserInput{Phone: "+8613800001234"})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, m.Len())
}

func TestMemoryBacksEngineCodeLogin(t *testing.T) {
	cfg := phoneAuth.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.OTP.FixedCode = "246810"
	cfg.OTP.PurgeInterval = 0

	users := NewMemory()
	engine, err := phoneAuth.New().WithConfig(cfg).WithUserProvider(users).Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	ctx := context.Background()
	_, err = engine.SendCode(ctx, "+8613800001234")
	require.NoError(t, err)

	res, err := engine.LoginWithCode(ctx, phoneAuth.LoginRequest{Phone: "+8613800001234", Code: "246810"})
	require.NoError(t, err)
	require.True(t, res.Created)
	require.Equal(t, "Reader_1234", res.User.Nickname)

	stored, err := users.GetUserByID(ctx, res.User.UserID)
	require.NoError(t, err)
	require.False(t, stored.LastLoginAt.IsZero())
}
