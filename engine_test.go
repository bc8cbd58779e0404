package phoneAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/phoneAuth/otp"
	"github.com/MrEthical07/phoneAuth/sms"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeUserProvider struct {
	mu      sync.Mutex
	byID    map[string]UserRecord
	byPhone map[string]string
	seq     int
	calls   atomic.Int64

	lookupErr error
}

func newFakeUserProvider() *fakeUserProvider {
	return &fakeUserProvider{
		byID:    make(map[string]UserRecord),
		byPhone: make(map[string]string),
	}
}

func (p *fakeUserProvider) Calls() int64 {
	return p.calls.Load()
}

func (p *fakeUserProvider) GetUserByPhone(_ context.Context, phone string) (UserRecord, error) {
	p.calls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lookupErr != nil {
		return UserRecord{}, p.lookupErr
	}
	id, ok := p.byPhone[phone]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return p.byID[id], nil
}

func (p *fakeUserProvider) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	p.calls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (p *fakeUserProvider) CreateUser(_ context.Context, in CreateUserInput) (UserRecord, error) {
	p.calls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byPhone[in.Phone]; ok {
		return UserRecord{}, ErrAccountExists
	}
	p.seq++
	u := UserRecord{
		UserID:       fmt.Sprintf("u%d", p.seq),
		Phone:        in.Phone,
		Nickname:     in.Nickname,
		Avatar:       in.Avatar,
		PasswordHash: in.PasswordHash,
		CreatedAt:    time.Now(),
	}
	p.byID[u.UserID] = u
	p.byPhone[u.Phone] = u.UserID
	return u, nil
}

func (p *fakeUserProvider) RecordLogin(_ context.Context, userID string, at time.Time) error {
	p.calls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.LastLoginAt = at
	p.byID[userID] = u
	return nil
}

func (p *fakeUserProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byID)
}

type testHarness struct {
	engine *Engine
	users  *fakeUserProvider
	sms    *sms.Recorder
	store  *otp.MemoryStore
	clock  *fakeClock
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

func newTestEngine(t *testing.T, mutate ...func(*Builder)) *testHarness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	h := &testHarness{
		users: newFakeUserProvider(),
		sms:   sms.NewRecorder(),
		store: otp.NewMemoryStore(),
		clock: newFakeClock(),
		mr:    mr,
		rdb:   rdb,
	}

	cfg := validTestConfig()
	cfg.OTP.PurgeInterval = 0

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithOTPStore(h.store).
		WithUserProvider(h.users).
		WithSMSSender(h.sms).
		WithClock(h.clock.Now)
	for _, fn := range mutate {
		fn(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	h.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return h
}

func (h *testHarness) sendCode(t *testing.T, phone string) string {
	t.Helper()
	if _, err := h.engine.SendCode(context.Background(), phone); err != nil {
		t.Fatalf("send code: %v", err)
	}
	code, ok := h.sms.Last(phone)
	if !ok {
		t.Fatalf("no code delivered to %s", phone)
	}
	return code
}

func (h *testHarness) loginWithCode(t *testing.T, phone string) *LoginResult {
	t.Helper()
	code := h.sendCode(t, phone)
	res, err := h.engine.LoginWithCode(context.Background(), LoginRequest{Phone: phone, Code: code})
	if err != nil {
		t.Fatalf("login with code: %v", err)
	}
	return res
}

func wrongCode(code string) string {
	if strings.HasPrefix(code, "0") {
		return "1" + code[1:]
	}
	return "0" + code[1:]
}

func requireCodeError(t *testing.T, err error, want error) *CodeError {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	var cerr *CodeError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CodeError, got %T", err)
	}
	return cerr
}

func TestSendCodeDeliversAndHidesCode(t *testing.T) {
	h := newTestEngine(t)
	phone := "+8613800001234"

	res, err := h.engine.SendCode(context.Background(), "+86 138-0000-1234")
	if err != nil {
		t.Fatalf("send code: %v", err)
	}
	if res.DevCode != "" {
		t.Fatalf("code returned to client without ReturnCodeToClient")
	}
	if want := h.clock.Now().Add(5 * time.Minute); !res.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, res.ExpiresAt)
	}

	code, ok := h.sms.Last(phone)
	if !ok || len(code) != 6 {
		t.Fatalf("expected 6 digit code for normalized phone, got %q", code)
	}
}

func TestSendCodeRejectsInvalidPhone(t *testing.T) {
	h := newTestEngine(t)

	for _, raw := range []string{"", "abc", "+12", "+1234567890123456"} {
		if _, err := h.engine.SendCode(context.Background(), raw); !errors.Is(err, ErrInvalidPhone) {
			t.Fatalf("phone %q: expected ErrInvalidPhone, got %v", raw, err)
		}
	}
	if h.sms.Count() != 0 {
		t.Fatalf("expected no sends")
	}
}

func TestSendCodeResendInterval(t *testing.T) {
	h := newTestEngine(t)
	phone := "+8613800001234"
	first := h.sendCode(t, phone)

	h.clock.Advance(20 * time.Second)
	_, err := h.engine.SendCode(context.Background(), phone)
	cerr := requireCodeError(t, err, ErrCodeRateLimited)
	if cerr.RetryAfter != 40*time.Second {
		t.Fatalf("expected 40s retry, got %v", cerr.RetryAfter)
	}

	h.clock.Advance(40 * time.Second)
	second := h.sendCode(t, phone)
	if h.sms.Count() != 2 {
		t.Fatalf("expected 2 sends, got %d", h.sms.Count())
	}

	// The first code was replaced.
	if first != second {
		_, err = h.engine.LoginWithCode(context.Background(), LoginRequest{Phone: phone, Code: first})
		requireCodeError(t, err, ErrCodeMismatch)
	}
}

func TestSendCodeIPThrottle(t *testing.T) {
	h := newTestEngine(t, func(b *Builder) {
		b.config.Security.MaxSendsPerIP = 2
	})
	ctx := WithClientIP(context.Background(), "203.0.113.9")

	for i := 0; i < 2; i++ {
		if _, err := h.engine.SendCode(ctx, fmt.Sprintf("+861380000%04d", i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	h.mr.FastForward(20 * time.Minute)
	_, err := h.engine.SendCode(ctx, "+8613800009999")
	cerr := requireCodeError(t, err, ErrCodeRateLimited)
	if cerr.RetryAfter != 40*time.Minute {
		t.Fatalf("expected retry after the rest of the window, got %v", cerr.RetryAfter)
	}

	// Another address has its own budget.
	other := WithClientIP(context.Background(), "198.51.100.4")
	if _, err := h.engine.SendCode(other, "+8613800009999"); err != nil {
		t.Fatalf("send from other ip: %v", err)
	}
}

func TestSendCodeIPThrottleFailsOpenWithoutRedis(t *testing.T) {
	h := newTestEngine(t, func(b *Builder) {
		b.config.Security.MaxSendsPerIP = 1
	})
	h.mr.Close()

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	for i := 0; i < 3; i++ {
		if _, err := h.engine.SendCode(ctx, fmt.Sprintf("+861380000%04d", i)); err != nil {
			t.Fatalf("send %d with redis down: %v", i, err)
		}
	}
}

func TestSendCodeSMSFailureRollsBack(t *testing.T) {
	h := newTestEngine(t)
	phone := "+8613800001234"

	h.sms.Err = errors.New("gateway down")
	_, err := h.engine.SendCode(context.Background(), phone)
	if !errors.Is(err, ErrSMSUnavailable) {
		t.Fatalf("expected ErrSMSUnavailable, got %v", err)
	}
	if h.store.Len() != 0 {
		t.Fatalf("expected record removed after failed delivery")
	}

	h.sms.Err = nil
	h.sendCode(t, phone)
}

type readFailingStore struct {
	*otp.MemoryStore
}

func (s readFailingStore) Get(context.Context, string) (*otp.Record, error) {
	return nil, errors.New("store offline")
}

func TestSendCodeFailsOpenOnStoreRead(t *testing.T) {
	h := newTestEngine(t, func(b *Builder) {
		b.WithOTPStore(readFailingStore{otp.NewMemoryStore()}).WithMetricsEnabled(true)
	})

	if _, err := h.engine.SendCode(context.Background(), "+8613800001234"); err != nil {
		t.Fatalf("expected send allowed on store read failure, got %v", err)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricStoreFailOpen]; got != 1 {
		t.Fatalf("expected one fail-open, got %d", got)
	}
}

func TestSendCodeDevShortcuts(t *testing.T) {
	h := newTestEngine(t, func(b *Builder) {
		b.config.OTP.FixedCode = "123456"
		b.config.OTP.ReturnCodeToClient = true
	})

	res, err := h.engine.SendCode(context.Background(), "+8613800001234")
	if err != nil {
		t.Fatalf("send code: %v", err)
	}
	if res.DevCode != "123456" {
		t.Fatalf("expected fixed dev code, got %q", res.DevCode)
	}
	if _, err := h.engine.LoginWithCode(context.Background(), LoginRequest{Phone: "+8613800001234", Code: "123456"}); err != nil {
		t.Fatalf("login with fixed code: %v", err)
	}
}

func TestLoginWithCodeCreatesAccount(t *testing.T) {
	h := newTestEngine(t)

	res := h.loginWithCode(t, "+8613800001234")
	if !res.Created {
		t.Fatalf("expected first login to create account")
	}
	if res.User.Nickname != "Reader_1234" {
		t.Fatalf("unexpected default nickname %q", res.User.Nickname)
	}
	if res.Token == "" || !res.ExpiresAt.Equal(h.clock.Now().Add(24*time.Hour)) {
		t.Fatalf("unexpected token result %+v", res)
	}
	if res.User.LastLoginAt.IsZero() {
		t.Fatalf("expected last login recorded")
	}

	h.clock.Advance(time.Minute)
	again := h.loginWithCode(t, "+8613800001234")
	if again.Created || again.User.UserID != res.User.UserID {
		t.Fatalf("expected existing account on second login")
	}
	if h.users.count() != 1 {
		t.Fatalf("expected one account, got %d", h.users.count())
	}
}

func TestLoginWithCodeNicknameTruncated(t *testing.T) {
	h := newTestEngine(t)
	phone := "+8613800001234"
	code := h.sendCode(t, phone)

	res, err := h.engine.LoginWithCode(context.Background(), LoginRequest{
		Phone:    phone,
		Code:     code,
		Nickname: "  " + strings.Repeat("読", 40) + "  ",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got := []rune(res.User.Nickname); len(got) != 32 {
		t.Fatalf("expected 32 rune nickname, got %d", len(got))
	}
}

func TestLoginWithCodeAutoCreateDisabled(t *testing.T) {
	h := newTestEngine(t, func(b *Builder) {
		b.config.Account.AutoCreateOnCodeLogin = false
	})
	phone := "+8613800001234"
	code := h.sendCode(t, phone)

	_, err := h.engine.LoginWithCode(context.Background(), LoginRequest{Phone: phone, Code: code})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestLoginWithCodeNotRequested(t *testing.T) {
	h := newTestEngine(t)

	_, err := h.engine.LoginWithCode(context.Background(), LoginRequest{Phone: "+8613800001234", Code: "123456"})
	requireCodeError(t, err, ErrCodeNotRequested)
}

func TestLoginWithCodeInvalidFormatKeepsAttempts(t *testing.T) {
	h := newTestEngine(t)
	phone := "+8613800001234"
	code := h.sendCode(t, phone)

	for _, bad := range []string{"", "12ab56", "12345678901"} {
		_, err := h.engine.LoginWithCode(context.Background(), LoginRequest{Phone: phone, Code: bad})
		if !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("code %q: expected ErrInvalidCode, got %v", bad, err)
		}
	}

	_, err := h.engine.LoginWithCode(context.Background(), LoginRequest{Phone: phone, Code: wrongCode(code)})
	cerr := requireCodeError(t, err, ErrCodeMismatch)
	if cerr.AttemptsRemaining != 4 {
		t.Fatalf("expected 4 attempts remaining, got %d", cerr.AttemptsRemaining)
	}
}

func TestLoginWithCodeLockoutAfterFiveMismatches(t *testing.T) {
	h := newTestEngine(t, func(b *Builder) { b.WithMetricsEnabled(true) })
	phone := "+8613800001234"
	code := h.sendCode(t, phone)
	bad := wrongCode(code)

	for i := 1; i <= 4; i++ {
		_, err := h.engine.LoginWithCode(context.Background(), LoginRequest{Phone: phone, Code: bad})
		cerr := requireCodeError(t, err, ErrCodeMismatch)
		if cerr.AttemptsRemaining != 5-i {
			t.Fatalf("attempt %d: expected %d remaining, got %d", i, 5-i, cerr.AttemptsRemaining)
		}
	}

	_, err := h.engine.LoginWithCode(context.Background(), LoginRequest{Phone: phone, Code: bad})
	cerr := requireCodeError(t, err, ErrCodeLocked)
	if cerr.RetryAfter != 10*time.Minute {
		t.Fatalf("expected 10m lock, got %v", cerr.RetryAfter)
	}

	// Even the right code is refused while locked.
	h.clock.Advance(time.Minute)
	_, err = h.engine.LoginWithCode(context.Background(), LoginRequest{Phone: phone, Code: code})
	cerr = requireCodeError(t, err, ErrCodeLocked)
	if cerr.RetryAfter != 9*time.Minute {
		t.Fatalf("expected 9m remaining, got %v", cerr.RetryAfter)
	}

	_, err = h.engine.SendCode(context.Background(), phone)
	requireCodeError(t, err, ErrCodeLocked)

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricLockoutTriggered] != 1 || snap.Counters[MetricCodeMismatch] != 4 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}

	// Lock lapses, a new code clears it.
	h.clock.Advance(9 * time.Minute)
	fresh := h.sendCode(t, phone)
	if _, err := h.engine.LoginWithCode(context.Background(), LoginRequest{Phone: phone, Code: fresh}); err != nil {
		t.Fatalf("login after reissue: %v", err)
	}
}

func TestLoginWithCodeExpired(t *testing.T) {
	h := newTestEngine(t)
	phone := "+8613800001234"
	code := h.sendCode(t, phone)

	h.clock.Advance(5*time.Minute + time.Second)
	_, err := h.engine.LoginWithCode(context.Background(), LoginRequest{Phone: phone, Code: code})
	requireCodeError(t, err, ErrCodeExpired)
}

func TestLoginWithCodeSingleUse(t *testing.T) {
	h := newTestEngine(t)
	phone := "+8613800001234"
	code := h.sendCode(t, phone)

	const n = 16
	var wg sync.WaitGroup
	var success atomic.Int32
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := h.engine.LoginWithCode(context.Background(), LoginRequest{Phone: phone, Code: code}); err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := success.Load(); got != 1 {
		t.Fatalf("expected exactly one successful login, got %d", got)
	}
	if h.users.count() != 1 {
		t.Fatalf("expected one account, got %d", h.users.count())
	}
}

func TestLoginWithCodeUserStoreFailure(t *testing.T) {
	h := newTestEngine(t)
	phone := "+8613800001234"
	code := h.sendCode(t, phone)

	h.users.lookupErr = errors.New("db offline")
	_, err := h.engine.LoginWithCode(context.Background(), LoginRequest{Phone: phone, Code: code})
	if !errors.Is(err, ErrUserStoreUnavailable) {
		t.Fatalf("expected ErrUserStoreUnavailable, got %v", err)
	}
}

func TestAuditEventsMaskPhoneAndOmitCode(t *testing.T) {
	sink := NewChannelSink(64)
	h := newTestEngine(t, func(b *Builder) {
		b.config.Audit.Enabled = true
		b.config.Audit.BufferSize = 64
		b.WithAuditSink(sink)
	})
	phone := "+8613800001234"
	ctx := WithRequestID(WithClientIP(context.Background(), "203.0.113.9"), "req-1")

	if _, err := h.engine.SendCode(ctx, phone); err != nil {
		t.Fatalf("send code: %v", err)
	}
	code, _ := h.sms.Last(phone)
	if _, err := h.engine.LoginWithCode(ctx, LoginRequest{Phone: phone, Code: wrongCode(code)}); err == nil {
		t.Fatalf("expected mismatch")
	}
	if _, err := h.engine.LoginWithCode(ctx, LoginRequest{Phone: phone, Code: code}); err != nil {
		t.Fatalf("login: %v", err)
	}
	h.engine.Close()

	var types []string
	for len(sink.Events()) > 0 {
		ev := <-sink.Events()
		types = append(types, ev.EventType)
		if ev.Phone != "****1234" {
			t.Fatalf("expected masked phone, got %q", ev.Phone)
		}
		if ev.IP != "203.0.113.9" || ev.RequestID != "req-1" {
			t.Fatalf("missing request context on %s", ev.EventType)
		}
		for _, v := range ev.Metadata {
			if strings.Contains(v, code) {
				t.Fatalf("code leaked in %s metadata", ev.EventType)
			}
		}
	}

	want := []string{
		auditEventSendCode,
		auditEventCodeLoginFailure,
		auditEventAccountCreated,
		auditEventCodeLoginSuccess,
	}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected audit sequence %v", types)
	}
}

func TestPurgeExpiredCodes(t *testing.T) {
	h := newTestEngine(t, func(b *Builder) { b.WithMetricsEnabled(true) })
	h.sendCode(t, "+8613800001234")
	h.sendCode(t, "+8613800005678")

	n, err := h.engine.PurgeExpiredCodes(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected nothing purged yet, got %d %v", n, err)
	}

	h.clock.Advance(6 * time.Minute)
	n, err = h.engine.PurgeExpiredCodes(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("expected 2 purged, got %d %v", n, err)
	}
	if h.store.Len() != 0 {
		t.Fatalf("expected empty store")
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricOTPPurged]; got != 2 {
		t.Fatalf("expected purge metric 2, got %d", got)
	}
}

func TestProfileHidesPasswordHash(t *testing.T) {
	h := newTestEngine(t)
	phone := "+8613800001234"
	code := h.sendCode(t, phone)

	res, err := h.engine.Register(context.Background(), RegisterRequest{Phone: phone, Code: code, Password: "correct-horse-1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	user, err := h.engine.Profile(context.Background(), res.User.UserID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if user.PasswordHash != "" || user.Phone != phone {
		t.Fatalf("unexpected profile %+v", user)
	}

	if _, err := h.engine.Profile(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSecurityReportShowsDevShortcuts(t *testing.T) {
	h := newTestEngine(t, func(b *Builder) {
		b.config.OTP.FixedCode = "000000"
	})

	r := h.engine.SecurityReport()
	if !r.FixedCodeActive || r.CodeReturnedToUser {
		t.Fatalf("unexpected dev flags %+v", r)
	}
	if r.OTPStore != "memory" || r.SigningAlgorithm != "hs256" || !r.RateLimitingActive {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.PurgeJanitorActive {
		t.Fatalf("janitor should be off with zero interval")
	}
}
