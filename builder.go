package phoneAuth

import (
	"errors"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/phoneAuth/internal/audit"
	"github.com/MrEthical07/phoneAuth/internal/rate"
	"github.com/MrEthical07/phoneAuth/jwt"
	"github.com/MrEthical07/phoneAuth/otp"
	"github.com/MrEthical07/phoneAuth/password"
	"github.com/MrEthical07/phoneAuth/sms"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Every collaborator is a strategy chosen at
// startup; a Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	otpStore     otp.Store
	userProvider UserProvider
	sender       sms.Sender
	hasher       password.Hasher
	auditSink    AuditSink
	logger       *slog.Logger
	clock        func() time.Time

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis enables the send and password throttles. When no OTP store is
// set, codes are kept in Redis too.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithOTPStore overrides the OTP record store. Without it the engine uses a
// Redis store when a client is configured and an in-memory store otherwise.
func (b *Builder) WithOTPStore(store otp.Store) *Builder {
	b.otpStore = store
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithSMSSender sets code delivery. Development builds fall back to
// sms.LogSender; production mode requires a sender.
func (b *Builder) WithSMSSender(sender sms.Sender) *Builder {
	b.sender = sender
	return b
}

// WithPasswordHasher overrides the hasher selected by PasswordConfig.Algorithm.
func (b *Builder) WithPasswordHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for the OTP policy, token issuer and audit
// timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if b.sender == nil && cfg.Security.ProductionMode {
		return nil, errors.New("ProductionMode requires an SMS sender")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	// -------- OTP STORE + POLICY --------
	store := b.otpStore
	if store == nil {
		if b.redis != nil {
			store = otp.NewRedisStore(b.redis, cfg.OTP.RedisPrefix, otp.WithRedisClock(clock))
		} else {
			store = otp.NewMemoryStore()
		}
	}

	policy, err := otp.NewPolicy(store, otp.Config{
		ResendInterval: cfg.OTP.ResendInterval,
		CodeTTL:        cfg.OTP.CodeTTL,
		MaxAttempts:    cfg.OTP.MaxAttempts,
		LockDuration:   cfg.OTP.LockDuration,
	}, otp.WithClock(clock), otp.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	// -------- TOKEN ISSUER --------
	jm, err := jwt.NewManager(jwt.Config{
		TokenTTL:      cfg.JWT.TokenTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           clock,
	})
	if err != nil {
		return nil, err
	}

	// -------- PASSWORD HASHER --------
	hasher := b.hasher
	if hasher == nil {
		hasher, err = newPasswordHasher(cfg.Password)
		if err != nil {
			return nil, err
		}
	}

	sender := b.sender
	if sender == nil {
		sender = sms.LogSender{Logger: logger}
	}

	engine := &Engine{
		config:       cloneConfig(cfg),
		otpStore:     store,
		policy:       policy,
		jwtManager:   jm,
		passwordHash: hasher,
		sender:       sender,
		userProvider: b.userProvider,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger,
		clock:   clock,
	}

	if b.redis != nil {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:    cfg.Security.EnableIPThrottle,
			MaxSendsPerIP:       cfg.Security.MaxSendsPerIP,
			SendWindow:          cfg.Security.SendWindow,
			MaxPasswordAttempts: cfg.Security.MaxPasswordAttempts,
			PasswordCooldown:    cfg.Security.PasswordCooldown,
		})
	}

	if _, ok := store.(otp.Purger); ok && cfg.OTP.PurgeInterval > 0 {
		engine.startJanitor(cfg.OTP.PurgeInterval)
	}

	b.built = true

	return engine, nil
}

func newPasswordHasher(cfg PasswordConfig) (password.Hasher, error) {
	switch cfg.Algorithm {
	case "bcrypt":
		return password.NewBcrypt(cfg.BcryptCost, cfg.MinLength), nil
	default:
		return password.NewArgon2(password.Config{
			Memory:           cfg.Memory,
			Time:             cfg.Time,
			Parallelism:      cfg.Parallelism,
			SaltLength:       cfg.SaltLength,
			KeyLength:        cfg.KeyLength,
			MinPasswordBytes: cfg.MinLength,
		})
	}
}
