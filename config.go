package phoneAuth

import (
	"errors"
	"strings"
	"time"
)

// Config holds every tunable of an Engine. Sections mirror the components
// they configure; the Builder clones it so later mutation by the caller has
// no effect on a built Engine.
type Config struct {
	JWT      JWTConfig
	OTP      OTPConfig
	Password PasswordConfig
	Account  AccountConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the session token issuer.
type JWTConfig struct {
	TokenTTL      time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig configures code issuance and the verification policy.
//
// FixedCode and ReturnCodeToClient exist for local development and are
// rejected in production mode.
type OTPConfig struct {
	ResendInterval     time.Duration
	CodeTTL            time.Duration
	MaxAttempts        int
	LockDuration       time.Duration
	CodeDigits         int
	FixedCode          string
	ReturnCodeToClient bool
	PurgeInterval      time.Duration
	RedisPrefix        string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects and tunes the password hasher.
type PasswordConfig struct {
	Algorithm   string // "argon2" (default) or "bcrypt"
	Memory      uint32 // KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	BcryptCost  int
	MinLength   int
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig controls account creation.
type AccountConfig struct {
	AutoCreateOnCodeLogin bool
	AllowRegistration     bool
	NicknamePrefix        string
	DefaultAvatar         string
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds production hardening and throttling switches. The
// throttles need a Redis client and are inactive without one.
type SecurityConfig struct {
	ProductionMode      bool
	EnableIPThrottle    bool
	MaxSendsPerIP       int
	SendWindow          time.Duration
	MaxPasswordAttempts int
	PasswordCooldown    time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the development defaults. The signing key is left
// empty and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			TokenTTL:      24 * time.Hour,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		OTP: OTPConfig{
			ResendInterval: 60 * time.Second,
			CodeTTL:        5 * time.Minute,
			MaxAttempts:    5,
			LockDuration:   10 * time.Minute,
			CodeDigits:     6,
			PurgeInterval:  time.Minute,
			RedisPrefix:    "otp",
		},
		Password: PasswordConfig{
			Algorithm:   "argon2",
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			BcryptCost:  12,
			MinLength:   8,
		},
		Account: AccountConfig{
			AutoCreateOnCodeLogin: true,
			AllowRegistration:     true,
			NicknamePrefix:        "Reader_",
		},
		Security: SecurityConfig{
			ProductionMode:      false,
			EnableIPThrottle:    true,
			MaxSendsPerIP:       20,
			SendWindow:          time.Hour,
			MaxPasswordAttempts: 5,
			PasswordCooldown:    15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks internal consistency and, in production mode, rejects
// development shortcuts and weak parameters.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.TokenTTL <= 0 {
		return errors.New("JWT TokenTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.PrivateKey) == 0 {
		return errors.New("JWT PrivateKey is required")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}

	// OTP
	if c.OTP.ResendInterval <= 0 {
		return errors.New("OTP ResendInterval must be > 0")
	}
	if c.OTP.CodeTTL <= 0 {
		return errors.New("OTP CodeTTL must be > 0")
	}
	if c.OTP.CodeTTL < c.OTP.ResendInterval {
		return errors.New("OTP CodeTTL must be >= ResendInterval")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}
	if c.OTP.LockDuration <= 0 {
		return errors.New("OTP LockDuration must be > 0")
	}
	if c.OTP.CodeDigits < 4 || c.OTP.CodeDigits > 10 {
		return errors.New("OTP CodeDigits must be between 4 and 10")
	}
	if c.OTP.FixedCode != "" && !isDigits(c.OTP.FixedCode) {
		return errors.New("OTP FixedCode must contain only digits")
	}
	if c.OTP.PurgeInterval < 0 {
		return errors.New("OTP PurgeInterval must be >= 0")
	}
	if strings.ContainsAny(c.OTP.RedisPrefix, " \t\r\n") {
		return errors.New("OTP RedisPrefix must not contain whitespace")
	}

	// Password
	switch c.Password.Algorithm {
	case "argon2":
		if c.Password.Memory < 8*1024 {
			return errors.New("Password Memory must be >= 8192 KB")
		}
		if c.Password.Time < 1 {
			return errors.New("Password Time must be >= 1")
		}
		if c.Password.Parallelism < 1 {
			return errors.New("Password Parallelism must be >= 1")
		}
		if c.Password.SaltLength < 16 {
			return errors.New("Password SaltLength must be >= 16")
		}
		if c.Password.KeyLength < 16 {
			return errors.New("Password KeyLength must be >= 16")
		}
	case "bcrypt":
		if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
			return errors.New("Password BcryptCost must be between 4 and 31")
		}
	default:
		return errors.New("Password Algorithm must be 'argon2' or 'bcrypt'")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	// Security
	if c.Security.EnableIPThrottle {
		if c.Security.MaxSendsPerIP <= 0 {
			return errors.New("Security MaxSendsPerIP must be > 0 when EnableIPThrottle is true")
		}
		if c.Security.SendWindow <= 0 {
			return errors.New("Security SendWindow must be > 0 when EnableIPThrottle is true")
		}
	}
	if c.Security.MaxPasswordAttempts < 0 {
		return errors.New("Security MaxPasswordAttempts must be >= 0")
	}
	if c.Security.MaxPasswordAttempts > 0 && c.Security.PasswordCooldown <= 0 {
		return errors.New("Security PasswordCooldown must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Audit is enabled")
	}

	if c.Security.ProductionMode {
		if c.OTP.FixedCode != "" {
			return errors.New("ProductionMode forbids OTP FixedCode")
		}
		if c.OTP.ReturnCodeToClient {
			return errors.New("ProductionMode forbids OTP ReturnCodeToClient")
		}
		if c.OTP.CodeDigits < 6 {
			return errors.New("ProductionMode requires OTP CodeDigits >= 6")
		}
		if c.OTP.MaxAttempts > 10 {
			return errors.New("ProductionMode requires OTP MaxAttempts <= 10")
		}
		if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
			return errors.New("ProductionMode requires hs256 key length >= 256 bits")
		}
		if c.Password.Algorithm == "argon2" {
			if c.Password.Memory < 64*1024 {
				return errors.New("ProductionMode requires Password Memory >= 65536 KB")
			}
			if c.Password.Time < 2 {
				return errors.New("ProductionMode requires Password Time >= 2")
			}
			if c.Password.KeyLength < 32 {
				return errors.New("ProductionMode requires Password KeyLength >= 32")
			}
		}
		if c.Password.Algorithm == "bcrypt" && c.Password.BcryptCost < 10 {
			return errors.New("ProductionMode requires Password BcryptCost >= 10")
		}
		if c.Password.MinLength < 8 {
			return errors.New("ProductionMode requires Password MinLength >= 8")
		}
		if c.Security.MaxPasswordAttempts == 0 {
			return errors.New("ProductionMode requires password attempt limiting")
		}
	}

	return nil
}
