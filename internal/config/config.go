// Package config loads server settings from the environment and an optional
// .env file using Viper, and turns them into a phoneAuth.Config.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	phoneAuth "github.com/MrEthical07/phoneAuth"
	"github.com/spf13/viper"
)

// Config holds server configuration.
type Config struct {
	// HTTPAddr is the listen address (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// Env is "development" or "production". Production turns on engine hardening.
	Env string `mapstructure:"APP_ENV"`
	// LogFormat is "json" or "text".
	LogFormat string `mapstructure:"LOG_FORMAT"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// JWTSigningMethod is "hs256" or "ed25519".
	JWTSigningMethod string `mapstructure:"JWT_SIGNING_METHOD"`
	// JWTPrivateKey is the HMAC secret, or a PEM Ed25519 key, or a path to a PEM file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM Ed25519 public key or a path to it.
	JWTPublicKey string        `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string        `mapstructure:"JWT_ISSUER"`
	TokenTTL     time.Duration `mapstructure:"TOKEN_TTL"`

	// OTPStore is memory, redis or postgres.
	OTPStore string `mapstructure:"OTP_STORE"`
	// UserStore is memory or postgres.
	UserStore         string `mapstructure:"USER_STORE"`
	OTPFixedCode      string `mapstructure:"OTP_FIXED_CODE"`
	OTPReturnToClient bool   `mapstructure:"OTP_RETURN_TO_CLIENT"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	// AutoMigrate applies the embedded schema migrations at startup.
	AutoMigrate bool `mapstructure:"AUTO_MIGRATE"`

	// SMSProvider is log or smslocal.
	SMSProvider     string `mapstructure:"SMS_PROVIDER"`
	SMSLocalAPIKey  string `mapstructure:"SMS_LOCAL_API_KEY"`
	SMSLocalSender  string `mapstructure:"SMS_LOCAL_SENDER"`
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`

	// PasswordHasher is argon2 or bcrypt.
	PasswordHasher string `mapstructure:"PASSWORD_HASHER"`
	BcryptCost     int    `mapstructure:"BCRYPT_COST"`

	TrustProxy      bool          `mapstructure:"TRUST_PROXY"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`
	AuditEnabled   bool `mapstructure:"AUDIT_ENABLED"`
	// OTLPEndpoint enables OTLP/gRPC metric push when set (e.g. localhost:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

var defaults = map[string]any{
	"HTTP_ADDR":                   ":8080",
	"APP_ENV":                     "development",
	"LOG_FORMAT":                  "json",
	"LOG_LEVEL":                   "info",
	"JWT_SIGNING_METHOD":          "hs256",
	"JWT_PRIVATE_KEY":             "",
	"JWT_PUBLIC_KEY":              "",
	"JWT_ISSUER":                  "phoneauth",
	"TOKEN_TTL":                   "24h",
	"OTP_STORE":                   "memory",
	"USER_STORE":                  "memory",
	"OTP_FIXED_CODE":              "",
	"OTP_RETURN_TO_CLIENT":        false,
	"REDIS_ADDR":                  "",
	"REDIS_PASSWORD":              "",
	"REDIS_DB":                    0,
	"DATABASE_URL":                "",
	"AUTO_MIGRATE":                false,
	"SMS_PROVIDER":                "log",
	"SMS_LOCAL_API_KEY":           "",
	"SMS_LOCAL_SENDER":            "",
	"SMS_LOCAL_BASE_URL":          "",
	"PASSWORD_HASHER":             "argon2",
	"BCRYPT_COST":                 12,
	"TRUST_PROXY":                 false,
	"REQUEST_TIMEOUT":             "10s",
	"SHUTDOWN_TIMEOUT":            "15s",
	"METRICS_ENABLED":             true,
	"AUDIT_ENABLED":               false,
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
}

// Load reads .env (if present) and the environment. Environment variables
// override .env values.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path. A missing file is ignored.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		_ = v.ReadInConfig()
	}

	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Production reports whether APP_ENV is production.
func (c *Config) Production() bool {
	return c.Env == "production"
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.JWTPrivateKey == "" {
		return errors.New("config: JWT_PRIVATE_KEY must be set")
	}
	switch c.OTPStore {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("config: OTP_STORE must be memory, redis or postgres, got %q", c.OTPStore)
	}
	switch c.UserStore {
	case "memory", "postgres":
	default:
		return fmt.Errorf("config: USER_STORE must be memory or postgres, got %q", c.UserStore)
	}
	if c.OTPStore == "redis" && c.RedisAddr == "" {
		return errors.New("config: REDIS_ADDR must be set when OTP_STORE=redis")
	}
	if (c.OTPStore == "postgres" || c.UserStore == "postgres") && c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL must be set for the postgres stores")
	}
	switch c.SMSProvider {
	case "log", "smslocal":
	default:
		return fmt.Errorf("config: SMS_PROVIDER must be log or smslocal, got %q", c.SMSProvider)
	}
	if c.SMSProvider == "smslocal" && c.SMSLocalAPIKey == "" {
		return errors.New("config: SMS_LOCAL_API_KEY must be set when SMS_PROVIDER=smslocal")
	}
	if c.PasswordHasher != "argon2" && c.PasswordHasher != "bcrypt" {
		return fmt.Errorf("config: PASSWORD_HASHER must be argon2 or bcrypt, got %q", c.PasswordHasher)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("config: LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Production() {
		if c.OTPFixedCode != "" || c.OTPReturnToClient {
			return errors.New("config: OTP_FIXED_CODE and OTP_RETURN_TO_CLIENT must be unset when APP_ENV=production")
		}
		if c.SMSProvider == "log" {
			return errors.New("config: SMS_PROVIDER=log is not allowed when APP_ENV=production")
		}
		if c.OTPStore == "memory" || c.UserStore == "memory" {
			return errors.New("config: memory stores are not allowed when APP_ENV=production")
		}
	}
	return nil
}

// EngineConfig maps server settings onto phoneAuth.DefaultConfig.
func (c *Config) EngineConfig() (phoneAuth.Config, error) {
	cfg := phoneAuth.DefaultConfig()

	priv, err := readKey(c.JWTPrivateKey)
	if err != nil {
		return cfg, fmt.Errorf("config: JWT_PRIVATE_KEY: %w", err)
	}
	cfg.JWT.SigningMethod = strings.ToLower(c.JWTSigningMethod)
	cfg.JWT.PrivateKey = priv
	if c.JWTPublicKey != "" {
		pub, err := readKey(c.JWTPublicKey)
		if err != nil {
			return cfg, fmt.Errorf("config: JWT_PUBLIC_KEY: %w", err)
		}
		cfg.JWT.PublicKey = pub
	}
	cfg.JWT.Issuer = c.JWTIssuer
	if c.TokenTTL > 0 {
		cfg.JWT.TokenTTL = c.TokenTTL
	}

	cfg.OTP.FixedCode = c.OTPFixedCode
	cfg.OTP.ReturnCodeToClient = c.OTPReturnToClient

	cfg.Password.Algorithm = c.PasswordHasher
	cfg.Password.BcryptCost = c.BcryptCost

	cfg.Security.ProductionMode = c.Production()
	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.MetricsEnabled

	return cfg, cfg.Validate()
}

// Logger builds the process logger from LOG_FORMAT and LOG_LEVEL.
func (c *Config) Logger() *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

// readKey returns inline PEM or secret material as is and otherwise reads
// the value as a file path when such a file exists.
func readKey(v string) ([]byte, error) {
	if strings.HasPrefix(strings.TrimSpace(v), "-----BEGIN") {
		return []byte(v), nil
	}
	if info, err := os.Stat(v); err == nil && !info.IsDir() {
		return os.ReadFile(v)
	}
	return []byte(v), nil
}
