package phoneAuth

import (
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func TestConfigValidate(t *testing.T) {
	valid := map[string]func(*Config){
		"defaults with key": func(c *Config) {},
		"four digit codes":  func(c *Config) { c.OTP.CodeDigits = 4 },
		"bcrypt":            func(c *Config) { c.Password.Algorithm = "bcrypt"; c.Password.BcryptCost = 4 },
		"audit with buffer": func(c *Config) { c.Audit.Enabled = true },
		"fixed digit code":  func(c *Config) { c.OTP.FixedCode = "123456" },
	}
	invalid := map[string]func(*Config){
		"leeway too large":         func(c *Config) { c.JWT.Leeway = 3 * time.Minute },
		"blank audience":           func(c *Config) { c.JWT.Audience = "   " },
		"unknown signing method":   func(c *Config) { c.JWT.SigningMethod = "rs256" },
		"missing key":              func(c *Config) { c.JWT.PrivateKey = nil },
		"three digit codes":        func(c *Config) { c.OTP.CodeDigits = 3 },
		"eleven digit codes":       func(c *Config) { c.OTP.CodeDigits = 11 },
		"non-digit fixed code":     func(c *Config) { c.OTP.FixedCode = "12a4" },
		"zero max attempts":        func(c *Config) { c.OTP.MaxAttempts = 0 },
		"bcrypt cost out of range": func(c *Config) { c.Password.Algorithm = "bcrypt"; c.Password.BcryptCost = 40 },
		"unknown hash algorithm":   func(c *Config) { c.Password.Algorithm = "md5" },
		"ip throttle no window":    func(c *Config) { c.Security.SendWindow = 0 },
		"audit without buffer":     func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 },
		"code ttl below resend":    func(c *Config) { c.OTP.CodeTTL = c.OTP.ResendInterval - time.Second },
	}

	for name, mutate := range valid {
		t.Run("valid/"+name, func(t *testing.T) {
			cfg := validTestConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
		})
	}
	for name, mutate := range invalid {
		t.Run("invalid/"+name, func(t *testing.T) {
			cfg := validTestConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestProductionModeRejectsDevShortcuts(t *testing.T) {
	base := validTestConfig()
	base.Security.ProductionMode = true
	base.Password.Memory = 64 * 1024
	base.Password.Time = 2
	if err := base.Validate(); err != nil {
		t.Fatalf("expected production config valid, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fixed code", func(c *Config) { c.OTP.FixedCode = "1234" }},
		{"return code", func(c *Config) { c.OTP.ReturnCodeToClient = true }},
		{"short code", func(c *Config) { c.OTP.CodeDigits = 4 }},
		{"short hs256 key", func(c *Config) { c.JWT.PrivateKey = []byte("short") }},
		{"weak argon2", func(c *Config) { c.Password.Memory = 8 * 1024 }},
		{"weak bcrypt", func(c *Config) { c.Password.Algorithm = "bcrypt"; c.Password.BcryptCost = 6 }},
		{"no password limiter", func(c *Config) { c.Security.MaxPasswordAttempts = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected production mode to reject config")
			}
		})
	}
}

func TestCloneConfigCopiesKeys(t *testing.T) {
	cfg := validTestConfig()
	clone := cloneConfig(cfg)
	cfg.JWT.PrivateKey[0] = 'X'
	if clone.JWT.PrivateKey[0] == 'X' {
		t.Fatal("clone shares key bytes with original")
	}
}
