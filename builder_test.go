package phoneAuth

import (
	"testing"
	"time"
)

func TestBuildRequiresUserProvider(t *testing.T) {
	_, err := New().WithConfig(validTestConfig()).Build()
	if err == nil {
		t.Fatalf("expected error without user provider")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(validTestConfig()).WithUserProvider(newFakeUserProvider())

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatalf("expected second Build to fail")
	}
}

func TestBuildProductionRequiresSender(t *testing.T) {
	cfg := validTestConfig()
	cfg.Security.ProductionMode = true
	cfg.Password.Memory = 64 * 1024
	cfg.Password.Time = 2

	_, err := New().WithConfig(cfg).WithUserProvider(newFakeUserProvider()).Build()
	if err == nil {
		t.Fatalf("expected production build without sender to fail")
	}
}

func TestBuildDefaultsToMemoryStoreAndJanitor(t *testing.T) {
	cfg := validTestConfig()
	cfg.OTP.PurgeInterval = time.Hour
	cfg.Password.Algorithm = "bcrypt"
	cfg.Password.BcryptCost = 10

	engine, err := New().WithConfig(cfg).WithUserProvider(newFakeUserProvider()).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	r := engine.SecurityReport()
	if r.OTPStore != "memory" || !r.PurgeJanitorActive || r.RateLimitingActive {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.PasswordAlgorithm != "bcrypt" {
		t.Fatalf("expected bcrypt, got %s", r.PasswordAlgorithm)
	}

	engine.Close()
	engine.Close()
}
