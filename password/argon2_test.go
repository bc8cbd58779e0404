package password

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/argon2"
)

// fastConfig keeps tests quick while staying above the minimums.
func fastConfig() Config {
	return Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func mustArgon2(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	h, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return h
}

func TestArgon2RoundTrip(t *testing.T) {
	h := mustArgon2(t, fastConfig())

	hash, err := h.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	if ok, err := h.Verify("P@ssw0rd-Ascii", hash); err != nil || !ok {
		t.Fatalf("expected match: ok=%v err=%v", ok, err)
	}
	if ok, err := h.Verify("p@ssw0rd-ascii", hash); err != nil || ok {
		t.Fatalf("expected mismatch without error: ok=%v err=%v", ok, err)
	}

	again, _ := h.Hash("P@ssw0rd-Ascii")
	if again == hash {
		t.Fatal("two hashes of one password must differ by salt")
	}
}

func TestArgon2VerifiesPaddedLegacyEncoding(t *testing.T) {
	h := mustArgon2(t, fastConfig())
	salt := []byte("0123456789abcdef")
	key := argon2.IDKey([]byte("legacy-password"), salt, 1, 8*1024, 1, 32)
	legacy := "$argon2id$v=19$m=8192,t=1,p=1$" +
		base64.StdEncoding.EncodeToString(salt) + "$" + base64.StdEncoding.EncodeToString(key)

	if ok, err := h.Verify("legacy-password", legacy); err != nil || !ok {
		t.Fatalf("padded hash should verify: ok=%v err=%v", ok, err)
	}
}

func TestArgon2NeedsUpgrade(t *testing.T) {
	weak := mustArgon2(t, fastConfig())
	hash, err := weak.Hash("test-password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	if up, err := weak.NeedsUpgrade(hash); err != nil || up {
		t.Fatalf("same config must not need upgrade: up=%v err=%v", up, err)
	}

	stronger := fastConfig()
	stronger.Time = 2
	if up, err := mustArgon2(t, stronger).NeedsUpgrade(hash); err != nil || !up {
		t.Fatalf("weaker hash must need upgrade: up=%v err=%v", up, err)
	}
}

func TestArgon2RejectsMalformedHashes(t *testing.T) {
	h := mustArgon2(t, fastConfig())
	good, err := h.Hash("version-test")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	cases := map[string]string{
		"not phc":        "not-a-phc-hash",
		"bcrypt":         "$2a$04$abcdefghijklmnopqrstuv",
		"wrong version":  strings.Replace(good, "$v=19$", "$v=18$", 1),
		"weak memory":    strings.Replace(good, "m=8192", "m=64", 1),
		"trailing param": strings.Replace(good, "p=1$", "p=1,x=2$", 1),
		"missing key":    good[:strings.LastIndex(good, "$")],
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := h.Verify("version-test", encoded); !errors.Is(err, ErrMalformedHash) {
				t.Fatalf("expected ErrMalformedHash, got %v", err)
			}
		})
	}
}

func TestArgon2LengthBounds(t *testing.T) {
	cfg := fastConfig()
	cfg.MinPasswordBytes = 12
	cfg.MaxPasswordBytes = 64
	h := mustArgon2(t, cfg)

	if _, err := h.Hash(""); !errors.Is(err, ErrTooShort) {
		t.Fatalf("empty: expected ErrTooShort, got %v", err)
	}
	if _, err := h.Hash("elevenchars"); !errors.Is(err, ErrTooShort) {
		t.Fatalf("11 bytes: expected ErrTooShort, got %v", err)
	}
	if _, err := h.Hash(strings.Repeat("a", 65)); !errors.Is(err, ErrTooLong) {
		t.Fatalf("65 bytes: expected ErrTooLong, got %v", err)
	}

	exact := strings.Repeat("b", 64)
	hash, err := h.Hash(exact)
	if err != nil {
		t.Fatalf("max length should hash: %v", err)
	}
	if ok, err := h.Verify(exact, hash); err != nil || !ok {
		t.Fatalf("max length should verify: ok=%v err=%v", ok, err)
	}
	if _, err := h.Verify(strings.Repeat("c", 65), hash); !errors.Is(err, ErrTooLong) {
		t.Fatalf("Verify must reject over-long input, got %v", err)
	}
}

func TestArgon2DefaultBounds(t *testing.T) {
	h := mustArgon2(t, fastConfig())
	if _, err := h.Hash(strings.Repeat("d", DefaultMaxPasswordBytes+1)); !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong past %d bytes, got %v", DefaultMaxPasswordBytes, err)
	}
	if _, err := h.Hash(strings.Repeat("e", DefaultMinPasswordBytes-1)); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort under %d bytes, got %v", DefaultMinPasswordBytes, err)
	}
}

func TestNewArgon2ValidatesConfig(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.Memory = 1024 },
		func(c *Config) { c.Time = 0 },
		func(c *Config) { c.Parallelism = 0 },
		func(c *Config) { c.SaltLength = 8 },
		func(c *Config) { c.KeyLength = 8 },
		func(c *Config) { c.MinPasswordBytes, c.MaxPasswordBytes = 20, 10 },
	}
	for i, mutate := range bad {
		cfg := fastConfig()
		mutate(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
	if _, err := NewArgon2(DefaultConfig()); err != nil {
		t.Fatalf("DefaultConfig must be valid: %v", err)
	}
}
