package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Prefix = "$argon2id$"

// Config holds Argon2id cost parameters and the accepted password length range.
// Zero MinPasswordBytes and MaxPasswordBytes fall back to the package defaults.
type Config struct {
	Memory           uint32 // KiB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MinPasswordBytes int
	MaxPasswordBytes int
}

// DefaultConfig returns interactive-login parameters: 64 MiB, 3 passes, 2 lanes.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < 8*1024:
		return errors.New("argon2 memory must be >= 8192 KiB")
	case c.Time < 1:
		return errors.New("argon2 time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("argon2 parallelism must be >= 1")
	case c.SaltLength < 16:
		return errors.New("argon2 salt length must be >= 16")
	case c.KeyLength < 16:
		return errors.New("argon2 key length must be >= 16")
	case c.MinPasswordBytes > c.MaxPasswordBytes:
		return errors.New("password min length exceeds max length")
	}
	return nil
}

// argon2Params are the cost settings recorded in an encoded hash.
type argon2Params struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

// Argon2 hashes passwords with Argon2id and encodes them in the PHC string
// format: $argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>.
type Argon2 struct {
	cfg Config
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	cfg.MinPasswordBytes, cfg.MaxPasswordBytes = lengthBounds(cfg.MinPasswordBytes, cfg.MaxPasswordBytes)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{cfg: cfg}, nil
}

// Hash returns a PHC-encoded Argon2id hash of the raw password bytes.
func (a *Argon2) Hash(password string) (string, error) {
	if err := checkLength(password, a.cfg.MinPasswordBytes, a.cfg.MaxPasswordBytes); err != nil {
		return "", err
	}

	salt := make([]byte, a.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, a.cfg.Time, a.cfg.Memory, a.cfg.Parallelism, a.cfg.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version,
		a.cfg.Memory, a.cfg.Time, a.cfg.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encodedHash. The comparison uses
// the parameters stored in the hash, not the current config.
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	if len(password) > a.cfg.MaxPasswordBytes {
		return false, ErrTooLong
	}
	p, salt, key, err := decodeArgon2(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker
// parameters than the current config.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	p, _, key, err := decodeArgon2(encodedHash)
	if err != nil {
		return false, err
	}
	return p.memory < a.cfg.Memory ||
		p.time < a.cfg.Time ||
		p.parallelism < a.cfg.Parallelism ||
		uint32(len(key)) != a.cfg.KeyLength, nil
}

func decodeArgon2(encoded string) (argon2Params, []byte, []byte, error) {
	var p argon2Params

	rest, ok := strings.CutPrefix(encoded, argon2Prefix)
	if !ok {
		return p, nil, nil, fmt.Errorf("%w: not argon2id", ErrMalformedHash)
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return p, nil, nil, fmt.Errorf("%w: want 4 fields after prefix, got %d", ErrMalformedHash, len(fields))
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, fields[0])
	}

	_, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism)
	if err != nil || fmt.Sprintf("m=%d,t=%d,p=%d", p.memory, p.time, p.parallelism) != fields[1] {
		return p, nil, nil, fmt.Errorf("%w: bad parameters %q", ErrMalformedHash, fields[1])
	}
	if p.memory < 8*1024 || p.time < 1 || p.parallelism < 1 {
		return p, nil, nil, fmt.Errorf("%w: parameters below minimum", ErrMalformedHash)
	}

	salt, err := decodeB64(fields[2])
	if err != nil || len(salt) < 16 {
		return p, nil, nil, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	key, err := decodeB64(fields[3])
	if err != nil || len(key) == 0 {
		return p, nil, nil, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}
	return p, salt, key, nil
}

// decodeB64 accepts the unpadded PHC encoding and padded standard base64.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
