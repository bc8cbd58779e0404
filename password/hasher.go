package password

import (
	"errors"
	"fmt"
)

const (
	// DefaultMinPasswordBytes is the shortest password accepted by Hash.
	DefaultMinPasswordBytes = 8
	// DefaultMaxPasswordBytes caps password length so hashing cost stays bounded.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrTooShort is returned by Hash for passwords under the minimum length.
	ErrTooShort = errors.New("password too short")
	// ErrTooLong is returned for passwords over the maximum length.
	ErrTooLong = errors.New("password too long")
	// ErrMalformedHash is returned by Verify for an encoded hash it cannot parse.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Hasher is a one-way password hash.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

func lengthBounds(min, max int) (int, int) {
	if min <= 0 {
		min = DefaultMinPasswordBytes
	}
	if max <= 0 {
		max = DefaultMaxPasswordBytes
	}
	return min, max
}

func checkLength(password string, min, max int) error {
	if len(password) < min {
		return fmt.Errorf("%w: need at least %d bytes", ErrTooShort, min)
	}
	if len(password) > max {
		return ErrTooLong
	}
	return nil
}

var (
	_ Hasher = (*Argon2)(nil)
	_ Hasher = (*Bcrypt)(nil)
)
