package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores input past 72 bytes.
const bcryptMaxBytes = 72

// Bcrypt hashes passwords with bcrypt.
type Bcrypt struct {
	Cost     int
	MinBytes int
}

// NewBcrypt clamps cost into bcrypt's 4..31 range; zero selects bcrypt.DefaultCost.
func NewBcrypt(cost, minPasswordBytes int) *Bcrypt {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	min, _ := lengthBounds(minPasswordBytes, 0)
	return &Bcrypt{Cost: cost, MinBytes: min}
}

func (h *Bcrypt) Hash(password string) (string, error) {
	if err := checkLength(password, h.MinBytes, bcryptMaxBytes); err != nil {
		return "", err
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify returns false without error on a mismatch; malformed hashes are errors.
func (h *Bcrypt) Verify(password, encodedHash string) (bool, error) {
	if len(password) > bcryptMaxBytes {
		return false, ErrTooLong
	}
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}
