package otp

import (
	"crypto/rand"
	"errors"
)

// ErrCodeLength is returned by NewCode for lengths outside 4..10.
var ErrCodeLength = errors.New("otp code length must be between 4 and 10")

// NewCode generates a uniformly random decimal code with 4 to 10 digits.
// Leading zeros are kept.
func NewCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", ErrCodeLength
	}

	out := make([]byte, 0, digits)
	buf := make([]byte, digits*2)
	for len(out) < digits {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			// 250 is the largest multiple of 10 below 256; higher bytes would bias the digit.
			if b >= 250 {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == digits {
				break
			}
		}
	}
	return string(out), nil
}
