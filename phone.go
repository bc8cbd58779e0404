package phoneAuth

import "strings"

const (
	minPhoneDigits = 5
	maxPhoneDigits = 15
)

// NormalizePhone strips spaces, dashes and brackets and keeps one optional
// leading '+'. The result is the key used for OTP records and user lookups,
// so "+1 (555) 010-9999" and "+15550109999" address the same account.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidPhone
	}

	var b strings.Builder
	b.Grow(len(raw))
	digits := 0
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == '+' && i == 0:
			b.WriteByte('+')
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// separators
		default:
			return "", ErrInvalidPhone
		}
	}

	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return "", ErrInvalidPhone
	}
	return b.String(), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// lastDigits returns up to n trailing characters of phone.
func lastDigits(phone string, n int) string {
	if len(phone) <= n {
		return phone
	}
	return phone[len(phone)-n:]
}
