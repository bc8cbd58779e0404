package phoneAuth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidPhone is returned when a phone number fails normalization.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrInvalidCode is returned when a submitted code is empty or not decimal.
	ErrInvalidCode = errors.New("invalid code format")

	// ErrCodeRateLimited is returned when a code was sent too recently, or the
	// caller's address spent its send budget.
	ErrCodeRateLimited = errors.New("code requested too frequently")
	// ErrCodeLocked is returned while a phone is locked out after repeated failures.
	ErrCodeLocked = errors.New("too many failed attempts")
	// ErrCodeExpired is returned for a code past its validity window.
	ErrCodeExpired = errors.New("code expired")
	// ErrCodeMismatch is returned for a wrong code while attempts remain.
	ErrCodeMismatch = errors.New("code mismatch")
	// ErrCodeNotRequested is returned when no code is pending for the phone.
	ErrCodeNotRequested = errors.New("no code requested")

	// ErrTokenInvalid covers forged, malformed and foreign tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned by Validate for a correctly signed expired token.
	ErrTokenExpired = errors.New("token expired")
	// ErrUnauthorized is the uniform rejection used by protected resources.
	ErrUnauthorized = errors.New("unauthorized")

	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrPasswordRateLimited   = errors.New("too many password attempts")
	ErrAccountExists         = errors.New("account already exists")
	ErrPasswordPolicy        = errors.New("password does not meet policy")
	ErrUserNotFound          = errors.New("user not found")
	ErrAccountCreationFailed = errors.New("account creation failed")
	ErrRegistrationDisabled  = errors.New("registration disabled")

	// ErrSMSUnavailable wraps code delivery failures.
	ErrSMSUnavailable = errors.New("sms delivery unavailable")
	// ErrOTPUnavailable wraps OTP store failures on the verify path.
	ErrOTPUnavailable = errors.New("otp store unavailable")
	// ErrUserStoreUnavailable wraps UserProvider failures.
	ErrUserStoreUnavailable = errors.New("user store unavailable")
	ErrEngineNotReady       = errors.New("engine not initialized")
)

// CodeError carries the details of a refused code operation. It unwraps to one
// of the ErrCode* sentinels.
//
// AttemptsRemaining is set for ErrCodeMismatch. RetryAfter is set for
// ErrCodeRateLimited and, when known, ErrCodeLocked.
type CodeError struct {
	Err               error
	AttemptsRemaining int
	RetryAfter        time.Duration
}

func (e *CodeError) Error() string {
	switch {
	case e.Err == ErrCodeMismatch:
		return fmt.Sprintf("%s: %d attempts remaining", e.Err, e.AttemptsRemaining)
	case e.RetryAfter > 0:
		return fmt.Sprintf("%s: retry after %s", e.Err, e.RetryAfter.Round(time.Second))
	default:
		return e.Err.Error()
	}
}

func (e *CodeError) Unwrap() error {
	return e.Err
}
