package phoneAuth

import (
	"fmt"
	"time"

	"github.com/MrEthical07/phoneAuth/otp"
)

// SecurityReport is a read-only summary of the engine's security posture.
type SecurityReport struct {
	ProductionMode     bool
	SigningAlgorithm   string
	TokenTTL           time.Duration
	OTPStore           string
	CodeDigits         int
	CodeTTL            time.Duration
	ResendInterval     time.Duration
	MaxAttempts        int
	LockDuration       time.Duration
	FixedCodeActive    bool
	CodeReturnedToUser bool
	PasswordAlgorithm  string
	RateLimitingActive bool
	PurgeJanitorActive bool
	AuditEnabled       bool
}

// SecurityReport describes the active configuration. Dev shortcuts such as a
// fixed code show up here so they are visible in startup logs.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		ProductionMode:     e.config.Security.ProductionMode,
		SigningAlgorithm:   e.config.JWT.SigningMethod,
		TokenTTL:           e.config.JWT.TokenTTL,
		OTPStore:           storeKind(e.otpStore),
		CodeDigits:         e.config.OTP.CodeDigits,
		CodeTTL:            e.config.OTP.CodeTTL,
		ResendInterval:     e.config.OTP.ResendInterval,
		MaxAttempts:        e.config.OTP.MaxAttempts,
		LockDuration:       e.config.OTP.LockDuration,
		FixedCodeActive:    e.config.OTP.FixedCode != "",
		CodeReturnedToUser: e.config.OTP.ReturnCodeToClient,
		PasswordAlgorithm:  e.config.Password.Algorithm,
		RateLimitingActive: e.rateLimiter != nil && (e.config.Security.EnableIPThrottle || e.config.Security.MaxPasswordAttempts > 0),
		PurgeJanitorActive: e.janitorStop != nil,
		AuditEnabled:       e.audit != nil,
	}
}

func storeKind(s otp.Store) string {
	switch s.(type) {
	case nil:
		return "none"
	case *otp.MemoryStore:
		return "memory"
	case *otp.RedisStore:
		return "redis"
	default:
		return fmt.Sprintf("%T", s)
	}
}
