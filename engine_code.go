package phoneAuth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/phoneAuth/internal/rate"
	"github.com/MrEthical07/phoneAuth/otp"
	"github.com/MrEthical07/phoneAuth/password"
)

const maxNicknameRunes = 32

// SendCode generates a login code for phone and hands it to the SMS sender.
//
// Refusals are returned as *CodeError wrapping ErrCodeRateLimited (resend
// interval or per-address budget) or ErrCodeLocked, with RetryAfter set. When
// the OTP store cannot be read the send is allowed. A failed delivery removes
// the new record so the caller can retry at once.
func (e *Engine) SendCode(ctx context.Context, rawPhone string) (*SendCodeResult, error) {
	if e == nil || e.policy == nil {
		return nil, ErrEngineNotReady
	}
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}

	if e.rateLimiter != nil {
		if left, err := e.rateLimiter.AllowSend(ctx, clientIPFromContext(ctx)); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricSendCodeRateLimited)
				e.emitRateLimit(ctx, "send_code_ip", phone)
				return nil, &CodeError{Err: ErrCodeRateLimited, RetryAfter: left}
			}
			e.logger.WarnContext(ctx, "send throttle unavailable, allowing send", slog.Any("error", err))
		}
	}

	decision := e.policy.CanSend(ctx, phone)
	if decision.Degraded {
		e.metricInc(MetricStoreFailOpen)
		e.emitAudit(ctx, auditEventStoreDegraded, false, "", phone, ErrOTPUnavailable, nil)
	}
	if !decision.Allowed {
		cerr := &CodeError{RetryAfter: decision.RetryAfter}
		if decision.Reason == otp.DenyLocked {
			cerr.Err = ErrCodeLocked
			e.metricInc(MetricSendCodeLocked)
		} else {
			cerr.Err = ErrCodeRateLimited
			e.metricInc(MetricSendCodeRateLimited)
		}
		e.emitAudit(ctx, auditEventSendCodeDenied, false, "", phone, cerr, func() map[string]string {
			return map[string]string{"reason": decision.Reason.String()}
		})
		return nil, cerr
	}

	code, err := e.newCode()
	if err != nil {
		e.metricInc(MetricSendCodeFailure)
		return nil, err
	}
	issuedAt := e.now()
	if err := e.policy.Issue(ctx, phone, code); err != nil {
		e.metricInc(MetricSendCodeFailure)
		e.logger.ErrorContext(ctx, "otp issue failed",
			slog.String("phone", otp.MaskPhone(phone)),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}

	if err := e.sender.SendCode(ctx, phone, code); err != nil {
		e.metricInc(MetricSendCodeFailure)
		if derr := e.otpStore.Delete(ctx, phone); derr != nil {
			e.logger.WarnContext(ctx, "otp rollback after failed delivery", slog.Any("error", derr))
		}
		e.logger.ErrorContext(ctx, "sms delivery failed",
			slog.String("phone", otp.MaskPhone(phone)),
			slog.Any("error", err),
		)
		e.emitAudit(ctx, auditEventSendCode, false, "", phone, ErrSMSUnavailable, nil)
		return nil, fmt.Errorf("%w: %v", ErrSMSUnavailable, err)
	}

	e.metricInc(MetricSendCodeSuccess)
	e.emitAudit(ctx, auditEventSendCode, true, "", phone, nil, nil)

	res := &SendCodeResult{ExpiresAt: issuedAt.Add(e.config.OTP.CodeTTL)}
	if e.config.OTP.ReturnCodeToClient {
		res.DevCode = code
	}
	return res, nil
}

// LoginWithCode verifies a texted code and starts a session, creating the
// account on first login when AccountConfig.AutoCreateOnCodeLogin is set.
//
// Code refusals are *CodeError values wrapping ErrCodeNotRequested,
// ErrCodeLocked, ErrCodeExpired or ErrCodeMismatch.
func (e *Engine) LoginWithCode(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil || e.policy == nil {
		return nil, ErrEngineNotReady
	}
	phone, code, err := normalizeCodeInput(req.Phone, req.Code)
	if err != nil {
		return nil, err
	}

	if err := e.verifyCode(ctx, phone, code); err != nil {
		return nil, err
	}

	user, created, err := e.findOrCreateUser(ctx, phone, req.Nickname)
	if err != nil {
		return nil, err
	}

	return e.startSession(ctx, user, created, auditEventCodeLoginSuccess, MetricCodeLoginSuccess)
}

// Register creates a password account after verifying a texted code.
//
// The phone and password are checked before the code is consumed, so an
// existing account or a short password does not burn the code.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*LoginResult, error) {
	if e == nil || e.policy == nil {
		return nil, ErrEngineNotReady
	}
	if !e.config.Account.AllowRegistration {
		return nil, ErrRegistrationDisabled
	}
	phone, code, err := normalizeCodeInput(req.Phone, req.Code)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < e.config.Password.MinLength {
		e.emitAudit(ctx, auditEventAccountCreated, false, "", phone, ErrPasswordPolicy, nil)
		return nil, ErrPasswordPolicy
	}

	if _, err := e.userProvider.GetUserByPhone(ctx, phone); err == nil {
		e.metricInc(MetricAccountDuplicate)
		e.emitAudit(ctx, auditEventAccountDuplicate, false, "", phone, ErrAccountExists, nil)
		return nil, ErrAccountExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}

	if err := e.verifyCode(ctx, phone, code); err != nil {
		return nil, err
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) || errors.Is(err, password.ErrTooLong) {
			return nil, ErrPasswordPolicy
		}
		return nil, fmt.Errorf("%w: %v", ErrAccountCreationFailed, err)
	}

	user, err := e.userProvider.CreateUser(ctx, CreateUserInput{
		Phone:        phone,
		Nickname:     e.nicknameFor(phone, req.Nickname),
		Avatar:       e.config.Account.DefaultAvatar,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricAccountDuplicate)
			e.emitAudit(ctx, auditEventAccountDuplicate, false, "", phone, ErrAccountExists, nil)
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}

	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, auditEventAccountCreated, true, user.UserID, phone, nil, func() map[string]string {
		return map[string]string{"method": "register"}
	})

	return e.startSession(ctx, user, true, auditEventCodeLoginSuccess, MetricCodeLoginSuccess)
}

// verifyCode runs the policy and turns every non-valid outcome into a
// *CodeError.
func (e *Engine) verifyCode(ctx context.Context, phone, code string) error {
	res, err := e.policy.Verify(ctx, phone, code)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}

	var cerr *CodeError
	switch res.Outcome {
	case otp.OutcomeValid:
		return nil
	case otp.OutcomeNoRecord:
		e.metricInc(MetricCodeNoRecord)
		cerr = &CodeError{Err: ErrCodeNotRequested}
	case otp.OutcomeLocked:
		e.metricInc(MetricCodeLocked)
		if res.LockTriggered {
			e.metricInc(MetricLockoutTriggered)
			e.emitAudit(ctx, auditEventLockoutTriggered, false, "", phone, ErrCodeLocked, func() map[string]string {
				return map[string]string{"locked_until": res.LockedUntil.UTC().Format("2006-01-02T15:04:05Z")}
			})
		}
		cerr = &CodeError{Err: ErrCodeLocked, RetryAfter: res.RetryAfter}
	case otp.OutcomeExpired:
		e.metricInc(MetricCodeExpired)
		cerr = &CodeError{Err: ErrCodeExpired}
	default:
		e.metricInc(MetricCodeMismatch)
		cerr = &CodeError{Err: ErrCodeMismatch, AttemptsRemaining: res.AttemptsRemaining}
	}

	e.emitAudit(ctx, auditEventCodeLoginFailure, false, "", phone, cerr, func() map[string]string {
		return map[string]string{"outcome": res.Outcome.String()}
	})
	return cerr
}

func (e *Engine) findOrCreateUser(ctx context.Context, phone, nickname string) (UserRecord, bool, error) {
	user, err := e.userProvider.GetUserByPhone(ctx, phone)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return UserRecord{}, false, fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}
	if !e.config.Account.AutoCreateOnCodeLogin {
		return UserRecord{}, false, ErrUserNotFound
	}

	user, err = e.userProvider.CreateUser(ctx, CreateUserInput{
		Phone:    phone,
		Nickname: e.nicknameFor(phone, nickname),
		Avatar:   e.config.Account.DefaultAvatar,
	})
	if err == nil {
		e.metricInc(MetricAccountCreated)
		e.emitAudit(ctx, auditEventAccountCreated, true, user.UserID, phone, nil, func() map[string]string {
			return map[string]string{"method": "code_login"}
		})
		return user, true, nil
	}
	if !errors.Is(err, ErrAccountExists) {
		return UserRecord{}, false, fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}

	// A concurrent login created the account first.
	user, err = e.userProvider.GetUserByPhone(ctx, phone)
	if err != nil {
		return UserRecord{}, false, fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}
	return user, false, nil
}

func (e *Engine) nicknameFor(phone, requested string) string {
	nick := strings.TrimSpace(requested)
	if nick == "" {
		return e.config.Account.NicknamePrefix + lastDigits(phone, 4)
	}
	if utf8.RuneCountInString(nick) > maxNicknameRunes {
		nick = string([]rune(nick)[:maxNicknameRunes])
	}
	return nick
}

func (e *Engine) newCode() (string, error) {
	if e.config.OTP.FixedCode != "" {
		return e.config.OTP.FixedCode, nil
	}
	return otp.NewCode(e.config.OTP.CodeDigits)
}

func normalizeCodeInput(rawPhone, rawCode string) (string, string, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return "", "", err
	}
	code := strings.TrimSpace(rawCode)
	if !isDigits(code) || len(code) > 10 {
		return "", "", ErrInvalidCode
	}
	return phone, code, nil
}
