package phoneAuth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrEthical07/phoneAuth/internal/rate"
)

// LoginWithPassword signs in a registered account with its password.
//
// Unknown phones, passwordless accounts and wrong passwords all return
// ErrInvalidCredentials. With Redis configured, failures count against a
// per-phone (and per-address) budget and ErrPasswordRateLimited is returned
// once it is spent.
func (e *Engine) LoginWithPassword(ctx context.Context, rawPhone, pw string) (*LoginResult, error) {
	if e == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	ip := clientIPFromContext(ctx)

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckPasswordLogin(ctx, phone, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricPasswordLoginRateLimited)
				e.emitRateLimit(ctx, "password_login", phone)
				return nil, ErrPasswordRateLimited
			}
			e.logger.WarnContext(ctx, "password throttle unavailable", slog.Any("error", err))
		}
	}

	if pw == "" {
		return nil, e.passwordFailure(ctx, phone, ip, "", "empty_password")
	}

	user, err := e.userProvider.GetUserByPhone(ctx, phone)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			e.logger.ErrorContext(ctx, "user lookup failed", slog.Any("error", err))
		}
		return nil, e.passwordFailure(ctx, phone, ip, "", "user_not_found")
	}
	if !user.HasPassword() {
		return nil, e.passwordFailure(ctx, phone, ip, user.UserID, "no_password")
	}

	ok, err := e.passwordHash.Verify(pw, user.PasswordHash)
	if err != nil || !ok {
		if err != nil {
			e.logger.WarnContext(ctx, "password verify error", slog.String("user_id", user.UserID), slog.Any("error", err))
		}
		return nil, e.passwordFailure(ctx, phone, ip, user.UserID, "password_mismatch")
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.ResetPasswordLogin(ctx, phone, ip); err != nil {
			e.logger.WarnContext(ctx, "password throttle reset failed", slog.Any("error", err))
		}
	}

	return e.startSession(ctx, user, false, auditEventPasswordLogin, MetricPasswordLoginSuccess)
}

// passwordFailure counts the failure and returns the error the caller sees:
// ErrPasswordRateLimited when this failure spent the budget, otherwise
// ErrInvalidCredentials.
func (e *Engine) passwordFailure(ctx context.Context, phone, ip, userID, reason string) error {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.IncrementPasswordLogin(ctx, phone, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricPasswordLoginRateLimited)
				e.emitRateLimit(ctx, "password_login", phone)
				return ErrPasswordRateLimited
			}
			e.logger.WarnContext(ctx, "password throttle unavailable", slog.Any("error", err))
		}
	}

	e.metricInc(MetricPasswordLoginFailure)
	e.emitAudit(ctx, auditEventPasswordFailure, false, userID, phone, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return ErrInvalidCredentials
}
