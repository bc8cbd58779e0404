package phoneAuth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/phoneAuth/jwt"
)

// Refresh exchanges a correctly signed token, expired or not, for a new one
// with a fresh window. Any failure is ErrTokenInvalid.
func (e *Engine) Refresh(ctx context.Context, token string) (*TokenResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if token == "" {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrTokenInvalid
	}

	signed, expiresAt, err := e.jwtManager.Refresh(token)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrTokenInvalid, nil)
		return nil, ErrTokenInvalid
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, "", "", nil, nil)
	return &TokenResult{Token: signed, ExpiresAt: expiresAt}, nil
}

// Validate authenticates a resource request from the token alone. It
// returns ErrTokenExpired for a correctly signed expired token and
// ErrTokenInvalid for everything else.
func (e *Engine) Validate(ctx context.Context, token string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := e.now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, e.now().Sub(start))
		}()
	}

	claims, err := e.jwtManager.Verify(token)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	e.metricInc(MetricValidateSuccess)
	res := &AuthResult{
		UserID: claims.UserID(),
		Phone:  claims.Phone,
	}
	if claims.ExpiresAt != nil {
		res.ExpiresAt = claims.ExpiresAt.Time
	}
	return res, nil
}

func (e *Engine) startSession(ctx context.Context, user UserRecord, created bool, event string, metric MetricID) (*LoginResult, error) {
	token, expiresAt, err := e.jwtManager.Issue(user.UserID, user.Phone)
	if err != nil {
		e.logger.ErrorContext(ctx, "token issue failed", slog.String("user_id", user.UserID), slog.Any("error", err))
		return nil, fmt.Errorf("issue token: %w", err)
	}

	now := e.now()
	if err := e.userProvider.RecordLogin(ctx, user.UserID, now); err != nil {
		e.logger.WarnContext(ctx, "record login failed", slog.String("user_id", user.UserID), slog.Any("error", err))
	} else {
		user.LastLoginAt = now
	}

	e.metricInc(metric)
	e.emitAudit(ctx, event, true, user.UserID, user.Phone, nil, func() map[string]string {
		if created {
			return map[string]string{"created": "true"}
		}
		return nil
	})

	user.PasswordHash = ""
	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
		Created:   created,
	}, nil
}
