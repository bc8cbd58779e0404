package phoneAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/phoneAuth/otp"
)

const (
	auditEventSendCode         = "send_code"
	auditEventSendCodeDenied   = "send_code_denied"
	auditEventCodeLoginSuccess = "code_login_success"
	auditEventCodeLoginFailure = "code_login_failure"
	auditEventLockoutTriggered = "lockout_triggered"
	auditEventPasswordLogin    = "password_login_success"
	auditEventPasswordFailure  = "password_login_failure"
	auditEventAccountCreated   = "account_created"
	auditEventAccountDuplicate = "account_duplicate"
	auditEventRefreshSuccess   = "refresh_success"
	auditEventRefreshInvalid   = "refresh_invalid"
	auditEventRateLimitTrigger = "rate_limit_triggered"
	auditEventStoreDegraded    = "otp_store_degraded"
)

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrLocked             AuditErrorCode = "locked"
	auditErrExpired            AuditErrorCode = "expired"
	auditErrMismatch           AuditErrorCode = "mismatch"
	auditErrNotRequested       AuditErrorCode = "not_requested"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	phone string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["user_agent"] = ua
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		RequestID: RequestIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if phone != "" {
		event.Phone = otp.MaskPhone(phone)
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, phone string) {
	e.emitAudit(ctx, auditEventRateLimitTrigger, false, "", phone, nil, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrCodeRateLimited),
		errors.Is(err, ErrPasswordRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrCodeLocked):
		return auditErrLocked
	case errors.Is(err, ErrCodeExpired):
		return auditErrExpired
	case errors.Is(err, ErrCodeMismatch):
		return auditErrMismatch
	case errors.Is(err, ErrCodeNotRequested):
		return auditErrNotRequested
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenExpired):
		return auditErrInvalidToken
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrSMSUnavailable),
		errors.Is(err, ErrOTPUnavailable),
		errors.Is(err, ErrUserStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
