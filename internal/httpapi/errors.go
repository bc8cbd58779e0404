package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	phoneAuth "github.com/MrEthical07/phoneAuth"
	"github.com/MrEthical07/phoneAuth/internal/logctx"
)

// StatusClientClosedRequest is the non-standard status for a caller that
// went away before the answer was ready.
const StatusClientClosedRequest = 499

var errBadRequest = errors.New("invalid request body")

// toHTTP maps an engine error to a status and body. Unknown errors become
// a 500 without detail.
func toHTTP(err error) (int, errorResponse) {
	var cerr *phoneAuth.CodeError
	if errors.As(err, &cerr) {
		return codeErrorToHTTP(cerr)
	}

	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, errorResponse{Message: "invalid request body"}
	case errors.Is(err, phoneAuth.ErrInvalidPhone):
		return http.StatusBadRequest, errorResponse{Message: "invalid phone number"}
	case errors.Is(err, phoneAuth.ErrInvalidCode):
		return http.StatusBadRequest, errorResponse{Message: "invalid code"}
	case errors.Is(err, phoneAuth.ErrPasswordPolicy):
		return http.StatusBadRequest, errorResponse{Message: "password does not meet the length policy"}
	case errors.Is(err, phoneAuth.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorResponse{Message: "invalid phone or password"}
	case errors.Is(err, phoneAuth.ErrTokenInvalid),
		errors.Is(err, phoneAuth.ErrTokenExpired),
		errors.Is(err, phoneAuth.ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{Message: "unauthorized"}
	case errors.Is(err, phoneAuth.ErrPasswordRateLimited):
		return http.StatusTooManyRequests, errorResponse{Message: "too many password attempts, try again later"}
	case errors.Is(err, phoneAuth.ErrRegistrationDisabled):
		return http.StatusForbidden, errorResponse{Message: "registration is disabled"}
	case errors.Is(err, phoneAuth.ErrUserNotFound):
		return http.StatusNotFound, errorResponse{Message: "account not found"}
	case errors.Is(err, phoneAuth.ErrAccountExists):
		return http.StatusConflict, errorResponse{Message: "account already exists"}
	case errors.Is(err, phoneAuth.ErrSMSUnavailable),
		errors.Is(err, phoneAuth.ErrOTPUnavailable),
		errors.Is(err, phoneAuth.ErrUserStoreUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Message: "service unavailable"}
	default:
		return http.StatusInternalServerError, errorResponse{Message: "internal error"}
	}
}

func codeErrorToHTTP(cerr *phoneAuth.CodeError) (int, errorResponse) {
	switch {
	case errors.Is(cerr, phoneAuth.ErrCodeRateLimited):
		secs := retrySeconds(cerr.RetryAfter)
		return http.StatusTooManyRequests, errorResponse{
			Message:    fmt.Sprintf("code requested too frequently, try again in %d seconds", secs),
			RetryAfter: secs,
		}
	case errors.Is(cerr, phoneAuth.ErrCodeLocked):
		resp := errorResponse{Message: "too many failed attempts, phone locked"}
		if cerr.RetryAfter > 0 {
			resp.RetryAfter = retrySeconds(cerr.RetryAfter)
			resp.Message = fmt.Sprintf("too many failed attempts, try again in %d minutes", minutesCeil(cerr.RetryAfter))
		}
		return http.StatusTooManyRequests, resp
	case errors.Is(cerr, phoneAuth.ErrCodeMismatch):
		remaining := cerr.AttemptsRemaining
		return http.StatusBadRequest, errorResponse{
			Message:           fmt.Sprintf("wrong code, %d attempts remaining", remaining),
			AttemptsRemaining: &remaining,
		}
	case errors.Is(cerr, phoneAuth.ErrCodeExpired):
		return http.StatusBadRequest, errorResponse{Message: "code expired, request a new one"}
	default:
		return http.StatusBadRequest, errorResponse{Message: "request a code first"}
	}
}

// clientGone reports whether a server-side failure came from the caller
// cancelling the request. Store errors flatten their cause, so the request
// context is checked as well.
func clientGone(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)
}

func retrySeconds(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	return int64((d + time.Second - 1) / time.Second)
}

func minutesCeil(d time.Duration) int64 {
	return int64((d + time.Minute - 1) / time.Minute)
}

// writeError renders err and logs server-side failures with the request
// logger.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := toHTTP(err)
	if status >= http.StatusInternalServerError && clientGone(r.Context(), err) {
		writeJSON(w, StatusClientClosedRequest, errorResponse{Message: "client closed request"})
		return
	}
	if status >= http.StatusInternalServerError {
		logctx.From(r.Context()).ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	if resp.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", resp.RetryAfter))
	}
	writeJSON(w, status, resp)
}
