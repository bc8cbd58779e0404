package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	phoneAuth "github.com/MrEthical07/phoneAuth"
)

type identityKey struct{}

// AuthResultFromContext returns the identity attached by [Guard].
func AuthResultFromContext(ctx context.Context) (*phoneAuth.AuthResult, bool) {
	res, ok := ctx.Value(identityKey{}).(*phoneAuth.AuthResult)
	return res, ok
}

// Guard rejects requests without a valid bearer token. Missing, malformed,
// expired and forged tokens all get the same 401 body.
func Guard(engine *phoneAuth.Engine) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := authenticate(engine, r)
			if !ok {
				writeMessage(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, res)))
		})
	}
}

func authenticate(engine *phoneAuth.Engine, r *http.Request) (*phoneAuth.AuthResult, bool) {
	if engine == nil {
		return nil, false
	}
	// The scheme match is case-sensitive.
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	if !found || token == "" {
		return nil, false
	}
	res, err := engine.Validate(r.Context(), token)
	return res, err == nil
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Message string `json:"message"`
	}{msg})
}
