package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	phoneAuth "github.com/MrEthical07/phoneAuth"
	"github.com/MrEthical07/phoneAuth/middleware"
)

const maxBodyBytes = 16 << 10

// Handlers serves the auth endpoints on top of an Engine.
type Handlers struct {
	Engine *phoneAuth.Engine
	Health func(ctx context.Context) error
}

func (h *Handlers) SendCode(w http.ResponseWriter, r *http.Request) {
	var in sendCodeRequest
	if err := decodeStrict(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(in.Phone) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "phone is required"})
		return
	}

	res, err := h.Engine.SendCode(r.Context(), in.Phone)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sendCodeResponse{
		Message:   "code sent",
		ExpiresAt: unixMilli(res.ExpiresAt),
		DevCode:   res.DevCode,
	})
}

// Login accepts either a code or a password. A request carrying both is
// treated as a code login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(in.Phone) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "phone is required"})
		return
	}

	var (
		res *phoneAuth.LoginResult
		err error
	)
	switch {
	case in.Code != "":
		res, err = h.Engine.LoginWithCode(r.Context(), phoneAuth.LoginRequest{
			Phone:    in.Phone,
			Code:     in.Code,
			Nickname: in.Nickname,
		})
	case in.Password != "":
		res, err = h.Engine.LoginWithPassword(r.Context(), in.Phone, in.Password)
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "code or password is required"})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionFromResult(res))
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(in.Phone) == "" || in.Code == "" || in.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "phone, code and password are required"})
		return
	}

	res, err := h.Engine.Register(r.Context(), phoneAuth.RegisterRequest{
		Phone:    in.Phone,
		Code:     in.Code,
		Password: in.Password,
		Nickname: in.Nickname,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionFromResult(res))
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if in.Token == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "token is required"})
		return
	}

	res, err := h.Engine.Refresh(r.Context(), in.Token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "invalid token"})
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     res.Token,
		ExpiresAt: unixMilli(res.ExpiresAt),
	})
}

// Me returns the profile of the caller identified by [middleware.Guard].
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	auth, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "unauthorized"})
		return
	}

	user, err := h.Engine.Profile(r.Context(), auth.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userFromRecord(user))
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict reads a single JSON object and rejects unknown fields.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(value); err != nil {
		return errBadRequest
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errBadRequest
	}
	return nil
}
