package httpapi

import (
	"time"

	phoneAuth "github.com/MrEthical07/phoneAuth"
)

type sendCodeRequest struct {
	Phone string `json:"phone"`
}

type sendCodeResponse struct {
	Message   string `json:"message"`
	ExpiresAt int64  `json:"expiresAt"`
	DevCode   string `json:"devCode,omitempty"`
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Code     string `json:"code,omitempty"`
	Password string `json:"password,omitempty"`
	Nickname string `json:"nickname,omitempty"`
}

type registerRequest struct {
	Phone    string `json:"phone"`
	Code     string `json:"code"`
	Password string `json:"password"`
	Nickname string `json:"nickname,omitempty"`
}

type refreshRequest struct {
	Token string `json:"token"`
}

type userResponse struct {
	ID          string `json:"id"`
	Nickname    string `json:"nickname"`
	Phone       string `json:"phone"`
	Avatar      string `json:"avatar"`
	CreatedAt   int64  `json:"createdAt,omitempty"`
	LastLoginAt int64  `json:"lastLoginAt,omitempty"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt int64        `json:"expiresAt"`
	Created   bool         `json:"created,omitempty"`
	User      userResponse `json:"user"`
}

type errorResponse struct {
	Message           string `json:"message"`
	RetryAfter        int64  `json:"retryAfter,omitempty"`
	AttemptsRemaining *int   `json:"attemptsRemaining,omitempty"`
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func userFromRecord(u phoneAuth.UserRecord) userResponse {
	return userResponse{
		ID:          u.UserID,
		Nickname:    u.Nickname,
		Phone:       u.Phone,
		Avatar:      u.Avatar,
		CreatedAt:   unixMilli(u.CreatedAt),
		LastLoginAt: unixMilli(u.LastLoginAt),
	}
}

func sessionFromResult(res *phoneAuth.LoginResult) sessionResponse {
	return sessionResponse{
		Token:     res.Token,
		ExpiresAt: unixMilli(res.ExpiresAt),
		Created:   res.Created,
		User:      userFromRecord(res.User),
	}
}
