package phoneAuth

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/phoneAuth/internal/audit"
)

// UserRecord is the account record returned by [UserProvider]. PasswordHash
// is empty for accounts created through code login only.
type UserRecord struct {
	UserID       string
	Phone        string
	Nickname     string
	Avatar       string
	PasswordHash string
	CreatedAt    time.Time
	LastLoginAt  time.Time
}

// HasPassword reports whether the account can sign in with a password.
func (u UserRecord) HasPassword() bool {
	return u.PasswordHash != ""
}

// CreateUserInput is the input for [UserProvider.CreateUser]. Phone is
// already normalized.
type CreateUserInput struct {
	Phone        string
	Nickname     string
	Avatar       string
	PasswordHash string
}

// UserProvider connects the engine to the application's user database.
//
// GetUserByPhone and GetUserByID return [ErrUserNotFound] for unknown users.
// CreateUser returns [ErrAccountExists] when the phone is taken; the check
// must be atomic in the backing store.
type UserProvider interface {
	GetUserByPhone(ctx context.Context, phone string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
	RecordLogin(ctx context.Context, userID string, at time.Time) error
}

// SendCodeResult is returned by [Engine.SendCode]. DevCode is only set when
// OTPConfig.ReturnCodeToClient is on.
type SendCodeResult struct {
	ExpiresAt time.Time
	DevCode   string
}

// LoginRequest is the input for [Engine.LoginWithCode]. Nickname is used
// only when the login creates the account.
type LoginRequest struct {
	Phone    string
	Code     string
	Nickname string
}

// RegisterRequest is the input for [Engine.Register].
type RegisterRequest struct {
	Phone    string
	Code     string
	Password string
	Nickname string
}

// LoginResult is returned by every operation that starts a session.
// Created is true when the call created the account.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      UserRecord
	Created   bool
}

// TokenResult is returned by [Engine.Refresh].
type TokenResult struct {
	Token     string
	ExpiresAt time.Time
}

// AuthResult is returned by [Engine.Validate]. It is built from the token
// alone; the user store is not consulted.
type AuthResult struct {
	UserID    string
	Phone     string
	ExpiresAt time.Time
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards audit events into a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON audit event per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink writes audit events as structured log records.
type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) SlogSink {
	return internalaudit.SlogSink{Logger: logger}
}
