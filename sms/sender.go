package sms

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

// ErrNotConfigured is returned by a sender that is missing credentials.
var ErrNotConfigured = errors.New("sms: sender not configured")

// Sender delivers a login code to a phone number.
type Sender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// LogSender writes the code to a structured log instead of sending it.
// Development only.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) SendCode(ctx context.Context, phone, code string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "sms code (dev sender)",
		slog.String("phone", phone),
		slog.String("code", code),
	)
	return nil
}

// Recorder keeps the last code sent to each phone. It can be told to fail.
type Recorder struct {
	mu    sync.Mutex
	last  map[string]string
	count int
	Err   error
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{last: make(map[string]string)}
}

func (r *Recorder) SendCode(_ context.Context, phone, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.last[phone] = code
	r.count++
	return nil
}

// Last returns the most recent code sent to phone.
func (r *Recorder) Last(phone string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.last[phone]
	return code, ok
}

// Count returns the number of successful sends.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// digitsOnly strips everything but digits, which is what SMS gateways expect.
func digitsOnly(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var (
	_ Sender = LogSender{}
	_ Sender = (*Recorder)(nil)
	_ Sender = (*SMSLocalClient)(nil)
)
