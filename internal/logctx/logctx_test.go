package logctx

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntoFrom(t *testing.T) {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := Into(context.Background(), l)
	require.Same(t, l, From(ctx))
	require.Same(t, slog.Default(), From(context.Background()))
}

func TestOrDefault(t *testing.T) {
	fallback := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.Same(t, fallback, OrDefault(context.Background(), fallback))

	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.Same(t, l, OrDefault(Into(context.Background(), l), fallback))
}
