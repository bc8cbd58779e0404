// Package audit dispatches authentication events to a pluggable sink.
//
// # Components
//
//   - [Sink]: event consumer (no-op, channel, JSON lines, slog).
//   - [Dispatcher]: buffered async relay, drop-if-full or block-if-full.
//   - [Event]: timestamp, type, user, masked phone, IP, request id, metadata.
//
// The Engine decides which events to emit. Nothing here inspects codes or tokens.
package audit
