// Package middleware exposes net/http middleware for services built on
// phoneAuth.Engine.
//
// # Guards
//
//   - [Guard]: bearer token check through Engine.Validate, uniform 401.
//   - [AuthResultFromContext]: reads the validated identity downstream.
//
// # Request plumbing
//
//   - [Recover], [RequestID], [ClientInfo], [Logging], [Timeout]; compose
//     them with [Chain] or a router's Use.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; all decisions are delegated to
// Engine.Validate.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Tell the client why a token was rejected.
//   - Log Authorization headers.
package middleware
