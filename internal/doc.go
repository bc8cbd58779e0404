// Package internal groups the packages private to phoneAuth.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - httpapi: JSON HTTP surface for the auth flows
//   - config: file and environment configuration for the server binary
//   - logctx: request-scoped slog attributes
//   - rate: Redis fixed-window counters for send and password throttling
//
// # What this package must NOT do
//
//   - Export types that appear in the public phoneAuth API.
//   - Be imported by any package outside the phoneAuth module.
package internal
