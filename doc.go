// Package phoneAuth authenticates users by phone number with a texted
// one-time code or a password and issues renewable session tokens.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Flow
//
//   - [Engine.SendCode] checks the resend interval and lockout, stores a fresh
//     code and hands it to the SMS sender.
//   - [Engine.LoginWithCode] verifies the code (single use, five attempts,
//     ten-minute lock), finds or creates the account and issues a token.
//   - [Engine.Register] and [Engine.LoginWithPassword] cover password accounts.
//   - [Engine.Refresh] renews a correctly signed token even after it expired;
//     [Engine.Validate] rejects expired tokens.
//
// # Architecture boundaries
//
// phoneAuth is the public surface. It exposes [Engine], [Builder], [Config]
// and value types. The OTP state machine lives in package otp, the token
// issuer in package jwt and HTTP concerns in middleware and internal/httpapi.
// The OTP store, user store, SMS sender and password hasher are injected at
// build time.
//
// # What this package must NOT do
//
//   - Log or audit codes, tokens or full phone numbers.
//   - Consult the user store on Validate.
//   - Import any sub-package that re-imports phoneAuth.
package phoneAuth
