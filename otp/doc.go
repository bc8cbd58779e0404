// Package otp implements the one-time passcode state machine for phone logins:
// send throttling, attempt counting, lockout, and single-use consumption.
//
// # Design
//
// One [Record] exists per phone number. All mutation on verification goes through
// [Store.Update], which must run the supplied function inside a per-key critical
// section (a mutex shard, a Redis WATCH/MULTI transaction, or a Postgres advisory
// transaction lock). [Policy] owns every time-based decision and never performs a
// separate read followed by a write.
//
// # Architecture boundaries
//
// This package owns OTP persistence and policy. It does NOT deliver codes, create
// users, or mint tokens; those belong to the root Engine and its collaborators.
//
// # What this package must NOT do
//
//   - Import phoneAuth or any package that imports it.
//   - Log plaintext codes.
//   - Report policy outcomes as errors. Errors are reserved for store failures.
package otp
