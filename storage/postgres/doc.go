// Package postgres stores phoneAuth accounts and OTP records in PostgreSQL.
//
// [Storage] implements phoneAuth.UserProvider directly; [Storage.OTP]
// returns an otp.Store backed by the same pool. Call [Migrate] once before
// first use to create the schema.
package postgres
