// Package userstore provides an in-memory [phoneAuth.UserProvider] for
// development servers, examples and tests.
//
// Durable accounts live in storage/postgres.
package userstore
