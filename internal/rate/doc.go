// Package rate implements Redis fixed-window counters for send-code and
// password login throttling.
//
// # Window semantics
//
// INCR and TTL run in one MULTI; the window starts when the key has no TTL.
// Key prefixes:
//   - "rs:" send-code per IP
//   - "rp:" failed password logins per phone
//   - "rpi:" failed password logins per IP
//
// The OTP attempt counter and lockout are not counted here; they live on the
// OTP record so they stay atomic with verification.
package rate
