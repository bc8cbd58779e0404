package internaldefs

import (
	phoneAuth "github.com/MrEthical07/phoneAuth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   phoneAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   phoneAuth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: phoneAuth.MetricSendCodeSuccess, Name: "phoneauth_send_code_success_total", Help: "Codes generated and handed to the SMS sender."},
	{ID: phoneAuth.MetricSendCodeRateLimited, Name: "phoneauth_send_code_rate_limited_total", Help: "Send-code requests refused by the resend interval or address budget."},
	{ID: phoneAuth.MetricSendCodeLocked, Name: "phoneauth_send_code_locked_total", Help: "Send-code requests refused while the phone was locked."},
	{ID: phoneAuth.MetricSendCodeFailure, Name: "phoneauth_send_code_failure_total", Help: "Send-code requests that failed in the store or SMS sender."},
	{ID: phoneAuth.MetricCodeLoginSuccess, Name: "phoneauth_code_login_success_total", Help: "Sessions started with a texted code."},
	{ID: phoneAuth.MetricCodeMismatch, Name: "phoneauth_code_mismatch_total", Help: "Wrong codes submitted while attempts remained."},
	{ID: phoneAuth.MetricCodeExpired, Name: "phoneauth_code_expired_total", Help: "Codes submitted after expiry."},
	{ID: phoneAuth.MetricCodeNoRecord, Name: "phoneauth_code_no_record_total", Help: "Codes submitted with nothing pending."},
	{ID: phoneAuth.MetricCodeLocked, Name: "phoneauth_code_locked_total", Help: "Code submissions refused by a lock."},
	{ID: phoneAuth.MetricLockoutTriggered, Name: "phoneauth_lockout_triggered_total", Help: "Locks set after the final allowed mismatch."},
	{ID: phoneAuth.MetricPasswordLoginSuccess, Name: "phoneauth_password_login_success_total", Help: "Sessions started with a password."},
	{ID: phoneAuth.MetricPasswordLoginFailure, Name: "phoneauth_password_login_failure_total", Help: "Failed password logins."},
	{ID: phoneAuth.MetricPasswordLoginRateLimited, Name: "phoneauth_password_login_rate_limited_total", Help: "Password logins refused by the brute-force limiter."},
	{ID: phoneAuth.MetricAccountCreated, Name: "phoneauth_account_created_total", Help: "Accounts created by code login or registration."},
	{ID: phoneAuth.MetricAccountDuplicate, Name: "phoneauth_account_duplicate_total", Help: "Registrations rejected for an existing phone."},
	{ID: phoneAuth.MetricRefreshSuccess, Name: "phoneauth_refresh_success_total", Help: "Successful token refreshes."},
	{ID: phoneAuth.MetricRefreshFailure, Name: "phoneauth_refresh_failure_total", Help: "Rejected token refreshes."},
	{ID: phoneAuth.MetricValidateSuccess, Name: "phoneauth_validate_success_total", Help: "Tokens accepted on protected routes."},
	{ID: phoneAuth.MetricValidateFailure, Name: "phoneauth_validate_failure_total", Help: "Tokens rejected on protected routes."},
	{ID: phoneAuth.MetricStoreFailOpen, Name: "phoneauth_otp_store_fail_open_total", Help: "Sends allowed because the OTP store could not be read."},
	{ID: phoneAuth.MetricOTPPurged, Name: "phoneauth_otp_purged_total", Help: "Dead OTP records removed by the janitor."},
}

// HistogramDefs lists the exported histograms.
var HistogramDefs = []HistogramDef{
	{ID: phoneAuth.MetricValidateLatency, Name: "phoneauth_validate_latency_seconds", Help: "Token validation latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "phoneauth_audit_dropped_total"

// HistogramBounds are the upper bounds of the engine's latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array, padding with
// zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
