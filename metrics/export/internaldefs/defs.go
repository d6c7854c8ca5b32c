package internaldefs

import (
	goOTP "github.com/MrEthical07/goOTP"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   goOTP.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   goOTP.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: goOTP.MetricCheckUserFound, Name: "gootp_check_user_found_total", Help: "Check-user lookups that found an account."},
	{ID: goOTP.MetricCheckUserMissing, Name: "gootp_check_user_missing_total", Help: "Check-user lookups that found no account."},
	{ID: goOTP.MetricCodeIssued, Name: "gootp_code_issued_total", Help: "Verification codes issued."},
	{ID: goOTP.MetricCodeIssueFailure, Name: "gootp_code_issue_failure_total", Help: "Verification code issues that failed."},
	{ID: goOTP.MetricVerifySuccess, Name: "gootp_verify_success_total", Help: "Successful code verifications."},
	{ID: goOTP.MetricVerifyFailure, Name: "gootp_verify_failure_total", Help: "Failed code verifications."},
	{ID: goOTP.MetricVerifyMismatch, Name: "gootp_verify_mismatch_total", Help: "Verifications rejected for a wrong code."},
	{ID: goOTP.MetricVerifyExpired, Name: "gootp_verify_expired_total", Help: "Verifications rejected for an expired code."},
	{ID: goOTP.MetricVerifyNotFound, Name: "gootp_verify_not_found_total", Help: "Verifications with no live code."},
	{ID: goOTP.MetricVerifyAttemptsExceeded, Name: "gootp_verify_attempts_exceeded_total", Help: "Codes invalidated by the attempt cap."},
	{ID: goOTP.MetricRateLimitHit, Name: "gootp_rate_limit_hit_total", Help: "Requests denied by a throttle."},
	{ID: goOTP.MetricDeliverySuccess, Name: "gootp_delivery_success_total", Help: "Codes handed to the deliverer."},
	{ID: goOTP.MetricDeliveryFailure, Name: "gootp_delivery_failure_total", Help: "Deliveries that returned an error."},
	{ID: goOTP.MetricDeliveryDropped, Name: "gootp_delivery_dropped_total", Help: "Deliveries dropped by a full queue."},
	{ID: goOTP.MetricSignupSuccess, Name: "gootp_signup_success_total", Help: "Completed sign-ups."},
	{ID: goOTP.MetricSignupDuplicate, Name: "gootp_signup_duplicate_total", Help: "Sign-ups for an email that already had an account."},
	{ID: goOTP.MetricSignupFailure, Name: "gootp_signup_failure_total", Help: "Sign-ups that failed."},
	{ID: goOTP.MetricPasswordLoginSuccess, Name: "gootp_password_login_success_total", Help: "Successful password logins."},
	{ID: goOTP.MetricPasswordLoginFailure, Name: "gootp_password_login_failure_total", Help: "Failed password logins."},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: goOTP.MetricVerifyLatency, Name: "gootp_verify_latency_seconds", Help: "Code verification latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const (
	AuditDroppedName = "gootp_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// engine bucket is +Inf and has no entry here.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundLabels are the "le" label values for each bucket, +Inf included.
var HistogramBoundLabels = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing buckets.
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
