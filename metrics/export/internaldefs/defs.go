// Package internaldefs holds the shared metric definitions consumed by
// the export adapters. It exists so the Prometheus and OTel exporters
// agree on names and help texts without either importing the other.
package internaldefs

import authcore "github.com/swiftdrop/authcore"

// CounterDef binds one engine counter to its exported name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in snapshot order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricRegistration, Name: "authcore_registration_total", Help: "Successful account registrations."},
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricLoginRateLimited, Name: "authcore_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authcore.MetricAccountLockout, Name: "authcore_account_lockout_total", Help: "Accounts locked after consecutive failures."},
	{ID: authcore.MetricTokenIssued, Name: "authcore_token_issued_total", Help: "Issued token pairs."},
	{ID: authcore.MetricTokenRefreshed, Name: "authcore_token_refreshed_total", Help: "Successful refresh rotations."},
	{ID: authcore.MetricTokenRevoked, Name: "authcore_token_revoked_total", Help: "Token revocation operations."},
	{ID: authcore.MetricRefreshReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: authcore.MetricOTPSent, Name: "authcore_otp_sent_total", Help: "One-time passcodes sent."},
	{ID: authcore.MetricOTPRateLimited, Name: "authcore_otp_rate_limited_total", Help: "Rate-limited passcode sends."},
	{ID: authcore.MetricOTPVerified, Name: "authcore_otp_verified_total", Help: "Successful passcode verifications."},
	{ID: authcore.MetricOTPFailed, Name: "authcore_otp_failed_total", Help: "Failed passcode verifications."},
	{ID: authcore.MetricPasswordChanged, Name: "authcore_password_changed_total", Help: "Password change operations."},
}

// AuditDroppedName is the exported counter for events shed by the audit
// dispatcher under backpressure.
const (
	AuditDroppedName = "authcore_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)
