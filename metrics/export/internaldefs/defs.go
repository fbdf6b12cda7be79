package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// Def names one engine metric for export.
type Def struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []Def{
	{ID: authcore.MetricRegisterSuccess, Name: "authcore_register_success_total", Help: "Accounts created."},
	{ID: authcore.MetricRegisterDuplicate, Name: "authcore_register_duplicate_total", Help: "Registrations rejected for an email already in use."},
	{ID: authcore.MetricRegisterRejected, Name: "authcore_register_rejected_total", Help: "Registrations rejected by validation or throttling."},
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Logins rejected with invalid credentials."},
	{ID: authcore.MetricLoginRateLimited, Name: "authcore_login_rate_limited_total", Help: "Logins rejected by the throttle."},
	{ID: authcore.MetricPasswordRehash, Name: "authcore_password_rehash_total", Help: "Password hashes upgraded on login."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Refresh tokens rotated."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Refresh attempts rejected."},
	{ID: authcore.MetricRefreshReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Revoked refresh tokens presented again."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-token logouts."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Logout-all operations."},
	{ID: authcore.MetricAuthenticateSuccess, Name: "authcore_authenticate_success_total", Help: "Access tokens accepted."},
	{ID: authcore.MetricAuthenticateFailure, Name: "authcore_authenticate_failure_total", Help: "Access tokens rejected."},
	{ID: authcore.MetricAuthorizeDenied, Name: "authcore_authorize_denied_total", Help: "Role checks that denied access."},
	{ID: authcore.MetricAccountDeactivated, Name: "authcore_account_deactivated_total", Help: "Accounts deactivated."},
	{ID: authcore.MetricAccountActivated, Name: "authcore_account_activated_total", Help: "Accounts reactivated."},
	{ID: authcore.MetricRoleChanged, Name: "authcore_role_changed_total", Help: "Role assignments."},
	{ID: authcore.MetricProfileUpdated, Name: "authcore_profile_updated_total", Help: "Profile updates."},
}

// LatencyDef is the single histogram the engine records.
var LatencyDef = Def{
	ID:   authcore.MetricAuthenticateLatency,
	Name: "authcore_authenticate_latency_seconds",
	Help: "Access token verification latency.",
}

const (
	AuditDroppedName = "authcore_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// HistogramBounds are the upper bounds, in seconds, of the engine's latency
// buckets.
var HistogramBounds = [8]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// CumulativeBuckets converts the engine's per-bucket counts into the
// cumulative form both exposition formats use. Missing buckets count as zero.
func CumulativeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
