package internaldefs

import "github.com/MrEthical07/deskauth"

// Namespace prefixes every exported series.
const Namespace = "deskauth"

type CounterDef struct {
	ID   deskauth.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   deskauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every engine counter in export order.
var CounterDefs = []CounterDef{
	{ID: deskauth.MetricLoginSuccess, Name: "deskauth_login_success_total", Help: "Successful sign-ins."},
	{ID: deskauth.MetricLoginFailure, Name: "deskauth_login_failure_total", Help: "Failed sign-ins, all reasons."},
	{ID: deskauth.MetricLoginNotFound, Name: "deskauth_login_not_found_total", Help: "Sign-ins with no matching identity in any searched namespace."},
	{ID: deskauth.MetricLoginSecretMismatch, Name: "deskauth_login_secret_mismatch_total", Help: "Sign-ins with a wrong secret."},
	{ID: deskauth.MetricLoginInactive, Name: "deskauth_login_inactive_total", Help: "Sign-ins whose only matching identities are inactive."},
	{ID: deskauth.MetricNamespaceLookupError, Name: "deskauth_namespace_lookup_error_total", Help: "Identity lookups that failed with a store error."},
	{ID: deskauth.MetricSecretUpgraded, Name: "deskauth_secret_upgraded_total", Help: "Stored secret hashes rewritten with current parameters."},
	{ID: deskauth.MetricRoleDefaultsApplied, Name: "deskauth_role_defaults_applied_total", Help: "Capability resolutions that fell back to built-in defaults."},
	{ID: deskauth.MetricSessionCreated, Name: "deskauth_session_created_total", Help: "Sessions durably recorded."},
	{ID: deskauth.MetricSessionSuperseded, Name: "deskauth_session_superseded_total", Help: "Sessions removed because a newer sign-in replaced them."},
	{ID: deskauth.MetricSessionPersistenceFailure, Name: "deskauth_session_persistence_failure_total", Help: "Sign-ins that failed because the session could not be stored."},
	{ID: deskauth.MetricSessionMinted, Name: "deskauth_session_minted_total", Help: "Sessions created for credentials that carried none."},
	{ID: deskauth.MetricValidateValid, Name: "deskauth_validate_valid_total", Help: "Session validations that passed."},
	{ID: deskauth.MetricValidateInvalid, Name: "deskauth_validate_invalid_total", Help: "Session validations that failed."},
	{ID: deskauth.MetricValidateUnverified, Name: "deskauth_validate_unverified_total", Help: "Session validations the store could not answer."},
	{ID: deskauth.MetricScopeUnrestricted, Name: "deskauth_scope_unrestricted_total", Help: "Tenant scopes computed as unrestricted."},
	{ID: deskauth.MetricScopeScoped, Name: "deskauth_scope_scoped_total", Help: "Tenant scopes limited to a tenant list."},
	{ID: deskauth.MetricScopeDenyAll, Name: "deskauth_scope_deny_all_total", Help: "Tenant scopes that admit no tenant."},
	{ID: deskauth.MetricScopeReadError, Name: "deskauth_scope_read_error_total", Help: "Tenant scopes denied because associations could not be read."},
	{ID: deskauth.MetricLogout, Name: "deskauth_logout_total", Help: "Single-session logouts."},
	{ID: deskauth.MetricLogoutAll, Name: "deskauth_logout_all_total", Help: "Logouts of every session of one identity."},
	{ID: deskauth.MetricStaleSessionsRemoved, Name: "deskauth_stale_sessions_removed_total", Help: "Sessions removed by stale-session invalidation."},
}

var HistogramDefs = []HistogramDef{
	{ID: deskauth.MetricValidateLatency, Name: "deskauth_validate_latency_seconds", Help: "Session validation latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "deskauth_audit_dropped_total"

const AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."

// BucketCount includes the +Inf bucket.
const BucketCount = 8

// UpperBounds are the finite bucket bounds in seconds. The eighth bucket
// is +Inf.
var UpperBounds = [BucketCount - 1]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// BoundSuffix names each bucket in instrument names that cannot carry a
// label.
var BoundSuffix = [BucketCount]string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// Cumulative pads raw per-bucket counts to BucketCount and returns running
// totals. The last element is the sample count.
func Cumulative(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < BucketCount; i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
