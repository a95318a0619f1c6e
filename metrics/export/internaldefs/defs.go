package internaldefs

// CounterDef binds one engine counter, identified by its snapshot key, to
// the name and help text exporters publish it under.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	Key  string
	Name string
	Help string
}

// CounterDefs lists every engine counter in a stable order. The Key field
// matches the key used in engine metrics snapshots.
var CounterDefs = []CounterDef{
	{Key: "register_success", Name: "identity_register_success_total", Help: "Successful account registrations."},
	{Key: "register_conflict", Name: "identity_register_conflict_total", Help: "Registrations rejected for a taken username or email."},
	{Key: "login_success", Name: "identity_login_success_total", Help: "Successful logins."},
	{Key: "login_failure", Name: "identity_login_failure_total", Help: "Failed login attempts."},
	{Key: "refresh_success", Name: "identity_refresh_success_total", Help: "Successful access token refreshes."},
	{Key: "refresh_failure", Name: "identity_refresh_failure_total", Help: "Failed access token refreshes."},
	{Key: "verify_success", Name: "identity_verify_success_total", Help: "Successful access token verifications."},
	{Key: "verify_failure", Name: "identity_verify_failure_total", Help: "Failed access token verifications."},
	{Key: "logout", Name: "identity_logout_total", Help: "Logout operations."},
	{Key: "token_minted", Name: "identity_token_minted_total", Help: "Freshly minted lifecycle tokens."},
	{Key: "token_reissued", Name: "identity_token_reissued_total", Help: "Cached lifecycle tokens returned as-is."},
	{Key: "token_replay_rejected", Name: "identity_token_replay_rejected_total", Help: "Structurally valid tokens rejected as revoked or displaced."},
	{Key: "initiate_success", Name: "identity_initiate_success_total", Help: "Successful lifecycle change requests."},
	{Key: "initiate_failure", Name: "identity_initiate_failure_total", Help: "Failed lifecycle change requests."},
	{Key: "confirm_success", Name: "identity_confirm_success_total", Help: "Successful lifecycle confirmations."},
	{Key: "confirm_invalid_token", Name: "identity_confirm_invalid_token_total", Help: "Confirmations rejected for an invalid token."},
	{Key: "confirm_conflict", Name: "identity_confirm_conflict_total", Help: "Confirmations rejected because the account was already in the target state."},
	{Key: "confirm_not_found", Name: "identity_confirm_not_found_total", Help: "Confirmations whose subject no longer exists."},
	{Key: "notify_failure", Name: "identity_notify_failure_total", Help: "Failed notification deliveries."},
	{Key: "cleanup_enqueued", Name: "identity_cleanup_enqueued_total", Help: "Profile cleanup tasks enqueued after account deletion."},
}

// AuditDroppedName is the name the audit backpressure counter is published
// under by every exporter.
const AuditDroppedName = "identity_audit_dropped_total"

// AuditDroppedHelp describes the audit backpressure counter.
const AuditDroppedHelp = "Dropped audit events due to pipeline backpressure."
