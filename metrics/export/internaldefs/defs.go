package internaldefs

import (
	"github.com/MrEthical07/tokenguard"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   tokenguard.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   tokenguard.MetricID
	Name string
	Help string
}

// EventsDroppedName is the counter for events the async bus discarded.
const EventsDroppedName = "tokenguard_events_dropped_total"

// EventsDroppedHelp describes EventsDroppedName.
const EventsDroppedHelp = "Domain events dropped by the async dispatcher due to backpressure."

var CounterDefs = []CounterDef{
	{ID: tokenguard.MetricLoginSuccess, Name: "tokenguard_login_success_total", Help: "Successful login attempts."},
	{ID: tokenguard.MetricLoginFailure, Name: "tokenguard_login_failure_total", Help: "Failed login attempts."},
	{ID: tokenguard.MetricLoginRateLimited, Name: "tokenguard_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: tokenguard.MetricRefreshSuccess, Name: "tokenguard_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: tokenguard.MetricRefreshFailure, Name: "tokenguard_refresh_failure_total", Help: "Refused refresh attempts."},
	{ID: tokenguard.MetricRefreshReuseDetected, Name: "tokenguard_refresh_reuse_detected_total", Help: "Retired refresh tokens presented again."},
	{ID: tokenguard.MetricChainCompromised, Name: "tokenguard_chain_compromised_total", Help: "Token chains revoked after reuse detection."},
	{ID: tokenguard.MetricRefreshExpired, Name: "tokenguard_refresh_expired_total", Help: "Expired refresh tokens presented."},
	{ID: tokenguard.MetricDeviceMismatch, Name: "tokenguard_device_mismatch_total", Help: "Refresh tokens presented from another device."},
	{ID: tokenguard.MetricRefreshRateLimited, Name: "tokenguard_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: tokenguard.MetricRefreshRetry, Name: "tokenguard_refresh_retry_total", Help: "Refresh compare-and-set losses that were re-evaluated."},
	{ID: tokenguard.MetricTokenRevoked, Name: "tokenguard_token_revoked_total", Help: "Refresh tokens revoked."},
	{ID: tokenguard.MetricLogout, Name: "tokenguard_logout_total", Help: "Logout operations."},
	{ID: tokenguard.MetricRevokeAll, Name: "tokenguard_revoke_all_total", Help: "Administrative revoke-all operations."},
	{ID: tokenguard.MetricRolesChanged, Name: "tokenguard_roles_changed_total", Help: "Role assignments that changed a user's role set."},
	{ID: tokenguard.MetricRolesUnchanged, Name: "tokenguard_roles_unchanged_total", Help: "Role assignments that left the role set unchanged."},
	{ID: tokenguard.MetricPermissionCacheHit, Name: "tokenguard_permission_cache_hit_total", Help: "Permission lookups served from cache."},
	{ID: tokenguard.MetricPermissionCacheMiss, Name: "tokenguard_permission_cache_miss_total", Help: "Permission lookups that read the role store."},
	{ID: tokenguard.MetricPermissionInvalidateFailed, Name: "tokenguard_permission_invalidate_failed_total", Help: "Permission cache invalidations that failed."},
	{ID: tokenguard.MetricValidateSuccess, Name: "tokenguard_validate_success_total", Help: "Access tokens accepted."},
	{ID: tokenguard.MetricValidateFailure, Name: "tokenguard_validate_failure_total", Help: "Access tokens rejected."},
	{ID: tokenguard.MetricSweepDeleted, Name: "tokenguard_sweep_deleted_total", Help: "Expired refresh tokens deleted by the sweeper."},
}

var HistogramDefs = []HistogramDef{
	{ID: tokenguard.MetricValidateLatency, Name: "tokenguard_validate_latency_seconds", Help: "Access token validation latency."},
	{ID: tokenguard.MetricRefreshLatency, Name: "tokenguard_refresh_latency_seconds", Help: "Refresh latency."},
}

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

// HistogramBoundSuffix renders HistogramBounds for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size bucket array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
