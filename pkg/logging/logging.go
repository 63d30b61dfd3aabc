// Package logging carries the structured-logging conventions shared
// across the adapter manager: well-known field keys and the V-level used
// for high-volume debug detail. Grounded on the teacher's pkg/logging.
package logging

// Log keys used consistently across packages so log aggregation can
// filter/group on them regardless of which component emitted the entry.
const (
	AdapterID  = "adapter_id"
	ServiceID  = "service_id"
	ChannelID  = "channel_id"
	FeatureID  = "feature_id"
	TagIDKey   = "tag_id"
	WatchKey   = "watch_key"
	Method     = "method"
	EventType  = "event_type"
	Detail     = "detail"
	MatchCount = "match_count"

	// DebugLevel is the logr V-level for high-volume detail: topology
	// churn, watch-worker message processing, per-channel routing
	// decisions. r.log.V(logging.DebugLevel).Info(foo) is this module's
	// equivalent of a Debug call, exactly the convention the teacher
	// documents on its own DebugLevel constant.
	DebugLevel = 2
)
