// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Explain outcomes.
const (
	ExplainCompleted      = "completed"
	ExplainInvalid        = "invalid"
	ExplainDenied         = "denied"
	ExplainUpstreamFailed = "upstream_failed"
	ExplainStorageFailed  = "storage_failed"
)

// Cache names.
const (
	CacheSession = "session"
	CacheRepos   = "repos"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// AI gateway metrics
	IncExplain(outcome string)
	ObserveProviderDuration(duration time.Duration)

	// Account linking metrics; result is "linked" or a failure reason.
	IncGitHubLink(result string)

	// Cache metrics
	IncCacheHit(cache string)
	IncCacheMiss(cache string)

	// Rate limiting; scope is "user" or "ip".
	IncRateLimited(scope string)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
