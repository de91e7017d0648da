package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncExplain is a no-op.
func (n *NoopRecorder) IncExplain(outcome string) {}

// ObserveProviderDuration is a no-op.
func (n *NoopRecorder) ObserveProviderDuration(duration time.Duration) {}

// IncGitHubLink is a no-op.
func (n *NoopRecorder) IncGitHubLink(result string) {}

// IncCacheHit is a no-op.
func (n *NoopRecorder) IncCacheHit(cache string) {}

// IncCacheMiss is a no-op.
func (n *NoopRecorder) IncCacheMiss(cache string) {}

// IncRateLimited is a no-op.
func (n *NoopRecorder) IncRateLimited(scope string) {}
