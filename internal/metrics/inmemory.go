package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters. Labeled counters are keyed by
// label value.
type Snapshot struct {
	Explains                map[string]uint64
	ProviderDurationCount   uint64
	ProviderDurationTotalNs int64
	GitHubLinks             map[string]uint64
	CacheHits               map[string]uint64
	CacheMisses             map[string]uint64
	RateLimited             map[string]uint64
}

// labeled is a counter family keyed by a single label.
type labeled struct {
	mu     sync.Mutex
	counts map[string]uint64
}

func (l *labeled) inc(label string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = make(map[string]uint64)
	}
	l.counts[label]++
}

func (l *labeled) copy() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]uint64, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

// InMemoryRecorder stores metrics in memory. It backs the /metrics endpoint
// and tests.
type InMemoryRecorder struct {
	explains                labeled
	providerDurationCount   uint64
	providerDurationTotalNs int64
	githubLinks             labeled
	cacheHits               labeled
	cacheMisses             labeled
	rateLimited             labeled
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		Explains:                m.explains.copy(),
		ProviderDurationCount:   atomic.LoadUint64(&m.providerDurationCount),
		ProviderDurationTotalNs: atomic.LoadInt64(&m.providerDurationTotalNs),
		GitHubLinks:             m.githubLinks.copy(),
		CacheHits:               m.cacheHits.copy(),
		CacheMisses:             m.cacheMisses.copy(),
		RateLimited:             m.rateLimited.copy(),
	}
}

// IncExplain counts an explain request by outcome.
func (m *InMemoryRecorder) IncExplain(outcome string) {
	m.explains.inc(outcome)
}

// ObserveProviderDuration records the latency of an AI provider call.
func (m *InMemoryRecorder) ObserveProviderDuration(duration time.Duration) {
	atomic.AddUint64(&m.providerDurationCount, 1)
	atomic.AddInt64(&m.providerDurationTotalNs, duration.Nanoseconds())
}

// IncGitHubLink counts a linking attempt by result.
func (m *InMemoryRecorder) IncGitHubLink(result string) {
	m.githubLinks.inc(result)
}

// IncCacheHit increments the hit counter of a cache.
func (m *InMemoryRecorder) IncCacheHit(cache string) {
	m.cacheHits.inc(cache)
}

// IncCacheMiss increments the miss counter of a cache.
func (m *InMemoryRecorder) IncCacheMiss(cache string) {
	m.cacheMisses.inc(cache)
}

// IncRateLimited counts a rejected request by limiter scope.
func (m *InMemoryRecorder) IncRateLimited(scope string) {
	m.rateLimited.inc(scope)
}

// SortedKeys returns the keys of a labeled counter in stable order.
func SortedKeys(counts map[string]uint64) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
