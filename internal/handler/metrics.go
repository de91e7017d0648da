package handler

import (
	"fmt"
	"net/http"

	"github.com/codeduck/codeduck/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeLabeled(w, "codeduck_explain_requests_total", "outcome", snap.Explains)
	writeMetric(w, "codeduck_provider_duration_seconds_count %d\n", snap.ProviderDurationCount)
	writeMetric(w, "codeduck_provider_duration_seconds_sum %.6f\n", float64(snap.ProviderDurationTotalNs)/1e9)

	writeLabeled(w, "codeduck_github_links_total", "result", snap.GitHubLinks)

	writeLabeled(w, "codeduck_cache_hits_total", "cache", snap.CacheHits)
	writeLabeled(w, "codeduck_cache_misses_total", "cache", snap.CacheMisses)

	writeLabeled(w, "codeduck_rate_limited_total", "scope", snap.RateLimited)
}

func writeLabeled(w http.ResponseWriter, name, label string, counts map[string]uint64) {
	for _, key := range metrics.SortedKeys(counts) {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, key, counts[key])
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
