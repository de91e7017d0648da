package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// defaultReadyTimeout bounds all dependency checks of one readiness probe.
const defaultReadyTimeout = 5 * time.Second

// Per-dependency readiness results.
const (
	checkOK            = "ok"
	checkUnavailable   = "unavailable"
	checkNotConfigured = "not configured"
)

// HealthChecker defines an interface for checking service health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	db      HealthChecker
	cache   HealthChecker
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealthHandler creates a new HealthHandler.
// Pass nil for db or cache if they are not configured.
func NewHealthHandler(db, cache HealthChecker, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		db:      db,
		cache:   cache,
		timeout: defaultReadyTimeout,
		logger:  logger,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is a liveness probe endpoint. It never checks dependencies.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: checkOK})
}

// Readyz is a readiness probe endpoint. Postgres and Redis are pinged in
// parallel under one deadline; the probe passes only when neither is
// unavailable. Ping errors are logged, never returned.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	deps := []struct {
		name    string
		checker HealthChecker
	}{
		{"postgres", h.db},
		{"redis", h.cache},
	}

	results := make([]string, len(deps))
	var wg sync.WaitGroup
	for i, d := range deps {
		i, d := i, d
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = h.check(ctx, d.name, d.checker)
		}()
	}
	wg.Wait()

	checks := make(map[string]string, len(deps))
	status, statusCode := "ok", http.StatusOK
	for i, d := range deps {
		checks[d.name] = results[i]
		if results[i] == checkUnavailable {
			status, statusCode = "unhealthy", http.StatusServiceUnavailable
		}
	}

	writeJSON(w, statusCode, HealthResponse{Status: status, Checks: checks})
}

func (h *HealthHandler) check(ctx context.Context, name string, c HealthChecker) string {
	if c == nil {
		return checkNotConfigured
	}
	if err := c.Ping(ctx); err != nil {
		h.logger.Warn("readiness_check_failed", "dependency", name, "error", err)
		return checkUnavailable
	}
	return checkOK
}
