package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/codeduck/codeduck/internal/handler/dto"
	"github.com/codeduck/codeduck/internal/middleware"
	"github.com/codeduck/codeduck/internal/service"
)

// errorWriter maps service errors to HTTP replies. Raw collaborator errors
// are logged and never returned to the client.
type errorWriter struct {
	logger *slog.Logger
}

func (e errorWriter) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *service.ValidationError
		quota      *service.QuotaExceededError
	)

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", validation.Message)
	case errors.As(err, &quota):
		writeJSON(w, http.StatusTooManyRequests, dto.QuotaErrorResponse{
			Error: "Daily AI request limit exceeded",
			Code:  "QUOTA_EXCEEDED",
			Limit: quota.Limit,
			Used:  quota.Used,
		})
	case errors.Is(err, service.ErrMissingCode):
		writeError(w, http.StatusBadRequest, "MISSING_CODE", "No code provided")
	case errors.Is(err, service.ErrNoSession):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	case errors.Is(err, service.ErrGitHubNotConnected):
		writeError(w, http.StatusNotFound, "GITHUB_NOT_CONNECTED", "GitHub account not connected")
	case errors.Is(err, service.ErrEmailExists):
		writeError(w, http.StatusConflict, "EMAIL_EXISTS", "User already exists")
	case errors.Is(err, service.ErrAlreadyLinkedElsewhere):
		writeError(w, http.StatusConflict, "ALREADY_LINKED_ELSEWHERE", "GitHub account already linked to another user")
	case errors.Is(err, service.ErrUpstreamRateLimited):
		e.upstream(r, err)
		writeError(w, http.StatusTooManyRequests, "UPSTREAM_RATE_LIMITED", "Upstream service rate limit exceeded")
	case errors.Is(err, service.ErrUpstreamAuthFailure):
		e.upstream(r, err)
		writeError(w, http.StatusBadGateway, "UPSTREAM_AUTH_FAILURE", "Upstream service rejected credentials")
	case errors.Is(err, service.ErrUpstreamUnavailable):
		e.upstream(r, err)
		writeError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Upstream service temporarily unavailable")
	case errors.Is(err, service.ErrUpstreamNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	case errors.Is(err, service.ErrUpstreamError):
		e.upstream(r, err)
		writeError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Upstream service error")
	case errors.Is(err, service.ErrStorageFailure):
		e.logger.Error("storage_failure",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "STORAGE_FAILURE", "Storage failure")
	default:
		e.logger.Error("internal_error",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

func (e errorWriter) upstream(r *http.Request, err error) {
	e.logger.Warn("upstream_error",
		"error", err,
		"endpoint", r.Method+" "+r.URL.Path,
		"request_id", middleware.GetRequestID(r.Context()),
	)
}
