package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeduck/codeduck/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServiceError_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &service.ValidationError{Field: "code", Message: "Code is required"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"no session", service.ErrNoSession, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"unknown user", service.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
		{"no github", service.ErrGitHubNotConnected, http.StatusNotFound, "GITHUB_NOT_CONNECTED"},
		{"email taken", service.ErrEmailExists, http.StatusConflict, "EMAIL_EXISTS"},
		{"missing code", &service.LinkError{State: service.StateAwaitingCode, Reason: service.ReasonMissingCode, Err: service.ErrMissingCode}, http.StatusBadRequest, "MISSING_CODE"},
		{"linked elsewhere", &service.LinkError{State: service.StateReconcilingOwnership, Reason: service.ReasonAlreadyLinkedElsewhere, Err: service.ErrAlreadyLinkedElsewhere}, http.StatusConflict, "ALREADY_LINKED_ELSEWHERE"},
		{"link upstream", &service.LinkError{State: service.StateResolvingIdentity, Reason: service.ReasonUpstreamError, Err: errors.New("eof")}, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"link storage", &service.LinkError{State: service.StateReconcilingOwnership, Reason: service.ReasonStorageFailure, Err: errors.New("db")}, http.StatusInternalServerError, "STORAGE_FAILURE"},
		{"upstream rate limited", fmt.Errorf("%w: 429", service.ErrUpstreamRateLimited), http.StatusTooManyRequests, "UPSTREAM_RATE_LIMITED"},
		{"upstream auth", service.ErrUpstreamAuthFailure, http.StatusBadGateway, "UPSTREAM_AUTH_FAILURE"},
		{"upstream unavailable", service.ErrUpstreamUnavailable, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"},
		{"upstream not found", service.ErrUpstreamNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"upstream other", service.ErrUpstreamError, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"storage", fmt.Errorf("%w: insert: conn reset", service.ErrStorageFailure), http.StatusInternalServerError, "STORAGE_FAILURE"},
		{"unknown", errors.New("secret internal detail"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	ew := errorWriter{logger: discardLogger()}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ew.serviceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tt.wantCode, body["code"])
			assert.NotContains(t, rec.Body.String(), "secret internal detail")
			assert.NotContains(t, rec.Body.String(), "conn reset")
		})
	}
}

func TestServiceError_Quota(t *testing.T) {
	rec := httptest.NewRecorder()
	errorWriter{logger: discardLogger()}.serviceError(rec, httptest.NewRequest(http.MethodPost, "/", nil),
		fmt.Errorf("explain: %w", &service.QuotaExceededError{Limit: 15, Used: 15}))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "QUOTA_EXCEEDED", body["code"])
	assert.EqualValues(t, 15, body["limit"])
	assert.EqualValues(t, 15, body["used"])
}
