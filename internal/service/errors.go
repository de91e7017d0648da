// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/codeduck/codeduck/internal/provider"
)

// Service errors.
var (
	ErrValidation          = errors.New("validation failed")
	ErrQuotaExceeded       = errors.New("daily AI request limit reached")
	ErrUpstreamRateLimited = errors.New("upstream service rate limit exceeded")
	ErrUpstreamAuthFailure = errors.New("upstream service rejected credentials")
	ErrUpstreamUnavailable = errors.New("upstream service temporarily unavailable")
	ErrUpstreamError       = errors.New("upstream service error")
	ErrUpstreamNotFound    = errors.New("upstream resource not found")
	ErrStorageFailure      = errors.New("storage failure")
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailExists         = errors.New("user already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrGitHubNotConnected  = errors.New("GitHub account not connected")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// QuotaExceededError reports a denied request with the numbers behind it.
type QuotaExceededError struct {
	Limit int
	Used  int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily AI request limit reached (%d/%d)", e.Used, e.Limit)
}

// Is makes every QuotaExceededError match ErrQuotaExceeded.
func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// upstreamError translates a provider client error into a service error.
// The original error stays in the chain for logging.
func upstreamError(err error) error {
	switch {
	case errors.Is(err, provider.ErrRateLimited):
		return fmt.Errorf("%w: %w", ErrUpstreamRateLimited, err)
	case errors.Is(err, provider.ErrAuthFailed):
		return fmt.Errorf("%w: %w", ErrUpstreamAuthFailure, err)
	case errors.Is(err, provider.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrUpstreamNotFound, err)
	case errors.Is(err, provider.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrUpstreamError, err)
	}
}
