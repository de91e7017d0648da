package middleware

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
)

// GitHub naming limits.
const (
	// MaxOwnerLength is the longest GitHub user or organization login.
	MaxOwnerLength = 39

	// MaxRepoNameLength is the longest GitHub repository name.
	MaxRepoNameLength = 100

	// MaxContentPathLength bounds the path inside a repository.
	MaxContentPathLength = 1024
)

// Validation errors.
var (
	ErrOwnerInvalid    = errors.New("owner is not a valid GitHub login")
	ErrRepoNameInvalid = errors.New("repository name is invalid")
	ErrPathTooLong     = errors.New("content path exceeds maximum length")
	ErrPathTraversal   = errors.New("content path may not contain relative segments")
)

// Logins are alphanumeric with single inner hyphens.
var validOwnerPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9]|-[A-Za-z0-9])*$`)

// Repository names allow letters, digits, hyphen, underscore and dot.
var validRepoPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateOwner validates a GitHub user or organization login.
func ValidateOwner(owner string) error {
	if owner == "" || len(owner) > MaxOwnerLength || !validOwnerPattern.MatchString(owner) {
		return ErrOwnerInvalid
	}
	return nil
}

// ValidateRepoName validates a GitHub repository name.
func ValidateRepoName(repo string) error {
	if repo == "" || len(repo) > MaxRepoNameLength || !validRepoPattern.MatchString(repo) {
		return ErrRepoNameInvalid
	}
	if repo == "." || repo == ".." {
		return ErrRepoNameInvalid
	}
	return nil
}

// ValidateContentPath rejects overlong paths and relative segments.
// An empty path names the repository root.
func ValidateContentPath(path string) error {
	if len(path) > MaxContentPathLength {
		return ErrPathTooLong
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "." || seg == ".." {
			return ErrPathTraversal
		}
	}
	return nil
}

// ValidateRepoParams returns a middleware that checks the {owner} and {repo}
// route parameters and the trailing content path before the handler runs.
func ValidateRepoParams(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := ValidateOwner(chi.URLParam(r, "owner")); err != nil {
			writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		if err := ValidateRepoName(chi.URLParam(r, "repo")); err != nil {
			writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		if err := ValidateContentPath(chi.URLParam(r, "*")); err != nil {
			writeJSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
