package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codeduck/codeduck/internal/auth"
	"github.com/codeduck/codeduck/internal/handler/dto"
	"github.com/codeduck/codeduck/internal/model"
	"github.com/codeduck/codeduck/internal/service"
)

// AccountLinker completes a GitHub authorization for the session user.
type AccountLinker interface {
	Link(ctx context.Context, userID, code string) (*model.LinkDescriptor, error)
}

// GitHubService is the read-only GitHub proxy used by the handlers.
type GitHubService interface {
	ListRepos(ctx context.Context, userID string) ([]model.Repository, error)
	GetContents(ctx context.Context, userID, owner, repo, path string) (*model.RepoContents, error)
	ListIssues(ctx context.Context, userID, owner, repo string) ([]model.Issue, error)
}

// AuthorizeURLer builds the GitHub consent page URL.
type AuthorizeURLer interface {
	AuthorizeURL() string
}

// GitHubHandler handles account linking and the GitHub proxy.
type GitHubHandler struct {
	linker AccountLinker
	svc    GitHubService
	oauth  AuthorizeURLer
	errorWriter
}

// NewGitHubHandler creates a new GitHubHandler.
func NewGitHubHandler(linker AccountLinker, svc GitHubService, oauth AuthorizeURLer, logger *slog.Logger) *GitHubHandler {
	return &GitHubHandler{linker: linker, svc: svc, oauth: oauth, errorWriter: errorWriter{logger: logger}}
}

// AuthURL handles GET /api/github/auth.
func (h *GitHubHandler) AuthURL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.AuthURLResponse{URL: h.oauth.AuthorizeURL()})
}

// Callback handles GET /api/github/callback?code=...
func (h *GitHubHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	userID := auth.UserIDFromContext(r.Context())

	desc, err := h.linker.Link(r.Context(), userID, code)
	if err != nil {
		// Rejected codes are 401 here; provider auth failures elsewhere are 502.
		if errors.Is(err, service.ErrUpstreamAuthFailure) {
			writeError(w, http.StatusUnauthorized, "UPSTREAM_AUTH_FAILURE", "Failed to authenticate with GitHub")
			return
		}
		h.serviceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LinkResponse{Success: true, GitHubAccount: desc})
}

// Repos handles GET /api/github/repos.
func (h *GitHubHandler) Repos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.svc.ListRepos(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	if repos == nil {
		repos = []model.Repository{}
	}
	writeJSON(w, http.StatusOK, dto.ReposResponse{Repos: repos})
}

// Contents handles GET /api/github/repos/{owner}/{repo}/contents/*.
func (h *GitHubHandler) Contents(w http.ResponseWriter, r *http.Request) {
	contents, err := h.svc.GetContents(r.Context(),
		auth.UserIDFromContext(r.Context()),
		chi.URLParam(r, "owner"),
		chi.URLParam(r, "repo"),
		chi.URLParam(r, "*"),
	)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToContentsResponse(contents))
}

// Issues handles GET /api/github/repos/{owner}/{repo}/issues.
func (h *GitHubHandler) Issues(w http.ResponseWriter, r *http.Request) {
	issues, err := h.svc.ListIssues(r.Context(),
		auth.UserIDFromContext(r.Context()),
		chi.URLParam(r, "owner"),
		chi.URLParam(r, "repo"),
	)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	if issues == nil {
		issues = []model.Issue{}
	}
	writeJSON(w, http.StatusOK, dto.IssuesResponse{Issues: issues})
}
