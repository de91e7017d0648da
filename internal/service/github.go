package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeduck/codeduck/internal/auth"
	"github.com/codeduck/codeduck/internal/cache"
	"github.com/codeduck/codeduck/internal/metrics"
	"github.com/codeduck/codeduck/internal/model"
)

// GitHubAPI reads from GitHub with a user's token.
type GitHubAPI interface {
	ListRepos(ctx context.Context, token string) ([]model.Repository, error)
	GetContents(ctx context.Context, token, owner, repo, path string) (*model.RepoContents, error)
	ListIssues(ctx context.Context, token, owner, repo string) ([]model.Issue, error)
}

// RepoCache keeps repository listings for a short time.
type RepoCache interface {
	GetRepoList(ctx context.Context, linkID, tokenDigest string) ([]model.Repository, error)
	SetRepoList(ctx context.Context, linkID, tokenDigest string, repos []model.Repository, ttl time.Duration) error
}

// GitHubService proxies read-only GitHub calls for a user's linked account.
type GitHubService struct {
	linker   *Linker
	api      GitHubAPI
	cache    RepoCache
	cacheTTL time.Duration
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewGitHubService creates a new GitHubService. cache may be nil.
func NewGitHubService(linker *Linker, api GitHubAPI, repoCache RepoCache, cacheTTL time.Duration, recorder metrics.Recorder, logger *slog.Logger) *GitHubService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GitHubService{
		linker:   linker,
		api:      api,
		cache:    repoCache,
		cacheTTL: cacheTTL,
		metrics:  recorder,
		logger:   logger,
	}
}

// ListRepos returns the linked account's repositories.
func (s *GitHubService) ListRepos(ctx context.Context, userID string) ([]model.Repository, error) {
	link, err := s.linker.LinkedAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	digest := auth.QuickHash(link.AccessToken)
	if s.cache != nil {
		repos, err := s.cache.GetRepoList(ctx, link.ID, digest)
		if err == nil {
			s.metrics.IncCacheHit(metrics.CacheRepos)
			return repos, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("repo_cache_error", "error", err)
		}
		s.metrics.IncCacheMiss(metrics.CacheRepos)
	}

	repos, err := s.api.ListRepos(ctx, link.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", upstreamError(err))
	}

	if s.cache != nil {
		if err := s.cache.SetRepoList(ctx, link.ID, digest, repos, s.cacheTTL); err != nil {
			s.logger.Warn("repo_cache_error", "error", err)
		}
	}
	return repos, nil
}

// GetContents returns a directory listing or file of a repository.
func (s *GitHubService) GetContents(ctx context.Context, userID, owner, repo, path string) (*model.RepoContents, error) {
	if owner == "" || repo == "" {
		return nil, invalid("repo", "Owner and repository are required")
	}

	link, err := s.linker.LinkedAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	contents, err := s.api.GetContents(ctx, link.AccessToken, owner, repo, path)
	if err != nil {
		return nil, fmt.Errorf("get contents: %w", upstreamError(err))
	}
	return contents, nil
}

// ListIssues returns the open issues of a repository.
func (s *GitHubService) ListIssues(ctx context.Context, userID, owner, repo string) ([]model.Issue, error) {
	if owner == "" || repo == "" {
		return nil, invalid("repo", "Owner and repository are required")
	}

	link, err := s.linker.LinkedAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	issues, err := s.api.ListIssues(ctx, link.AccessToken, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", upstreamError(err))
	}
	return issues, nil
}
