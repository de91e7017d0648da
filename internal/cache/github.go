package cache

import (
	"context"
	"time"

	"github.com/codeduck/codeduck/internal/model"
)

// repoListPrefix is the Redis key prefix for GitHub repository listings.
const repoListPrefix = "github:repos:"

// repoListKey scopes a listing to the link and a digest of its token, so a
// re-link with a fresh token never serves the old listing.
func repoListKey(linkID, tokenDigest string) string {
	return repoListPrefix + linkID + ":" + tokenDigest
}

// GetRepoList returns a cached repository listing. Returns ErrCacheMiss if
// absent or corrupted.
func (c *Cache) GetRepoList(ctx context.Context, linkID, tokenDigest string) ([]model.Repository, error) {
	var repos []model.Repository
	if err := c.getJSON(ctx, repoListKey(linkID, tokenDigest), &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// SetRepoList caches a repository listing for ttl.
func (c *Cache) SetRepoList(ctx context.Context, linkID, tokenDigest string, repos []model.Repository, ttl time.Duration) error {
	return c.setJSON(ctx, repoListKey(linkID, tokenDigest), repos, ttl)
}
