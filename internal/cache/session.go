package cache

import (
	"context"
	"time"

	"github.com/codeduck/codeduck/internal/model"
)

// sessionUserPrefix is the Redis key prefix for users resolved from sessions.
const sessionUserPrefix = "session:user:"

// cachedUser is the user as stored in Redis. The password hash is never cached.
type cachedUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name,omitempty"`
	Tier      string    `json:"tier"`
	CreatedAt time.Time `json:"created_at"`
}

// GetSessionUser returns a cached user. Returns ErrCacheMiss if absent or
// corrupted.
func (c *Cache) GetSessionUser(ctx context.Context, userID string) (*model.User, error) {
	var cached cachedUser
	if err := c.getJSON(ctx, sessionUserPrefix+userID, &cached); err != nil {
		return nil, err
	}

	return &model.User{
		ID:        cached.ID,
		Email:     cached.Email,
		Name:      cached.Name,
		Tier:      model.ParseTier(cached.Tier),
		CreatedAt: cached.CreatedAt,
	}, nil
}

// SetSessionUser caches a user for ttl.
func (c *Cache) SetSessionUser(ctx context.Context, user *model.User, ttl time.Duration) error {
	return c.setJSON(ctx, sessionUserPrefix+user.ID, cachedUser{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Tier:      string(user.Tier),
		CreatedAt: user.CreatedAt,
	}, ttl)
}

// DeleteSessionUser drops a cached user after a tier change.
func (c *Cache) DeleteSessionUser(ctx context.Context, userID string) error {
	return c.client.Del(ctx, sessionUserPrefix+userID).Err()
}
