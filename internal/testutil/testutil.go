package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/codeduck/codeduck/internal/migrations"
	"github.com/codeduck/codeduck/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 424242

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema rolls back and reapplies every embedded migration.
func ResetSchema(ctx context.Context, databaseURL string) error {
	if err := migrations.Reset(ctx, databaseURL); err != nil {
		return fmt.Errorf("reset schema: %w", err)
	}
	return nil
}

// NewPostgres opens a pool against DATABASE_URL with a freshly migrated schema.
// The advisory lock is held until the test finishes.
func NewPostgres(t *testing.T) (context.Context, *pgxpool.Pool) {
	t.Helper()

	databaseURL := RequireEnv(t, "DATABASE_URL")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	unlock, err := AcquireDBLock(ctx, pool)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	t.Cleanup(func() { _ = unlock() })

	if err := ResetSchema(ctx, databaseURL); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, pool
}

// NewRedis connects to REDIS_URL and flushes the current database.
func NewRedis(t *testing.T) (context.Context, *redis.Client) {
	t.Helper()

	redisURL := RequireEnv(t, "REDIS_URL")
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}

	client := redis.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	if err := FlushRedis(ctx, client); err != nil {
		t.Fatalf("flush redis: %v", err)
	}

	return ctx, client
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestUser creates a FREE user with sensible defaults.
func NewTestUser(t testing.TB) *model.User {
	t.Helper()
	id := ulid.Make().String()
	return &model.User{
		ID:           id,
		Email:        "user-" + id + "@codeduck.test",
		PasswordHash: "not-a-real-hash",
		Tier:         model.TierFree,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
}

// NewTestUserWithTier creates a test user on a specific tier.
func NewTestUserWithTier(t testing.TB, tier model.Tier) *model.User {
	t.Helper()
	user := NewTestUser(t)
	user.Tier = tier
	return user
}

// NewTestUsageRecord creates an explain usage record created at the given instant.
func NewTestUsageRecord(t testing.TB, userID string, createdAt time.Time) *model.UsageRecord {
	t.Helper()
	return &model.UsageRecord{
		ID:          ulid.Make().String(),
		UserID:      userID,
		RequestType: model.RequestTypeExplain,
		Cost:        12,
		Input:       model.UsageInput{Code: "fmt.Println(1)", Language: "go"},
		Output: &model.Explanation{
			Explanation: "Prints one.",
			Complexity:  model.ComplexityLow,
		},
		CreatedAt: createdAt.UTC().Truncate(time.Microsecond),
	}
}

// NewTestLinkUpsert builds a GitHub link upsert for the given identity and owner.
func NewTestLinkUpsert(externalID, ownerUserID, token string) model.LinkUpsert {
	return model.LinkUpsert{
		Provider:    model.ProviderGitHub,
		ExternalID:  externalID,
		OwnerUserID: ownerUserID,
		AccessToken: token,
		Handle:      "octo-" + externalID,
	}
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
