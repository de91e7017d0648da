package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"

	"github.com/codeduck/codeduck/internal/auth"
	"github.com/codeduck/codeduck/internal/cache"
	"github.com/codeduck/codeduck/internal/model"
	"github.com/codeduck/codeduck/internal/repository"
	"github.com/codeduck/codeduck/internal/service"
)

type output struct {
	UserID  string     `json:"userId"`
	Email   string     `json:"email"`
	Tier    model.Tier `json:"tier"`
	Created bool       `json:"created"`
}

func main() {
	_ = godotenv.Load()

	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		redisURL    = flag.String("redis-url", os.Getenv("REDIS_URL"), "Redis connection string; when set, a tier change also clears the cached session user")
		email       = flag.String("email", "test@example.com", "User email")
		password    = flag.String("password", "password123", "User password")
		name        = flag.String("name", "Test User", "Display name")
		tierInput   = flag.String("tier", string(model.TierFree), "Subscription tier (FREE or PRO)")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	tier := model.Tier(strings.ToUpper(strings.TrimSpace(*tierInput)))
	if !tier.IsValid() {
		fmt.Fprintf(os.Stderr, "invalid tier: %s\n", *tierInput)
		os.Exit(1)
	}
	if len(*password) < auth.MinPasswordLength {
		fmt.Fprintf(os.Stderr, "password must be at least %d characters\n", auth.MinPasswordLength)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL, repository.PoolConfig{MaxConns: 2})
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	// A nil interface keeps the service from touching Redis.
	var userCache service.UserCache
	if *redisURL != "" {
		c, err := cache.New(ctx, *redisURL, 1)
		if err != nil {
			fmt.Fprintln(os.Stderr, "connect redis:", err)
			os.Exit(1)
		}
		defer c.Close()
		userCache = c
	}
	accounts := service.NewAccountService(repo, userCache, nil, 0, nil, nil)

	out, err := ensureUser(ctx, repo, accounts, strings.ToLower(strings.TrimSpace(*email)), *password, *name, tier)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	switch strings.ToLower(*format) {
	case "plain":
		verb := "updated"
		if out.Created {
			verb = "created"
		}
		fmt.Printf("%s user %s (%s, %s)\n", verb, out.Email, out.UserID, out.Tier)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

// ensureUser creates the user, or moves an existing one to tier.
// An existing user's password is left alone.
func ensureUser(ctx context.Context, repo *repository.Repository, accounts *service.AccountService, email, password, name string, tier model.Tier) (*output, error) {
	existing, err := repo.GetUserByEmail(ctx, email)
	if err == nil {
		if err := accounts.ChangeTier(ctx, existing.ID, tier); err != nil {
			return nil, fmt.Errorf("set tier: %w", err)
		}
		return &output{UserID: existing.ID, Email: existing.Email, Tier: tier}, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           ulid.Make().String(),
		Email:        email,
		PasswordHash: hash,
		Tier:         tier,
		CreatedAt:    time.Now().UTC(),
	}
	if name = strings.TrimSpace(name); name != "" {
		user.Name = &name
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &output{UserID: user.ID, Email: user.Email, Tier: tier, Created: true}, nil
}
