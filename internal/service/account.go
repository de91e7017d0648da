package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/codeduck/codeduck/internal/auth"
	"github.com/codeduck/codeduck/internal/cache"
	"github.com/codeduck/codeduck/internal/metrics"
	"github.com/codeduck/codeduck/internal/model"
	"github.com/codeduck/codeduck/internal/repository"
)

// UserStore persists local accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserStats(ctx context.Context, id string) (*model.UserStats, error)
	SetUserTier(ctx context.Context, id string, tier model.Tier) error
}

// UserCache keeps recently resolved users out of Postgres.
type UserCache interface {
	GetSessionUser(ctx context.Context, userID string) (*model.User, error)
	SetSessionUser(ctx context.Context, user *model.User, ttl time.Duration) error
	DeleteSessionUser(ctx context.Context, userID string) error
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(user *model.User) (string, error)
}

// RegisterInput defines input for creating an account.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// AuthResult is a signed-in user with a fresh session token.
type AuthResult struct {
	User  *model.User
	Token string
}

// AccountService handles registration, login and session user lookups.
type AccountService struct {
	users    UserStore
	cache    UserCache
	tokens   TokenIssuer
	cacheTTL time.Duration
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewAccountService creates a new AccountService. cache may be nil.
func NewAccountService(users UserStore, userCache UserCache, tokens TokenIssuer, cacheTTL time.Duration, recorder metrics.Recorder, logger *slog.Logger) *AccountService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		users:    users,
		cache:    userCache,
		tokens:   tokens,
		cacheTTL: cacheTTL,
		metrics:  recorder,
		logger:   logger,
	}
}

// Register creates a FREE account and signs it in.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return nil, invalid("email", "Email and password are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, invalid("email", "Invalid email address")
	}
	if len(in.Password) < auth.MinPasswordLength {
		return nil, invalid("password", fmt.Sprintf("Password must be at least %d characters", auth.MinPasswordLength))
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           ulid.Make().String(),
		Email:        email,
		PasswordHash: hash,
		Tier:         model.TierFree,
		CreatedAt:    time.Now().UTC(),
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		user.Name = &name
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("%w: create user: %w", ErrStorageFailure, err)
	}

	s.logger.Info("user_registered", "user_id", user.ID)
	return s.signIn(user)
}

// Login verifies credentials and issues a session token.
func (s *AccountService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, invalid("email", "Email and password are required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			auth.VerifyDummy(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: get user: %w", ErrStorageFailure, err)
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	return s.signIn(user)
}

func (s *AccountService) signIn(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// GetUser resolves the user behind a session, consulting the cache first.
// Cache failures fall through to Postgres.
func (s *AccountService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if s.cache != nil {
		user, err := s.cache.GetSessionUser(ctx, userID)
		if err == nil {
			s.metrics.IncCacheHit(metrics.CacheSession)
			return user, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("session_cache_error", "error", err)
		}
		s.metrics.IncCacheMiss(metrics.CacheSession)
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: get user: %w", ErrStorageFailure, err)
	}

	if s.cache != nil {
		if err := s.cache.SetSessionUser(ctx, user, s.cacheTTL); err != nil {
			s.logger.Warn("session_cache_error", "error", err)
		}
	}
	return user, nil
}

// ChangeTier moves a user to tier and drops the cached copy so the next
// request sees the new quota. A failed cache delete is logged; the entry
// then expires with its TTL.
func (s *AccountService) ChangeTier(ctx context.Context, userID string, tier model.Tier) error {
	if !tier.IsValid() {
		return invalid("tier", fmt.Sprintf("Unknown tier %q", tier))
	}

	if err := s.users.SetUserTier(ctx, userID, tier); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: set tier: %w", ErrStorageFailure, err)
	}

	if s.cache != nil {
		if err := s.cache.DeleteSessionUser(ctx, userID); err != nil {
			s.logger.Warn("session_cache_error", "user_id", userID, "error", err)
		}
	}
	s.logger.Info("user_tier_changed", "user_id", userID, "tier", tier)
	return nil
}

// Profile returns the user with their linked-account and request counts.
func (s *AccountService) Profile(ctx context.Context, userID string) (*model.User, *model.UserStats, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	stats, err := s.users.GetUserStats(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: get stats: %w", ErrStorageFailure, err)
	}
	return user, stats, nil
}
