package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/codeduck/codeduck/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailExists  = errors.New("email already exists")
)

const userColumns = `id, email, name, password_hash, tier, created_at`

// CreateUser inserts a new user into the database.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, email, name, password_hash, tier, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		string(user.Tier),
		user.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

// GetUserByEmail retrieves a user by their email address, ignoring case.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// SetUserTier changes a user's subscription tier.
func (r *Repository) SetUserTier(ctx context.Context, id string, tier model.Tier) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET tier = $2 WHERE id = $1`, id, string(tier))
	if err != nil {
		return fmt.Errorf("failed to set user tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetUserStats counts the linked accounts and AI requests of a user.
func (r *Repository) GetUserStats(ctx context.Context, id string) (*model.UserStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM identity_links WHERE owner_user_id = $1 AND provider = $2),
			(SELECT COUNT(*) FROM usage_records WHERE user_id = $1)
	`

	var stats model.UserStats
	if err := r.pool.QueryRow(ctx, query, id, model.ProviderGitHub).Scan(&stats.GitHubAccounts, &stats.AIRequests); err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}

	return &stats, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		user model.User
		tier string
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&tier,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	user.Tier = model.ParseTier(tier)
	return &user, nil
}
