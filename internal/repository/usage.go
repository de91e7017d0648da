package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codeduck/codeduck/internal/model"
)

// CountUsageSince counts the usage records of a user created at or after since.
func (r *Repository) CountUsageSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM usage_records
		WHERE user_id = $1 AND created_at >= $2
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}

	return count, nil
}

// AppendUsage stores a new usage record. Records are never updated.
func (r *Repository) AppendUsage(ctx context.Context, rec *model.UsageRecord) error {
	input, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("failed to encode usage input: %w", err)
	}

	var output []byte
	if rec.Output != nil {
		output, err = json.Marshal(rec.Output)
		if err != nil {
			return fmt.Errorf("failed to encode usage output: %w", err)
		}
	}

	query := `
		INSERT INTO usage_records (id, user_id, request_type, cost, input, output, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if _, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.RequestType,
		rec.Cost,
		input,
		output,
		rec.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to append usage: %w", err)
	}

	return nil
}

// ListRecentUsage returns the newest usage records of a user, newest first.
// Output payloads are not loaded.
func (r *Repository) ListRecentUsage(ctx context.Context, userID string, limit int) ([]*model.UsageRecord, error) {
	query := `
		SELECT id, user_id, request_type, cost, input, created_at
		FROM usage_records
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	defer rows.Close()

	records := make([]*model.UsageRecord, 0, limit)
	for rows.Next() {
		var (
			rec   model.UsageRecord
			input []byte
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.RequestType, &rec.Cost, &input, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		if err := json.Unmarshal(input, &rec.Input); err != nil {
			return nil, fmt.Errorf("failed to decode usage input %s: %w", rec.ID, err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage: %w", err)
	}

	return records, nil
}
