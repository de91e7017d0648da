package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"github.com/codeduck/codeduck/internal/model"
)

// Common errors for identity link repository operations.
var (
	ErrLinkNotFound      = errors.New("identity link not found")
	ErrOwnershipConflict = errors.New("identity is linked to another user")
)

const linkColumns = `id, provider, external_id, owner_user_id, access_token, handle, contact_email, created_at, updated_at`

// FindLinkByExternalID returns the link for an external identity.
func (r *Repository) FindLinkByExternalID(ctx context.Context, provider, externalID string) (*model.IdentityLink, error) {
	query := `SELECT ` + linkColumns + ` FROM identity_links WHERE provider = $1 AND external_id = $2`

	link, err := scanLink(r.pool.QueryRow(ctx, query, provider, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to find link by external ID: %w", err)
	}

	return link, nil
}

// FindLinkByOwner returns the most recently refreshed link a user holds for a provider.
func (r *Repository) FindLinkByOwner(ctx context.Context, provider, ownerUserID string) (*model.IdentityLink, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM identity_links
		WHERE provider = $1 AND owner_user_id = $2
		ORDER BY updated_at DESC
		LIMIT 1
	`

	link, err := scanLink(r.pool.QueryRow(ctx, query, provider, ownerUserID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to find link by owner: %w", err)
	}

	return link, nil
}

// UpsertLink creates the link for an external identity or refreshes it in place.
//
// The existence check and the write are one statement: the conflict branch
// only updates when the stored owner equals the candidate. When another user
// owns the identity no row is returned and ErrOwnershipConflict is reported
// without touching the stored link.
func (r *Repository) UpsertLink(ctx context.Context, in model.LinkUpsert) (*model.IdentityLink, error) {
	query := `
		INSERT INTO identity_links (id, provider, external_id, owner_user_id, access_token, handle, contact_email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (provider, external_id) DO UPDATE
		SET access_token  = EXCLUDED.access_token,
		    handle        = EXCLUDED.handle,
		    contact_email = EXCLUDED.contact_email,
		    updated_at    = GREATEST(EXCLUDED.updated_at, identity_links.updated_at + interval '1 microsecond')
		WHERE identity_links.owner_user_id = EXCLUDED.owner_user_id
		RETURNING ` + linkColumns

	now := time.Now().UTC()
	link, err := scanLink(r.pool.QueryRow(ctx, query,
		ulid.Make().String(),
		in.Provider,
		in.ExternalID,
		in.OwnerUserID,
		in.AccessToken,
		in.Handle,
		in.ContactEmail,
		now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOwnershipConflict
		}
		return nil, fmt.Errorf("failed to upsert link: %w", err)
	}

	return link, nil
}

func scanLink(row pgx.Row) (*model.IdentityLink, error) {
	var link model.IdentityLink
	if err := row.Scan(
		&link.ID,
		&link.Provider,
		&link.ExternalID,
		&link.OwnerUserID,
		&link.AccessToken,
		&link.Handle,
		&link.ContactEmail,
		&link.CreatedAt,
		&link.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &link, nil
}
