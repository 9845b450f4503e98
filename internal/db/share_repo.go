package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"voyage/internal/types"
)

// ShareLinkRepository provides data access for the share_links table.
type ShareLinkRepository struct {
	db DBTX
}

// NewShareLinkRepository creates a new ShareLinkRepository backed by the
// given database connection (pool or transaction).
func NewShareLinkRepository(db DBTX) *ShareLinkRepository {
	return &ShareLinkRepository{db: db}
}

// Create inserts a share link. A voyage has at most one link; re-sharing
// returns the existing token via the ON CONFLICT clause.
func (r *ShareLinkRepository) Create(ctx context.Context, link *types.ShareLink) (*types.ShareLink, error) {
	var existing types.ShareLink
	err := r.db.QueryRow(ctx,
		`INSERT INTO share_links (token, voyage_id, owner_id, created_at)
		 VALUES ($1, $2, $3, COALESCE($4, NOW()))
		 ON CONFLICT (voyage_id) DO UPDATE SET voyage_id = EXCLUDED.voyage_id
		 RETURNING token, voyage_id, owner_id, created_at`,
		link.Token,
		link.VoyageID,
		link.OwnerID,
		nilIfZeroTime(link.CreatedAt),
	).Scan(&existing.Token, &existing.VoyageID, &existing.OwnerID, &existing.CreatedAt)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create share link", err)
	}
	return &existing, nil
}

// GetByToken retrieves a share link by its public token.
func (r *ShareLinkRepository) GetByToken(ctx context.Context, token string) (*types.ShareLink, error) {
	var link types.ShareLink
	err := r.db.QueryRow(ctx,
		`SELECT token, voyage_id, owner_id, created_at FROM share_links WHERE token = $1`,
		token,
	).Scan(&link.Token, &link.VoyageID, &link.OwnerID, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundShare, "share link not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve share link", err)
	}
	return &link, nil
}

// DeleteByVoyage revokes the share link for a voyage. Revoking a voyage
// that was never shared is not an error.
func (r *ShareLinkRepository) DeleteByVoyage(ctx context.Context, voyageID, ownerID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM share_links WHERE voyage_id = $1 AND owner_id = $2`,
		voyageID,
		ownerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to revoke share link", err)
	}
	return nil
}
