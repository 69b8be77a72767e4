// Package shares provides the PostgreSQL-backed repository for share
// envelopes and their shared items. Quota consumption is a single
// conditional UPDATE so that concurrent redemptions can never push n_used
// past n_total.
package shares

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/smorozov/vaultcore/internal/common"
	"github.com/smorozov/vaultcore/internal/dbx"
	"github.com/smorozov/vaultcore/internal/server/models"
)

// PostgresRepository implements share storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the envelope and all its items.
func (r *PostgresRepository) Create(ctx context.Context, share *models.Share) error {
	query := `
		INSERT INTO shares (id, user_id, token, n_total, n_used, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at;
	`
	err := r.db.QueryRowContext(ctx, query,
		share.ID, share.UserID, share.Token, share.NTotal, share.NUsed, share.ExpiresAt,
	).Scan(&share.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	for _, item := range share.Items {
		item.ShareID = share.ID
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO shared_items (id, share_id, origin_item_id, payload, meta) VALUES ($1, $2, $3, $4, $5)`,
			item.ID, item.ShareID, item.OriginItemID, item.Payload, item.Meta)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

const shareColumns = `id, user_id, token, n_total, n_used, expires_at, created_at`

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE token = $1`
	return r.getOne(ctx, query, token)
}

func (r *PostgresRepository) GetByIDAndOwner(ctx context.Context, id, userID string) (*models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE id = $1 AND user_id = $2`
	return r.getOne(ctx, query, id, userID)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.Share, error) {
	var s models.Share
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&s.ID, &s.UserID, &s.Token, &s.NTotal, &s.NUsed, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := r.loadItems(ctx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) loadItems(ctx context.Context, s *models.Share) error {
	query := `SELECT id, share_id, origin_item_id, payload, meta, created_at
		FROM shared_items WHERE share_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, s.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it models.SharedItem
		if err := rows.Scan(&it.ID, &it.ShareID, &it.OriginItemID, &it.Payload, &it.Meta, &it.CreatedAt); err != nil {
			return err
		}
		s.Items = append(s.Items, &it)
	}
	return rows.Err()
}

// ListByOwner returns the user's share envelopes without item payloads.
func (r *PostgresRepository) ListByOwner(ctx context.Context, userID string) ([]*models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Share
	for rows.Next() {
		var s models.Share
		if err := rows.Scan(&s.ID, &s.UserID, &s.Token, &s.NTotal, &s.NUsed, &s.ExpiresAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ConsumeAccess(ctx context.Context, shareID string) (bool, error) {
	query := `UPDATE shares SET n_used = n_used + 1 WHERE id = $1 AND n_used < n_total`
	res, err := r.db.ExecContext(ctx, query, shareID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) UpdateRules(ctx context.Context, share *models.Share) error {
	query := `UPDATE shares SET n_total = $3, expires_at = $4 WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, share.ID, share.UserID, share.NTotal, share.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM shares WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByOwner(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM shares WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) IDsByOriginItems(ctx context.Context, itemIDs []string) ([]string, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	query := `SELECT DISTINCT share_id FROM shared_items
		WHERE origin_item_id IN (` + dbx.Placeholders(1, len(itemIDs)) + `)`
	rows, err := r.db.QueryContext(ctx, query, dbx.Args(nil, itemIDs)...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PostgresRepository) CountSurvivingItems(ctx context.Context, shareID, excludeItemID string) (int64, error) {
	query := `SELECT COUNT(*) FROM shared_items
		WHERE share_id = $1 AND origin_item_id IS NOT NULL AND origin_item_id <> $2`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, shareID, excludeItemID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) DeleteOrphaned(ctx context.Context, shareIDs []string) error {
	if len(shareIDs) == 0 {
		return nil
	}
	query := `DELETE FROM shares
		WHERE id IN (` + dbx.Placeholders(1, len(shareIDs)) + `)
		AND NOT EXISTS (
			SELECT 1 FROM shared_items si
			WHERE si.share_id = shares.id AND si.origin_item_id IS NOT NULL)`
	if _, err := r.db.ExecContext(ctx, query, dbx.Args(nil, shareIDs)...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
