// Package separators provides the PostgreSQL-backed repository for the
// folder/tag tree. Folders reference their parent by id; descendant sets are
// computed by the service layer via iterative traversal over ChildFolderIDs,
// not by recursive SQL, to keep the queries portable.
package separators

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/smorozov/vaultcore/internal/common"
	"github.com/smorozov/vaultcore/internal/dbx"
	"github.com/smorozov/vaultcore/internal/server/models"
)

// PostgresRepository implements separator storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const separatorColumns = `id, user_id, parent_id, name, kind, color, created_at`

func (r *PostgresRepository) Create(ctx context.Context, sep *models.Separator) error {
	query := `
		INSERT INTO separators (id, user_id, parent_id, name, kind, color)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at;
	`
	err := r.db.QueryRowContext(ctx, query,
		sep.ID, sep.UserID, sep.ParentID, sep.Name, sep.Kind, sep.Color,
	).Scan(&sep.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, sep *models.Separator) error {
	query := `UPDATE separators SET name = $3, parent_id = $4, color = $5 WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, sep.ID, sep.UserID, sep.Name, sep.ParentID, sep.Color)
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

// DeleteByIDs removes the given separators. Already-removed ids are not an
// error; the statement simply affects fewer rows.
func (r *PostgresRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `DELETE FROM separators WHERE id IN (` + dbx.Placeholders(1, len(ids)) + `)`
	if _, err := r.db.ExecContext(ctx, query, dbx.Args(nil, ids)...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM separators WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByIDAndUser(ctx context.Context, id, userID string) (*models.Separator, error) {
	query := `SELECT ` + separatorColumns + ` FROM separators WHERE id = $1 AND user_id = $2`
	return scanOne(r.db.QueryRowContext(ctx, query, id, userID))
}

// GetFolderByNameAndParent looks up a sibling folder with the given name.
// A nil parentID addresses the root level.
func (r *PostgresRepository) GetFolderByNameAndParent(ctx context.Context, userID, name string, parentID *string) (*models.Separator, error) {
	if parentID == nil {
		query := `SELECT ` + separatorColumns + ` FROM separators
			WHERE user_id = $1 AND kind = 'folder' AND name = $2 AND parent_id IS NULL`
		return scanOne(r.db.QueryRowContext(ctx, query, userID, name))
	}
	query := `SELECT ` + separatorColumns + ` FROM separators
		WHERE user_id = $1 AND kind = 'folder' AND name = $2 AND parent_id = $3`
	return scanOne(r.db.QueryRowContext(ctx, query, userID, name, *parentID))
}

func (r *PostgresRepository) GetTagByName(ctx context.Context, userID, name string) (*models.Separator, error) {
	query := `SELECT ` + separatorColumns + ` FROM separators
		WHERE user_id = $1 AND kind = 'tag' AND name = $2`
	return scanOne(r.db.QueryRowContext(ctx, query, userID, name))
}

func (r *PostgresRepository) GetTagsByIDs(ctx context.Context, userID string, ids []string) ([]*models.Separator, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + separatorColumns + ` FROM separators
		WHERE user_id = $1 AND kind = 'tag' AND id IN (` + dbx.Placeholders(2, len(ids)) + `)`
	return r.list(ctx, query, dbx.Args([]any{userID}, ids)...)
}

func (r *PostgresRepository) ListRootFolders(ctx context.Context, userID string) ([]*models.Separator, error) {
	query := `SELECT ` + separatorColumns + ` FROM separators
		WHERE user_id = $1 AND kind = 'folder' AND parent_id IS NULL ORDER BY name`
	return r.list(ctx, query, userID)
}

func (r *PostgresRepository) ListChildFolders(ctx context.Context, userID, parentID string) ([]*models.Separator, error) {
	query := `SELECT ` + separatorColumns + ` FROM separators
		WHERE user_id = $1 AND kind = 'folder' AND parent_id = $2 ORDER BY name`
	return r.list(ctx, query, userID, parentID)
}

func (r *PostgresRepository) ListTags(ctx context.Context, userID string) ([]*models.Separator, error) {
	query := `SELECT ` + separatorColumns + ` FROM separators
		WHERE user_id = $1 AND kind = 'tag' ORDER BY name`
	return r.list(ctx, query, userID)
}

func (r *PostgresRepository) ChildFolderIDs(ctx context.Context, userID string, parentIDs []string) ([]string, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	query := `SELECT id FROM separators
		WHERE user_id = $1 AND kind = 'folder' AND parent_id IN (` + dbx.Placeholders(2, len(parentIDs)) + `)`
	rows, err := r.db.QueryContext(ctx, query, dbx.Args([]any{userID}, parentIDs)...)
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

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Separator, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Separator
	for rows.Next() {
		var s models.Separator
		if err := rows.Scan(&s.ID, &s.UserID, &s.ParentID, &s.Name, &s.Kind, &s.Color, &s.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanOne(row *sql.Row) (*models.Separator, error) {
	var s models.Separator
	err := row.Scan(&s.ID, &s.UserID, &s.ParentID, &s.Name, &s.Kind, &s.Color, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &s, nil
}
