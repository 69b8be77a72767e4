// Package dataitems provides the PostgreSQL-backed repository for data items
// and their credential/file detail rows, plus the duplicate-key lookups the
// service layer runs before writes.
package dataitems

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/smorozov/vaultcore/internal/common"
	"github.com/smorozov/vaultcore/internal/dbx"
	"github.com/smorozov/vaultcore/internal/server/models"
)

// PostgresRepository implements data item storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the item row plus its detail row. The detail row written is
// chosen by Kind; the other variant must be nil.
func (r *PostgresRepository) Create(ctx context.Context, item *models.DataItem) error {
	query := `
		INSERT INTO data_items (id, user_id, app_name, description, kind)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at;
	`
	err := r.db.QueryRowContext(ctx, query,
		item.ID, item.UserID, item.AppName, item.Description, item.Kind,
	).Scan(&item.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	switch item.Kind {
	case models.ItemKindCredential:
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO credentials (item_id, secret_enc, host_url, email) VALUES ($1, $2, $3, $4)`,
			item.ID, item.Credential.SecretEnc, item.Credential.HostURL, item.Credential.Email)
	case models.ItemKindFile:
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO files (item_id, payload, storage_key, file_name, extension) VALUES ($1, $2, $3, $4, $5)`,
			item.ID, item.File.Payload, item.File.StorageKey, item.File.FileName, item.File.Extension)
	default:
		return fmt.Errorf("unknown item kind: %q", item.Kind)
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ReplaceSeparators rewrites the item's separator links to exactly the given
// set. The business rule "at most one folder link" is the caller's to uphold.
func (r *PostgresRepository) ReplaceSeparators(ctx context.Context, itemID string, separatorIDs []string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM item_separators WHERE item_id = $1`, itemID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	for _, sepID := range separatorIDs {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO item_separators (item_id, separator_id) VALUES ($1, $2)`, itemID, sepID)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) GetByIDAndUser(ctx context.Context, id, userID string) (*models.DataItem, error) {
	query := `SELECT id, user_id, app_name, description, kind, created_at
		FROM data_items WHERE id = $1 AND user_id = $2`
	var d models.DataItem
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(
		&d.ID, &d.UserID, &d.AppName, &d.Description, &d.Kind, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := r.loadDetail(ctx, &d); err != nil {
		return nil, err
	}
	if err := r.loadSeparators(ctx, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PostgresRepository) loadDetail(ctx context.Context, d *models.DataItem) error {
	switch d.Kind {
	case models.ItemKindCredential:
		var c models.Credential
		err := r.db.QueryRowContext(ctx,
			`SELECT item_id, secret_enc, host_url, email FROM credentials WHERE item_id = $1`, d.ID,
		).Scan(&c.ItemID, &c.SecretEnc, &c.HostURL, &c.Email)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		d.Credential = &c
	case models.ItemKindFile:
		var f models.File
		err := r.db.QueryRowContext(ctx,
			`SELECT item_id, payload, storage_key, file_name, extension FROM files WHERE item_id = $1`, d.ID,
		).Scan(&f.ItemID, &f.Payload, &f.StorageKey, &f.FileName, &f.Extension)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		d.File = &f
	}
	return nil
}

func (r *PostgresRepository) loadSeparators(ctx context.Context, d *models.DataItem) error {
	query := `SELECT s.id, s.user_id, s.parent_id, s.name, s.kind, s.color, s.created_at
		FROM separators s
		JOIN item_separators isp ON isp.separator_id = s.id
		WHERE isp.item_id = $1`
	rows, err := r.db.QueryContext(ctx, query, d.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.Separator
		if err := rows.Scan(&s.ID, &s.UserID, &s.ParentID, &s.Name, &s.Kind, &s.Color, &s.CreatedAt); err != nil {
			return err
		}
		d.Separators = append(d.Separators, &s)
	}
	return rows.Err()
}

// List returns a page of the user's items, newest first, optionally filtered
// to items linked to any of separatorIDs. Detail and separator rows are not
// loaded; listings only need the overview columns.
func (r *PostgresRepository) List(ctx context.Context, userID string, limit, offset int, separatorIDs []string) ([]*models.DataItem, error) {
	var (
		query string
		args  []any
	)
	if len(separatorIDs) == 0 {
		query = `SELECT id, user_id, app_name, description, kind, created_at
			FROM data_items WHERE user_id = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = []any{userID, limit, offset}
	} else {
		query = `SELECT DISTINCT d.id, d.user_id, d.app_name, d.description, d.kind, d.created_at
			FROM data_items d
			JOIN item_separators isp ON isp.item_id = d.id
			WHERE d.user_id = $1 AND isp.separator_id IN (` + dbx.Placeholders(4, len(separatorIDs)) + `)
			ORDER BY d.created_at DESC LIMIT $2 OFFSET $3`
		args = dbx.Args([]any{userID, limit, offset}, separatorIDs)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.DataItem
	for rows.Next() {
		var d models.DataItem
		if err := rows.Scan(&d.ID, &d.UserID, &d.AppName, &d.Description, &d.Kind, &d.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) UpdateItem(ctx context.Context, item *models.DataItem) error {
	query := `UPDATE data_items SET app_name = $3, description = $4 WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, item.ID, item.UserID, item.AppName, item.Description)
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

func (r *PostgresRepository) UpdateCredential(ctx context.Context, cred *models.Credential) error {
	query := `UPDATE credentials SET secret_enc = $2, host_url = $3, email = $4 WHERE item_id = $1`
	if _, err := r.db.ExecContext(ctx, query, cred.ItemID, cred.SecretEnc, cred.HostURL, cred.Email); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdateFile updates the file detail row. The payload column is only touched
// when withPayload is set, so metadata edits never rewrite blob bytes.
func (r *PostgresRepository) UpdateFile(ctx context.Context, file *models.File, withPayload bool) error {
	var err error
	if withPayload {
		_, err = r.db.ExecContext(ctx,
			`UPDATE files SET payload = $2, storage_key = $3, file_name = $4, extension = $5 WHERE item_id = $1`,
			file.ItemID, file.Payload, file.StorageKey, file.FileName, file.Extension)
	} else {
		_, err = r.db.ExecContext(ctx,
			`UPDATE files SET file_name = $2, extension = $3 WHERE item_id = $1`,
			file.ItemID, file.FileName, file.Extension)
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindCredentialDuplicate(ctx context.Context, userID, appName, email string) (string, error) {
	query := `SELECT d.id FROM data_items d
		JOIN credentials c ON c.item_id = d.id
		WHERE d.user_id = $1 AND d.kind = 'credential' AND d.app_name = $2 AND c.email = $3
		LIMIT 1`
	var id string
	err := r.db.QueryRowContext(ctx, query, userID, appName, email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) FindFileDuplicate(ctx context.Context, userID, appName, fileName, extension string, folderID *string) (string, error) {
	base := `SELECT d.id FROM data_items d
		JOIN files f ON f.item_id = d.id
		WHERE d.user_id = $1 AND d.kind = 'file' AND d.app_name = $2
		  AND f.file_name = $3 AND f.extension = $4`

	var (
		query string
		args  []any
	)
	if folderID == nil {
		// "No folder" is its own duplicate bucket.
		query = base + `
		  AND NOT EXISTS (
			SELECT 1 FROM item_separators isp
			JOIN separators s ON s.id = isp.separator_id
			WHERE isp.item_id = d.id AND s.kind = 'folder')
		LIMIT 1`
		args = []any{userID, appName, fileName, extension}
	} else {
		query = base + `
		  AND EXISTS (
			SELECT 1 FROM item_separators isp
			WHERE isp.item_id = d.id AND isp.separator_id = $5)
		LIMIT 1`
		args = []any{userID, appName, fileName, extension, *folderID}
	}

	var id string
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) IDsByUser(ctx context.Context, userID string) ([]string, error) {
	return r.ids(ctx, `SELECT id FROM data_items WHERE user_id = $1`, userID)
}

// IDsBySeparators returns the distinct ids of items linked to any of the
// given separators.
func (r *PostgresRepository) IDsBySeparators(ctx context.Context, separatorIDs []string) ([]string, error) {
	if len(separatorIDs) == 0 {
		return nil, nil
	}
	query := `SELECT DISTINCT item_id FROM item_separators
		WHERE separator_id IN (` + dbx.Placeholders(1, len(separatorIDs)) + `)`
	return r.ids(ctx, query, dbx.Args(nil, separatorIDs)...)
}

func (r *PostgresRepository) ids(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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

// DeleteByIDs removes the items; detail rows and separator links cascade at
// the storage layer, and shared_items origins are nulled by their FK.
func (r *PostgresRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `DELETE FROM data_items WHERE id IN (` + dbx.Placeholders(1, len(ids)) + `)`
	if _, err := r.db.ExecContext(ctx, query, dbx.Args(nil, ids)...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM data_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) TotalFileBytes(ctx context.Context, userID string) (int64, error) {
	query := `SELECT COALESCE(SUM(LENGTH(f.payload)), 0) FROM files f
		JOIN data_items d ON d.id = f.item_id
		WHERE d.user_id = $1`
	var total int64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return total, nil
}
