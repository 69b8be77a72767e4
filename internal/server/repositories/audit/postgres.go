// Package audit provides the PostgreSQL-backed repository for audit logs and
// user-facing events. Both are append-only derived data; cascade paths delete
// them ahead of their referents because the log foreign keys carry no
// ON DELETE action.
package audit

import (
	"context"
	"fmt"

	"github.com/smorozov/vaultcore/internal/dbx"
	"github.com/smorozov/vaultcore/internal/server/models"
)

// PostgresRepository implements audit storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) AppendLog(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (id, user_id, item_id, action, app_name, device, ip, region)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING at;
	`
	err := r.db.QueryRowContext(ctx, query,
		log.ID, log.UserID, log.ItemID, log.Action, log.AppName, log.Device, log.IP, log.Region,
	).Scan(&log.At)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AppendEvent(ctx context.Context, event *models.Event) error {
	query := `INSERT INTO events (id, user_id, message) VALUES ($1, $2, $3) RETURNING created_at;`
	err := r.db.QueryRowContext(ctx, query, event.ID, event.UserID, event.Message).Scan(&event.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListLogsByUser(ctx context.Context, userID string, limit int) ([]*models.AuditLog, error) {
	query := `SELECT id, user_id, item_id, action, app_name, device, ip, region, at
		FROM audit_logs WHERE user_id = $1 ORDER BY at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.ItemID, &l.Action, &l.AppName, &l.Device, &l.IP, &l.Region, &l.At); err != nil {
			return nil, err
		}
		result = append(result, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListEventsByUser(ctx context.Context, userID string, limit int) ([]*models.Event, error) {
	query := `SELECT id, user_id, message, created_at
		FROM events WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.UserID, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) DeleteLogsByItems(ctx context.Context, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	query := `DELETE FROM audit_logs WHERE item_id IN (` + dbx.Placeholders(1, len(itemIDs)) + `)`
	if _, err := r.db.ExecContext(ctx, query, dbx.Args(nil, itemIDs)...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteLogsByUserAndItems removes every log referencing the user directly
// or referencing any of the user's items.
func (r *PostgresRepository) DeleteLogsByUserAndItems(ctx context.Context, userID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	}
	query := `DELETE FROM audit_logs WHERE user_id = $1 OR item_id IN (` + dbx.Placeholders(2, len(itemIDs)) + `)`
	if _, err := r.db.ExecContext(ctx, query, dbx.Args([]any{userID}, itemIDs)...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteEventsByUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
