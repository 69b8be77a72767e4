package audit

import (
	"context"

	"github.com/smorozov/vaultcore/internal/server/models"
)

type Repository interface {
	AppendLog(ctx context.Context, log *models.AuditLog) error
	AppendEvent(ctx context.Context, event *models.Event) error

	ListLogsByUser(ctx context.Context, userID string, limit int) ([]*models.AuditLog, error)
	ListEventsByUser(ctx context.Context, userID string, limit int) ([]*models.Event, error)

	DeleteLogsByItems(ctx context.Context, itemIDs []string) error
	DeleteLogsByUserAndItems(ctx context.Context, userID string, itemIDs []string) error
	DeleteEventsByUser(ctx context.Context, userID string) error
}
