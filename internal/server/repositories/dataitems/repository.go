package dataitems

import (
	"context"

	"github.com/smorozov/vaultcore/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, item *models.DataItem) error
	ReplaceSeparators(ctx context.Context, itemID string, separatorIDs []string) error

	GetByIDAndUser(ctx context.Context, id, userID string) (*models.DataItem, error)
	List(ctx context.Context, userID string, limit, offset int, separatorIDs []string) ([]*models.DataItem, error)

	UpdateItem(ctx context.Context, item *models.DataItem) error
	UpdateCredential(ctx context.Context, cred *models.Credential) error
	UpdateFile(ctx context.Context, file *models.File, withPayload bool) error

	// FindCredentialDuplicate returns the id of the item matching the
	// credential duplicate key (user, app name, email-or-absence), or ""
	// when no such item exists.
	FindCredentialDuplicate(ctx context.Context, userID, appName, email string) (string, error)

	// FindFileDuplicate returns the id of the item matching the file
	// duplicate key (user, app name, file name, extension, folder bucket),
	// or "". A nil folderID addresses the "no folder" bucket.
	FindFileDuplicate(ctx context.Context, userID, appName, fileName, extension string, folderID *string) (string, error)

	IDsByUser(ctx context.Context, userID string) ([]string, error)
	IDsBySeparators(ctx context.Context, separatorIDs []string) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	DeleteByUser(ctx context.Context, userID string) error

	// TotalFileBytes sums the inline file payload sizes of a user, for
	// storage quota checks.
	TotalFileBytes(ctx context.Context, userID string) (int64, error)
}
