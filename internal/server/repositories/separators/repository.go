package separators

import (
	"context"

	"github.com/smorozov/vaultcore/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, sep *models.Separator) error
	Update(ctx context.Context, sep *models.Separator) error
	DeleteByIDs(ctx context.Context, ids []string) error
	DeleteByUser(ctx context.Context, userID string) error

	GetByIDAndUser(ctx context.Context, id, userID string) (*models.Separator, error)
	GetFolderByNameAndParent(ctx context.Context, userID, name string, parentID *string) (*models.Separator, error)
	GetTagByName(ctx context.Context, userID, name string) (*models.Separator, error)
	GetTagsByIDs(ctx context.Context, userID string, ids []string) ([]*models.Separator, error)

	ListRootFolders(ctx context.Context, userID string) ([]*models.Separator, error)
	ListChildFolders(ctx context.Context, userID, parentID string) ([]*models.Separator, error)
	ListTags(ctx context.Context, userID string) ([]*models.Separator, error)

	// ChildFolderIDs returns the ids of folders whose parent is any of
	// parentIDs. It is the single primitive the descendant-closure BFS needs.
	ChildFolderIDs(ctx context.Context, userID string, parentIDs []string) ([]string, error)
}
