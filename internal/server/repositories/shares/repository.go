package shares

import (
	"context"

	"github.com/smorozov/vaultcore/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, share *models.Share) error
	GetByToken(ctx context.Context, token string) (*models.Share, error)
	GetByIDAndOwner(ctx context.Context, id, userID string) (*models.Share, error)
	ListByOwner(ctx context.Context, userID string) ([]*models.Share, error)

	// ConsumeAccess performs the conditional increment
	// `n_used = n_used + 1 WHERE n_used < n_total` and reports whether an
	// access was actually granted. A false result means the quota was
	// already exhausted, including by a concurrent redemption.
	ConsumeAccess(ctx context.Context, shareID string) (bool, error)

	UpdateRules(ctx context.Context, share *models.Share) error
	Delete(ctx context.Context, id string) error
	DeleteByOwner(ctx context.Context, userID string) error

	// IDsByOriginItems returns the distinct ids of shares holding a
	// shared item that originates from any of the given items.
	IDsByOriginItems(ctx context.Context, itemIDs []string) ([]string, error)

	// CountSurvivingItems counts the share's items whose origin still
	// exists, excluding the given origin item.
	CountSurvivingItems(ctx context.Context, shareID, excludeItemID string) (int64, error)

	// DeleteOrphaned removes, from the given candidate set, every share
	// left with no surviving items.
	DeleteOrphaned(ctx context.Context, shareIDs []string) error
}
