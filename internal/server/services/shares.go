package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smorozov/vaultcore/internal/common"
	"github.com/smorozov/vaultcore/internal/cryptox"
	"github.com/smorozov/vaultcore/internal/dbx"
	"github.com/smorozov/vaultcore/internal/logging"
	"github.com/smorozov/vaultcore/internal/server/models"
	"github.com/smorozov/vaultcore/internal/server/repositories/repomanager"
)

// ShareService issues, redeems, and administers external sharing links.
// Redemption is quota-gated through a conditional counter increment, so two
// concurrent redeems of a one-use link cannot both succeed.
type ShareService struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	audit  AuditSink
	logger logging.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewShareService constructs a ShareService.
func NewShareService(db *sql.DB, rm repomanager.RepositoryManager, audit AuditSink, logger logging.Logger) *ShareService {
	return &ShareService{db: db, rm: rm, audit: audit, logger: logger.With("module", "shares"), now: time.Now}
}

// ShareItemInput is one item snapshot offered for sharing: the origin item id
// plus the payload re-encrypted under the share secret.
type ShareItemInput struct {
	OriginItemID string
	Payload      []byte
	Meta         string
}

// Issue creates a share over the given owned items. A zero quota defaults to
// one access; expiresAt nil means the link never expires.
func (s *ShareService) Issue(ctx context.Context, userID string, items []ShareItemInput, quota int64, expiresAt *time.Time) (*models.Share, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: a share needs at least one item", common.ErrInvalidOperation)
	}
	if quota == 0 {
		quota = 1
	}
	if quota < 0 {
		return nil, fmt.Errorf("%w: access quota must be positive", common.ErrInvalidOperation)
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return nil, fmt.Errorf("%w: expiry must be in the future", common.ErrInvalidOperation)
	}

	token, err := cryptox.NewShareToken()
	if err != nil {
		return nil, fmt.Errorf("generating share token: %w", err)
	}

	share := &models.Share{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     token,
		NTotal:    quota,
		ExpiresAt: expiresAt,
	}
	for _, in := range items {
		originID := in.OriginItemID
		si := &models.SharedItem{
			ID:           uuid.NewString(),
			ShareID:      share.ID,
			OriginItemID: &originID,
			Payload:      in.Payload,
		}
		if in.Meta != "" {
			meta := in.Meta
			si.Meta = &meta
		}
		share.Items = append(share.Items, si)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		itemsRepo := s.rm.DataItems(tx)
		for _, in := range items {
			if _, err := itemsRepo.GetByIDAndUser(ctx, in.OriginItemID, userID); err != nil {
				return err
			}
		}
		return s.rm.Shares(tx).Create(ctx, share)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, Fact{Action: models.ActionShareCreated, UserID: userID})
	return share, nil
}

// Redeem grants one access through a share token. A missing, expired,
// exhausted, or fully-orphaned share all answer ErrNotFound; the caller must
// not be able to tell which it was. Returns the surviving item snapshots.
func (s *ShareService) Redeem(ctx context.Context, token string) (*models.Share, error) {
	var share *models.Share
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Shares(tx)

		var err error
		share, err = repo.GetByToken(ctx, token)
		if err != nil {
			return err
		}
		if share.ExpiresAt != nil && !share.ExpiresAt.After(s.now()) {
			return common.ErrNotFound
		}
		surviving := share.SurvivingItems()
		if len(surviving) == 0 {
			return common.ErrNotFound
		}

		granted, err := repo.ConsumeAccess(ctx, share.ID)
		if err != nil {
			return err
		}
		if !granted {
			// Quota spent, possibly by a redeem racing this one.
			return common.ErrNotFound
		}
		share.NUsed++
		share.Items = surviving
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, Fact{Action: models.ActionShareRedeemed, UserID: share.UserID,
		Notify: "A shared link you issued was accessed."})
	return share, nil
}

// List returns the user's shares with their items.
func (s *ShareService) List(ctx context.Context, userID string) ([]*models.Share, error) {
	return s.rm.Shares(s.db).ListByOwner(ctx, userID)
}

// ShareRules is a partial edit of a share's quota and expiry. Quota, when
// set, must exceed the accesses already spent. SetExpiry with a nil time
// removes the expiry.
type ShareRules struct {
	Quota     *int64
	SetExpiry bool
	ExpiresAt *time.Time
}

// EditRules updates the quota and/or expiry of an owned share.
func (s *ShareService) EditRules(ctx context.Context, userID, shareID string, rules ShareRules) (*models.Share, error) {
	if rules.Quota == nil && !rules.SetExpiry {
		return nil, fmt.Errorf("%w: at least one field must be provided", common.ErrInvalidOperation)
	}

	var share *models.Share
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Shares(tx)

		var err error
		share, err = repo.GetByIDAndOwner(ctx, shareID, userID)
		if err != nil {
			return err
		}

		if rules.Quota != nil {
			if *rules.Quota <= 0 {
				return fmt.Errorf("%w: access quota must be positive", common.ErrInvalidOperation)
			}
			if *rules.Quota < share.NUsed {
				return fmt.Errorf("%w: quota cannot drop below accesses already used", common.ErrInvalidOperation)
			}
			share.NTotal = *rules.Quota
		}
		if rules.SetExpiry {
			if rules.ExpiresAt != nil && !rules.ExpiresAt.After(s.now()) {
				return fmt.Errorf("%w: expiry must be in the future", common.ErrInvalidOperation)
			}
			share.ExpiresAt = rules.ExpiresAt
		}
		return repo.UpdateRules(ctx, share)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, Fact{Action: models.ActionShareUpdated, UserID: userID})
	return share, nil
}

// Revoke deletes an owned share; the link stops working immediately.
func (s *ShareService) Revoke(ctx context.Context, userID, shareID string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Shares(tx)
		if _, err := repo.GetByIDAndOwner(ctx, shareID, userID); err != nil {
			return err
		}
		return repo.Delete(ctx, shareID)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, Fact{Action: models.ActionShareRevoked, UserID: userID})
	return nil
}
