package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/smorozov/vaultcore/internal/common"
	"github.com/smorozov/vaultcore/internal/dbx"
	"github.com/smorozov/vaultcore/internal/logging"
	"github.com/smorozov/vaultcore/internal/server/models"
	"github.com/smorozov/vaultcore/internal/server/repositories/repomanager"
)

// CascadeService orchestrates the multi-table deletions: single items,
// recursive folder subtrees, and whole accounts. Each operation runs in one
// transaction; the deletion order is fixed because audit_logs references
// carry no ON DELETE action and share envelopes must be reaped after their
// last item goes.
type CascadeService struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	audit  AuditSink
	logger logging.Logger
}

// NewCascadeService constructs a CascadeService.
func NewCascadeService(db *sql.DB, rm repomanager.RepositoryManager, audit AuditSink, logger logging.Logger) *CascadeService {
	return &CascadeService{db: db, rm: rm, audit: audit, logger: logger.With("module", "cascade")}
}

// DeleteItem removes one owned item. Shares that referenced only this item
// lose their last shared entry and are deleted with it; shares holding other
// surviving items are kept, their copy of this item detached.
func (s *CascadeService) DeleteItem(ctx context.Context, userID, itemID string) error {
	var appName string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		items := s.rm.DataItems(tx)
		shares := s.rm.Shares(tx)

		item, err := items.GetByIDAndUser(ctx, itemID, userID)
		if err != nil {
			return err
		}
		appName = item.AppName

		// Affected shares are collected before the delete: afterwards the
		// shared rows only carry a NULL origin.
		shareIDs, err := shares.IDsByOriginItems(ctx, []string{itemID})
		if err != nil {
			return err
		}

		if err := s.rm.Audit(tx).DeleteLogsByItems(ctx, []string{itemID}); err != nil {
			return err
		}
		if err := items.DeleteByIDs(ctx, []string{itemID}); err != nil {
			return err
		}

		for _, shareID := range shareIDs {
			n, err := shares.CountSurvivingItems(ctx, shareID, itemID)
			if err != nil {
				return err
			}
			if n == 0 {
				if err := shares.Delete(ctx, shareID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, Fact{Action: models.ActionItemDeleted, UserID: userID, ItemID: itemID, AppName: appName})
	return nil
}

// DeleteFolderRecursive removes a folder, every descendant folder, and every
// item linked to any separator in that closure. Shares left without a single
// surviving item afterwards are deleted in one orphan pass at the end.
func (s *CascadeService) DeleteFolderRecursive(ctx context.Context, userID, folderID string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		seps := s.rm.Separators(tx)
		items := s.rm.DataItems(tx)
		shares := s.rm.Shares(tx)

		root, err := seps.GetByIDAndUser(ctx, folderID, userID)
		if err != nil {
			return err
		}
		if !root.IsFolder() {
			return fmt.Errorf("%w: separator is a tag", common.ErrInvalidOperation)
		}

		closure, err := folderClosure(ctx, seps, userID, folderID)
		if err != nil {
			return err
		}

		itemIDs, err := items.IDsBySeparators(ctx, closure)
		if err != nil {
			return err
		}

		var shareIDs []string
		if len(itemIDs) > 0 {
			shareIDs, err = shares.IDsByOriginItems(ctx, itemIDs)
			if err != nil {
				return err
			}
			if err := s.rm.Audit(tx).DeleteLogsByItems(ctx, itemIDs); err != nil {
				return err
			}
			if err := items.DeleteByIDs(ctx, itemIDs); err != nil {
				return err
			}
		}

		if err := seps.DeleteByIDs(ctx, closure); err != nil {
			return err
		}

		if len(shareIDs) > 0 {
			if err := shares.DeleteOrphaned(ctx, shareIDs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, Fact{Action: models.ActionSeparatorDeleted, UserID: userID})
	return nil
}

// WipeUserData deletes everything the user stores — logs, events, shares,
// items, separators — but keeps the account itself.
func (s *CascadeService) WipeUserData(ctx context.Context, userID string) error {
	if err := s.wipe(ctx, userID, false); err != nil {
		return err
	}
	s.audit.Record(ctx, Fact{Action: models.ActionUserWiped, UserID: userID, Notify: "All stored data was erased."})
	return nil
}

// DeleteAccount wipes the user's data and removes the account row.
func (s *CascadeService) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.wipe(ctx, userID, true); err != nil {
		return err
	}
	s.audit.Record(ctx, Fact{Action: models.ActionUserDeleted})
	return nil
}

func (s *CascadeService) wipe(ctx context.Context, userID string, dropUser bool) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		items := s.rm.DataItems(tx)

		if _, err := s.rm.Users(tx).GetByID(ctx, userID); err != nil {
			return err
		}

		itemIDs, err := items.IDsByUser(ctx, userID)
		if err != nil {
			return err
		}

		auditRepo := s.rm.Audit(tx)
		if err := auditRepo.DeleteLogsByUserAndItems(ctx, userID, itemIDs); err != nil {
			return err
		}
		if err := auditRepo.DeleteEventsByUser(ctx, userID); err != nil {
			return err
		}
		if err := s.rm.Shares(tx).DeleteByOwner(ctx, userID); err != nil {
			return err
		}
		if err := items.DeleteByUser(ctx, userID); err != nil {
			return err
		}
		if err := s.rm.Separators(tx).DeleteByUser(ctx, userID); err != nil {
			return err
		}
		if !dropUser {
			return nil
		}
		return s.rm.Users(tx).Delete(ctx, userID)
	})
}

// folderClosure returns the folder plus all its descendants, breadth-first
// over the parent->children query. Children already removed by a concurrent
// pass simply do not show up; that is not an error.
func folderClosure(ctx context.Context, repo interface {
	ChildFolderIDs(ctx context.Context, userID string, parentIDs []string) ([]string, error)
}, userID, rootID string) ([]string, error) {
	closure := []string{rootID}
	seen := map[string]struct{}{rootID: {}}
	frontier := []string{rootID}

	for len(frontier) > 0 {
		children, err := repo.ChildFolderIDs(ctx, userID, frontier)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				break
			}
			return nil, err
		}
		frontier = frontier[:0]
		for _, id := range children {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			closure = append(closure, id)
			frontier = append(frontier, id)
		}
	}
	return closure, nil
}
