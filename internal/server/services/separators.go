package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/smorozov/vaultcore/internal/common"
	"github.com/smorozov/vaultcore/internal/dbx"
	"github.com/smorozov/vaultcore/internal/logging"
	"github.com/smorozov/vaultcore/internal/server/models"
	"github.com/smorozov/vaultcore/internal/server/repositories/separators"
	"github.com/smorozov/vaultcore/internal/server/repositories/repomanager"
)

// SeparatorService maintains the folder/tag tree: creation, renames, moves,
// and the naming/acyclicity invariants that go with them.
type SeparatorService struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	audit  AuditSink
	logger logging.Logger
}

// NewSeparatorService constructs a SeparatorService.
func NewSeparatorService(db *sql.DB, rm repomanager.RepositoryManager, audit AuditSink, logger logging.Logger) *SeparatorService {
	return &SeparatorService{db: db, rm: rm, audit: audit, logger: logger.With("module", "separators")}
}

// CreateFolder creates a folder under parentID (nil = root level). The
// parent must be an owned folder; the name must be free among its siblings.
func (s *SeparatorService) CreateFolder(ctx context.Context, userID, name string, parentID *string) (*models.Separator, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: folder name must not be empty", common.ErrInvalidOperation)
	}

	folder := &models.Separator{
		ID:       uuid.NewString(),
		UserID:   userID,
		ParentID: parentID,
		Name:     name,
		Kind:     models.SeparatorKindFolder,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Separators(tx)

		if parentID != nil {
			parent, err := repo.GetByIDAndUser(ctx, *parentID, userID)
			if err != nil {
				return err
			}
			if !parent.IsFolder() {
				return fmt.Errorf("%w: parent separator is a tag", common.ErrNotFound)
			}
		}

		if err := checkSiblingName(ctx, repo, userID, name, parentID); err != nil {
			return err
		}
		return repo.Create(ctx, folder)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, Fact{Action: models.ActionFolderCreated, UserID: userID})
	return folder, nil
}

// CreateTag creates a tag; tag names are unique per user.
func (s *SeparatorService) CreateTag(ctx context.Context, userID, name, color string) (*models.Separator, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: tag name must not be empty", common.ErrInvalidOperation)
	}

	tag := &models.Separator{
		ID:     uuid.NewString(),
		UserID: userID,
		Name:   name,
		Kind:   models.SeparatorKindTag,
	}
	if color != "" {
		tag.Color = &color
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Separators(tx)
		if err := checkTagName(ctx, repo, userID, name); err != nil {
			return err
		}
		return repo.Create(ctx, tag)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, Fact{Action: models.ActionTagCreated, UserID: userID})
	return tag, nil
}

// FolderUpdate describes a partial folder edit. Name is applied when
// non-nil. The parent changes only when SetParent is true: ParentID nil then
// means "move to root level".
type FolderUpdate struct {
	Name      *string
	SetParent bool
	ParentID  *string
}

// UpdateFolder renames and/or moves a folder. Sibling uniqueness is
// re-checked against the effective parent, and moves are rejected when the
// new parent is the folder itself or one of its descendants.
func (s *SeparatorService) UpdateFolder(ctx context.Context, userID, folderID string, upd FolderUpdate) (*models.Separator, error) {
	if upd.Name == nil && !upd.SetParent {
		return nil, fmt.Errorf("%w: at least one field must be provided", common.ErrInvalidOperation)
	}

	var folder *models.Separator
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Separators(tx)

		var err error
		folder, err = repo.GetByIDAndUser(ctx, folderID, userID)
		if err != nil {
			return err
		}
		if !folder.IsFolder() {
			return fmt.Errorf("%w: separator is a tag", common.ErrNotFound)
		}

		newParent := folder.ParentID
		if upd.SetParent {
			newParent = upd.ParentID
			if newParent != nil {
				if *newParent == folder.ID {
					return fmt.Errorf("%w: folder cannot be moved into itself", common.ErrInvalidOperation)
				}
				parent, err := repo.GetByIDAndUser(ctx, *newParent, userID)
				if err != nil {
					return err
				}
				if !parent.IsFolder() {
					return fmt.Errorf("%w: new parent is a tag", common.ErrNotFound)
				}
				if err := ensureNotDescendant(ctx, repo, userID, folder.ID, parent); err != nil {
					return err
				}
			}
		}

		newName := folder.Name
		if upd.Name != nil {
			newName = strings.TrimSpace(*upd.Name)
			if newName == "" {
				return fmt.Errorf("%w: folder name must not be empty", common.ErrInvalidOperation)
			}
		}

		// Re-check sibling uniqueness whenever the (name, parent) pair
		// changes; the folder itself is not its own conflict.
		if newName != folder.Name || upd.SetParent {
			existing, err := repo.GetFolderByNameAndParent(ctx, userID, newName, newParent)
			if err != nil && !errors.Is(err, common.ErrNotFound) {
				return err
			}
			if existing != nil && existing.ID != folder.ID {
				return fmt.Errorf("%w: folder %q already exists at this level", common.ErrNameConflict, newName)
			}
		}

		folder.Name = newName
		folder.ParentID = newParent
		return repo.Update(ctx, folder)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, Fact{Action: models.ActionSeparatorUpdated, UserID: userID})
	return folder, nil
}

// TagUpdate describes a partial tag edit; nil fields keep current values.
type TagUpdate struct {
	Name  *string
	Color *string
}

// UpdateTag renames and/or recolors a tag.
func (s *SeparatorService) UpdateTag(ctx context.Context, userID, tagID string, upd TagUpdate) (*models.Separator, error) {
	if upd.Name == nil && upd.Color == nil {
		return nil, fmt.Errorf("%w: at least one field must be provided", common.ErrInvalidOperation)
	}

	var tag *models.Separator
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Separators(tx)

		var err error
		tag, err = repo.GetByIDAndUser(ctx, tagID, userID)
		if err != nil {
			return err
		}
		if tag.IsFolder() {
			return fmt.Errorf("%w: separator is a folder", common.ErrNotFound)
		}

		if upd.Name != nil && *upd.Name != tag.Name {
			name := strings.TrimSpace(*upd.Name)
			if name == "" {
				return fmt.Errorf("%w: tag name must not be empty", common.ErrInvalidOperation)
			}
			if err := checkTagName(ctx, repo, userID, name); err != nil {
				return err
			}
			tag.Name = name
		}
		if upd.Color != nil {
			tag.Color = upd.Color
		}
		return repo.Update(ctx, tag)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, Fact{Action: models.ActionSeparatorUpdated, UserID: userID})
	return tag, nil
}

// DeleteTag removes a tag. Item links vanish with it at the storage layer;
// the items themselves are untouched. Folders must go through the recursive
// cascade instead.
func (s *SeparatorService) DeleteTag(ctx context.Context, userID, tagID string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Separators(tx)
		tag, err := repo.GetByIDAndUser(ctx, tagID, userID)
		if err != nil {
			return err
		}
		if tag.IsFolder() {
			return fmt.Errorf("%w: separator is a folder, use recursive folder deletion", common.ErrInvalidOperation)
		}
		return repo.DeleteByIDs(ctx, []string{tagID})
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, Fact{Action: models.ActionSeparatorDeleted, UserID: userID})
	return nil
}

// RootFolders returns the user's root-level folders.
func (s *SeparatorService) RootFolders(ctx context.Context, userID string) ([]*models.Separator, error) {
	return s.rm.Separators(s.db).ListRootFolders(ctx, userID)
}

// ChildFolders returns the subfolders of an owned folder.
func (s *SeparatorService) ChildFolders(ctx context.Context, userID, folderID string) ([]*models.Separator, error) {
	repo := s.rm.Separators(s.db)
	parent, err := repo.GetByIDAndUser(ctx, folderID, userID)
	if err != nil {
		return nil, err
	}
	if !parent.IsFolder() {
		return nil, fmt.Errorf("%w: separator is a tag", common.ErrNotFound)
	}
	return repo.ListChildFolders(ctx, userID, folderID)
}

// Tags returns all of the user's tags.
func (s *SeparatorService) Tags(ctx context.Context, userID string) ([]*models.Separator, error) {
	return s.rm.Separators(s.db).ListTags(ctx, userID)
}

// Get returns one owned separator.
func (s *SeparatorService) Get(ctx context.Context, userID, id string) (*models.Separator, error) {
	return s.rm.Separators(s.db).GetByIDAndUser(ctx, id, userID)
}

func checkSiblingName(ctx context.Context, repo separators.Repository, userID, name string, parentID *string) error {
	existing, err := repo.GetFolderByNameAndParent(ctx, userID, name, parentID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}
	if existing != nil {
		if parentID == nil {
			return fmt.Errorf("%w: root folder %q already exists", common.ErrNameConflict, name)
		}
		return fmt.Errorf("%w: folder %q already exists in this folder", common.ErrNameConflict, name)
	}
	return nil
}

func checkTagName(ctx context.Context, repo separators.Repository, userID, name string) error {
	existing, err := repo.GetTagByName(ctx, userID, name)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: tag %q already exists", common.ErrNameConflict, name)
	}
	return nil
}

// ensureNotDescendant walks parent pointers upward from the candidate parent
// to the root and fails if folderID is met on the way: attaching below a
// descendant would close a cycle. The walk is bounded by the tree height.
func ensureNotDescendant(ctx context.Context, repo separators.Repository, userID, folderID string, candidate *models.Separator) error {
	cur := candidate
	for {
		if cur.ID == folderID {
			return fmt.Errorf("%w: folder cannot be moved under its own subfolder", common.ErrInvalidOperation)
		}
		if cur.ParentID == nil {
			return nil
		}
		next, err := repo.GetByIDAndUser(ctx, *cur.ParentID, userID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				// Dangling parent pointer; treat as root.
				return nil
			}
			return err
		}
		cur = next
	}
}
