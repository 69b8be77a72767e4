package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/smorozov/vaultcore/internal/common"
	"github.com/smorozov/vaultcore/internal/dbx"
	"github.com/smorozov/vaultcore/internal/logging"
	"github.com/smorozov/vaultcore/internal/server/models"
	"github.com/smorozov/vaultcore/internal/server/repositories/repomanager"
	"github.com/smorozov/vaultcore/internal/server/repositories/separators"
)

// BlobStore hands out presigned URLs for file payloads that are kept in
// object storage instead of inline in the database.
type BlobStore interface {
	UploadURL(ctx context.Context, key string) (string, error)
	DownloadURL(ctx context.Context, key string) (string, error)
}

// ItemService implements data item CRUD: folder/tag association resolution,
// duplicate detection on create and edit, and the storage quota check for
// file payloads.
type ItemService struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	blobs  BlobStore
	audit  AuditSink
	logger logging.Logger

	maxStorageBytes int64
	inlineFileLimit int64
}

// NewItemService constructs an ItemService. blobs may be nil, in which case
// every file payload is stored inline regardless of size.
func NewItemService(db *sql.DB, rm repomanager.RepositoryManager, blobs BlobStore, audit AuditSink, logger logging.Logger, maxStorageBytes, inlineFileLimit int64) *ItemService {
	return &ItemService{
		db:              db,
		rm:              rm,
		blobs:           blobs,
		audit:           audit,
		logger:          logger.With("module", "items"),
		maxStorageBytes: maxStorageBytes,
		inlineFileLimit: inlineFileLimit,
	}
}

// CreateCredentialInput carries the fields of a new credential item.
type CreateCredentialInput struct {
	AppName     string
	Description string
	SecretEnc   string
	HostURL     string
	Email       string
	FolderID    *string
	TagIDs      []string
}

// CreateCredential stores a credential item. A second credential with the
// same (app name, email-or-absence) pair is rejected with ErrDuplicateData.
func (s *ItemService) CreateCredential(ctx context.Context, userID string, in CreateCredentialInput) (*models.DataItem, error) {
	in.AppName = strings.TrimSpace(in.AppName)
	if in.AppName == "" {
		return nil, fmt.Errorf("%w: app name must not be empty", common.ErrInvalidOperation)
	}
	if in.SecretEnc == "" {
		return nil, fmt.Errorf("%w: secret must not be empty", common.ErrInvalidOperation)
	}

	item := &models.DataItem{
		ID:          uuid.NewString(),
		UserID:      userID,
		AppName:     in.AppName,
		Description: in.Description,
		Kind:        models.ItemKindCredential,
		Credential: &models.Credential{
			SecretEnc: in.SecretEnc,
			HostURL:   in.HostURL,
			Email:     in.Email,
		},
	}
	item.Credential.ItemID = item.ID

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		sepIDs, err := resolveSeparators(ctx, s.rm.Separators(tx), userID, in.FolderID, in.TagIDs)
		if err != nil {
			return err
		}

		items := s.rm.DataItems(tx)
		dup, err := items.FindCredentialDuplicate(ctx, userID, in.AppName, in.Email)
		if err != nil {
			return err
		}
		if dup != "" {
			return fmt.Errorf("%w: credential for %q already exists", common.ErrDuplicateData, in.AppName)
		}

		if err := items.Create(ctx, item); err != nil {
			return err
		}
		return items.ReplaceSeparators(ctx, item.ID, sepIDs)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, Fact{Action: models.ActionCredentialCreate, UserID: userID, ItemID: item.ID, AppName: item.AppName})
	return item, nil
}

// CreateFileInput carries the fields of a new file item.
type CreateFileInput struct {
	AppName     string
	Description string
	FileName    string
	Extension   string
	Payload     []byte
	FolderID    *string
	TagIDs      []string
}

// CreateFile stores a file item. The duplicate key is (app name, file name,
// extension, enclosing folder), with "no folder" its own bucket. Payloads
// larger than the inline limit are offloaded to object storage; the returned
// URL, when non-empty, is a presigned PUT the caller uploads the bytes to.
func (s *ItemService) CreateFile(ctx context.Context, userID string, in CreateFileInput) (*models.DataItem, string, error) {
	in.AppName = strings.TrimSpace(in.AppName)
	if in.AppName == "" {
		return nil, "", fmt.Errorf("%w: app name must not be empty", common.ErrInvalidOperation)
	}
	if in.FileName == "" {
		return nil, "", fmt.Errorf("%w: file name must not be empty", common.ErrInvalidOperation)
	}

	item := &models.DataItem{
		ID:          uuid.NewString(),
		UserID:      userID,
		AppName:     in.AppName,
		Description: in.Description,
		Kind:        models.ItemKindFile,
		File: &models.File{
			FileName:  in.FileName,
			Extension: in.Extension,
			Payload:   in.Payload,
		},
	}
	item.File.ItemID = item.ID

	offload := s.blobs != nil && s.inlineFileLimit > 0 && int64(len(in.Payload)) > s.inlineFileLimit
	if offload {
		item.File.Payload = nil
		item.File.StorageKey = uuid.NewString()
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		sepIDs, err := resolveSeparators(ctx, s.rm.Separators(tx), userID, in.FolderID, in.TagIDs)
		if err != nil {
			return err
		}

		items := s.rm.DataItems(tx)
		dup, err := items.FindFileDuplicate(ctx, userID, in.AppName, in.FileName, in.Extension, in.FolderID)
		if err != nil {
			return err
		}
		if dup != "" {
			return fmt.Errorf("%w: file %q already exists here", common.ErrDuplicateData, in.FileName)
		}

		if !offload && s.maxStorageBytes > 0 {
			used, err := items.TotalFileBytes(ctx, userID)
			if err != nil {
				return err
			}
			if used+int64(len(in.Payload)) > s.maxStorageBytes {
				return fmt.Errorf("%w: storage limit reached", common.ErrQuotaExceeded)
			}
		}

		if err := items.Create(ctx, item); err != nil {
			return err
		}
		return items.ReplaceSeparators(ctx, item.ID, sepIDs)
	})
	if err != nil {
		return nil, "", err
	}

	var uploadURL string
	if offload {
		uploadURL, err = s.blobs.UploadURL(ctx, item.File.StorageKey)
		if err != nil {
			s.logger.Error(ctx, "presign upload failed", "item_id", item.ID, "error", err.Error())
			return nil, "", fmt.Errorf("presigning upload: %w", err)
		}
	}

	s.audit.Record(ctx, Fact{Action: models.ActionFileCreate, UserID: userID, ItemID: item.ID, AppName: item.AppName})
	return item, uploadURL, nil
}

// CredentialUpdate describes a partial credential edit; nil fields keep
// current values. SetFolder/SetTags gate the association changes so that an
// absent field leaves the current links alone.
type CredentialUpdate struct {
	AppName     *string
	Description *string
	SecretEnc   *string
	HostURL     *string
	Email       *string

	SetFolder bool
	FolderID  *string
	SetTags   bool
	TagIDs    []string
}

func (u CredentialUpdate) empty() bool {
	return u.AppName == nil && u.Description == nil && u.SecretEnc == nil &&
		u.HostURL == nil && u.Email == nil && !u.SetFolder && !u.SetTags
}

// UpdateCredential applies a partial edit. The duplicate key is re-checked
// only when app name or email changes, excluding the edited item itself.
func (s *ItemService) UpdateCredential(ctx context.Context, userID, itemID string, upd CredentialUpdate) (*models.DataItem, error) {
	if upd.empty() {
		return nil, fmt.Errorf("%w: at least one field must be provided", common.ErrInvalidOperation)
	}

	var item *models.DataItem
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		items := s.rm.DataItems(tx)

		var err error
		item, err = items.GetByIDAndUser(ctx, itemID, userID)
		if err != nil {
			return err
		}
		if item.Kind != models.ItemKindCredential {
			return fmt.Errorf("%w: item is not a credential", common.ErrNotFound)
		}

		folderID := item.FolderID()
		tagIDs := item.TagIDs()
		if upd.SetFolder {
			folderID = upd.FolderID
		}
		if upd.SetTags {
			tagIDs = upd.TagIDs
		}

		newApp := item.AppName
		if upd.AppName != nil {
			newApp = strings.TrimSpace(*upd.AppName)
			if newApp == "" {
				return fmt.Errorf("%w: app name must not be empty", common.ErrInvalidOperation)
			}
		}
		newEmail := item.Credential.Email
		if upd.Email != nil {
			newEmail = *upd.Email
		}

		if newApp != item.AppName || newEmail != item.Credential.Email {
			dup, err := items.FindCredentialDuplicate(ctx, userID, newApp, newEmail)
			if err != nil {
				return err
			}
			if dup != "" && dup != itemID {
				return fmt.Errorf("%w: credential for %q already exists", common.ErrDuplicateData, newApp)
			}
		}

		item.AppName = newApp
		if upd.Description != nil {
			item.Description = *upd.Description
		}
		item.Credential.Email = newEmail
		if upd.SecretEnc != nil {
			if *upd.SecretEnc == "" {
				return fmt.Errorf("%w: secret must not be empty", common.ErrInvalidOperation)
			}
			item.Credential.SecretEnc = *upd.SecretEnc
		}
		if upd.HostURL != nil {
			item.Credential.HostURL = *upd.HostURL
		}

		if err := items.UpdateItem(ctx, item); err != nil {
			return err
		}
		if err := items.UpdateCredential(ctx, item.Credential); err != nil {
			return err
		}

		if upd.SetFolder || upd.SetTags {
			sepIDs, err := resolveSeparators(ctx, s.rm.Separators(tx), userID, folderID, tagIDs)
			if err != nil {
				return err
			}
			if err := items.ReplaceSeparators(ctx, item.ID, sepIDs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, Fact{Action: models.ActionItemUpdated, UserID: userID, ItemID: itemID, AppName: item.AppName})
	return item, nil
}

// FileUpdate describes a partial file edit; nil fields keep current values.
// Payload is replaced only when SetPayload is true.
type FileUpdate struct {
	AppName     *string
	Description *string
	FileName    *string
	Extension   *string
	SetPayload  bool
	Payload     []byte

	SetFolder bool
	FolderID  *string
	SetTags   bool
	TagIDs    []string
}

func (u FileUpdate) empty() bool {
	return u.AppName == nil && u.Description == nil && u.FileName == nil &&
		u.Extension == nil && !u.SetPayload && !u.SetFolder && !u.SetTags
}

// UpdateFile applies a partial edit. The duplicate key is re-checked only
// when app name, file name, extension, or the enclosing folder changes,
// excluding the edited item itself. A replacement payload goes through the
// same inline-or-offload decision as CreateFile: above the inline limit it
// moves to object storage under a fresh key and the returned URL is a
// presigned PUT, otherwise it is stored inline and any previous storage key
// is dropped.
func (s *ItemService) UpdateFile(ctx context.Context, userID, itemID string, upd FileUpdate) (*models.DataItem, string, error) {
	if upd.empty() {
		return nil, "", fmt.Errorf("%w: at least one field must be provided", common.ErrInvalidOperation)
	}

	offload := upd.SetPayload && s.blobs != nil && s.inlineFileLimit > 0 &&
		int64(len(upd.Payload)) > s.inlineFileLimit

	var item *models.DataItem
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		items := s.rm.DataItems(tx)

		var err error
		item, err = items.GetByIDAndUser(ctx, itemID, userID)
		if err != nil {
			return err
		}
		if item.Kind != models.ItemKindFile {
			return fmt.Errorf("%w: item is not a file", common.ErrNotFound)
		}

		folderID := item.FolderID()
		tagIDs := item.TagIDs()
		if upd.SetFolder {
			folderID = upd.FolderID
		}
		if upd.SetTags {
			tagIDs = upd.TagIDs
		}

		newApp := item.AppName
		if upd.AppName != nil {
			newApp = strings.TrimSpace(*upd.AppName)
			if newApp == "" {
				return fmt.Errorf("%w: app name must not be empty", common.ErrInvalidOperation)
			}
		}
		newName := item.File.FileName
		if upd.FileName != nil {
			if *upd.FileName == "" {
				return fmt.Errorf("%w: file name must not be empty", common.ErrInvalidOperation)
			}
			newName = *upd.FileName
		}
		newExt := item.File.Extension
		if upd.Extension != nil {
			newExt = *upd.Extension
		}

		keyChanged := newApp != item.AppName || newName != item.File.FileName ||
			newExt != item.File.Extension || upd.SetFolder
		if keyChanged {
			dup, err := items.FindFileDuplicate(ctx, userID, newApp, newName, newExt, folderID)
			if err != nil {
				return err
			}
			if dup != "" && dup != itemID {
				return fmt.Errorf("%w: file %q already exists here", common.ErrDuplicateData, newName)
			}
		}

		if upd.SetPayload && !offload && s.maxStorageBytes > 0 {
			used, err := items.TotalFileBytes(ctx, userID)
			if err != nil {
				return err
			}
			// The current payload is being replaced, so it does not count.
			used -= int64(len(item.File.Payload))
			if used+int64(len(upd.Payload)) > s.maxStorageBytes {
				return fmt.Errorf("%w: storage limit reached", common.ErrQuotaExceeded)
			}
		}

		item.AppName = newApp
		if upd.Description != nil {
			item.Description = *upd.Description
		}
		item.File.FileName = newName
		item.File.Extension = newExt
		if upd.SetPayload {
			if offload {
				item.File.Payload = nil
				item.File.StorageKey = uuid.NewString()
			} else {
				item.File.Payload = upd.Payload
				item.File.StorageKey = ""
			}
		}

		if err := items.UpdateItem(ctx, item); err != nil {
			return err
		}
		if err := items.UpdateFile(ctx, item.File, upd.SetPayload); err != nil {
			return err
		}

		if upd.SetFolder || upd.SetTags {
			sepIDs, err := resolveSeparators(ctx, s.rm.Separators(tx), userID, folderID, tagIDs)
			if err != nil {
				return err
			}
			if err := items.ReplaceSeparators(ctx, item.ID, sepIDs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	var uploadURL string
	if offload {
		uploadURL, err = s.blobs.UploadURL(ctx, item.File.StorageKey)
		if err != nil {
			s.logger.Error(ctx, "presign upload failed", "item_id", item.ID, "error", err.Error())
			return nil, "", fmt.Errorf("presigning upload: %w", err)
		}
	}

	s.audit.Record(ctx, Fact{Action: models.ActionItemUpdated, UserID: userID, ItemID: itemID, AppName: item.AppName})
	return item, uploadURL, nil
}

// Get returns one owned item with its detail and separator links. For file
// items whose payload lives in object storage, the second return value is a
// presigned GET URL.
func (s *ItemService) Get(ctx context.Context, userID, itemID string) (*models.DataItem, string, error) {
	item, err := s.rm.DataItems(s.db).GetByIDAndUser(ctx, itemID, userID)
	if err != nil {
		return nil, "", err
	}

	var downloadURL string
	if item.Kind == models.ItemKindFile && item.File.StorageKey != "" && s.blobs != nil {
		downloadURL, err = s.blobs.DownloadURL(ctx, item.File.StorageKey)
		if err != nil {
			s.logger.Error(ctx, "presign download failed", "item_id", item.ID, "error", err.Error())
			return nil, "", fmt.Errorf("presigning download: %w", err)
		}
	}

	s.audit.Record(ctx, Fact{Action: models.ActionItemViewed, UserID: userID, ItemID: itemID, AppName: item.AppName})
	return item, downloadURL, nil
}

// List returns a page of the user's items, optionally filtered to those
// linked to any of the given separators.
func (s *ItemService) List(ctx context.Context, userID string, page, pageSize int, separatorIDs []string) ([]*models.DataItem, error) {
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	if page < 1 {
		page = 1
	}
	return s.rm.DataItems(s.db).List(ctx, userID, pageSize, (page-1)*pageSize, separatorIDs)
}

// resolveSeparators validates the folder/tag references of an item against
// ownership and kind and returns the final separator id set. A nil folderID
// means "no folder".
func resolveSeparators(ctx context.Context, repo separators.Repository, userID string, folderID *string, tagIDs []string) ([]string, error) {
	var out []string

	if folderID != nil {
		folder, err := repo.GetByIDAndUser(ctx, *folderID, userID)
		if err != nil {
			return nil, err
		}
		if !folder.IsFolder() {
			return nil, fmt.Errorf("%w: separator %s is not a folder", common.ErrNotFound, *folderID)
		}
		out = append(out, folder.ID)
	}

	if len(tagIDs) > 0 {
		// Dedupe before the lookup so a repeated id does not spoil the
		// count comparison.
		seen := make(map[string]struct{}, len(tagIDs))
		var unique []string
		for _, id := range tagIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			unique = append(unique, id)
		}

		tags, err := repo.GetTagsByIDs(ctx, userID, unique)
		if err != nil {
			return nil, err
		}
		if len(tags) != len(unique) {
			return nil, fmt.Errorf("%w: one or more tags do not exist", common.ErrNotFound)
		}
		for _, t := range tags {
			out = append(out, t.ID)
		}
	}

	return out, nil
}
