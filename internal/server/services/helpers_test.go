package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/smorozov/vaultcore/internal/common"
	"github.com/smorozov/vaultcore/internal/dbx"
	"github.com/smorozov/vaultcore/internal/logging"
	"github.com/smorozov/vaultcore/internal/server/models"
	auditrepo "github.com/smorozov/vaultcore/internal/server/repositories/audit"
	"github.com/smorozov/vaultcore/internal/server/repositories/dataitems"
	"github.com/smorozov/vaultcore/internal/server/repositories/separators"
	"github.com/smorozov/vaultcore/internal/server/repositories/shares"
	usersrepo "github.com/smorozov/vaultcore/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

// expectCommit queues one committed transaction on the mock.
func expectCommit(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectCommit()
}

// expectRollback queues one rolled-back transaction on the mock.
func expectRollback(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectRollback()
}

func quietLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func str(s string) *string { return &s }

// memStore is an in-memory stand-in for the whole database. The repository
// adapters below are views over the same state, so the fakes observe each
// other's writes the way real tables do, including the SET NULL the schema
// applies to shared item origins when an item row goes away.
type memStore struct {
	users  map[string]*models.User
	seps   map[string]*models.Separator
	items  map[string]*models.DataItem
	links  map[string][]string // item id -> separator ids
	shares map[string]*models.Share

	logs   []*models.AuditLog
	events []*models.Event
}

func newMemStore() *memStore {
	return &memStore{
		users:  map[string]*models.User{},
		seps:   map[string]*models.Separator{},
		items:  map[string]*models.DataItem{},
		links:  map[string][]string{},
		shares: map[string]*models.Share{},
	}
}

func (s *memStore) addUser(id, email string) *models.User {
	u := &models.User{ID: id, Name: "u-" + id, Email: email}
	s.users[id] = u
	return u
}

func (s *memStore) addFolder(id, userID, name string, parentID *string) *models.Separator {
	f := &models.Separator{ID: id, UserID: userID, ParentID: parentID, Name: name, Kind: models.SeparatorKindFolder}
	s.seps[id] = f
	return f
}

func (s *memStore) addTag(id, userID, name string) *models.Separator {
	tg := &models.Separator{ID: id, UserID: userID, Name: name, Kind: models.SeparatorKindTag}
	s.seps[id] = tg
	return tg
}

func (s *memStore) addCredential(id, userID, appName, email string, sepIDs ...string) *models.DataItem {
	it := &models.DataItem{
		ID: id, UserID: userID, AppName: appName, Kind: models.ItemKindCredential,
		Credential: &models.Credential{ItemID: id, SecretEnc: "enc", Email: email},
	}
	s.items[id] = it
	s.links[id] = sepIDs
	return it
}

func (s *memStore) addFile(id, userID, appName, fileName, ext string, payload []byte, sepIDs ...string) *models.DataItem {
	it := &models.DataItem{
		ID: id, UserID: userID, AppName: appName, Kind: models.ItemKindFile,
		File: &models.File{ItemID: id, FileName: fileName, Extension: ext, Payload: payload},
	}
	s.items[id] = it
	s.links[id] = sepIDs
	return it
}

func (s *memStore) addShare(id, userID, token string, nTotal, nUsed int64, originIDs ...string) *models.Share {
	sh := &models.Share{ID: id, UserID: userID, Token: token, NTotal: nTotal, NUsed: nUsed}
	for i, origin := range originIDs {
		o := origin
		sh.Items = append(sh.Items, &models.SharedItem{
			ID: id + "-it" + string(rune('0'+i)), ShareID: id, OriginItemID: &o, Payload: []byte("p"),
		})
	}
	s.shares[id] = sh
	return sh
}

func (s *memStore) itemFolderID(itemID string) *string {
	for _, sepID := range s.links[itemID] {
		if sep, ok := s.seps[sepID]; ok && sep.IsFolder() {
			id := sep.ID
			return &id
		}
	}
	return nil
}

// deleteItems removes item rows, their separator links, their detail, and
// nulls out the origin pointer of shared item snapshots, like the schema's
// ON DELETE actions do.
func (s *memStore) deleteItems(ids []string) {
	for _, id := range ids {
		delete(s.items, id)
		delete(s.links, id)
		for _, sh := range s.shares {
			for _, it := range sh.Items {
				if it.OriginItemID != nil && *it.OriginItemID == id {
					it.OriginItemID = nil
				}
			}
		}
	}
}

// --- repository adapters ---

type memSeparators struct{ s *memStore }

func (r memSeparators) Create(_ context.Context, sep *models.Separator) error {
	cp := *sep
	r.s.seps[sep.ID] = &cp
	return nil
}

func (r memSeparators) Update(_ context.Context, sep *models.Separator) error {
	cur, ok := r.s.seps[sep.ID]
	if !ok || cur.UserID != sep.UserID {
		return common.ErrNotFound
	}
	cp := *sep
	r.s.seps[sep.ID] = &cp
	return nil
}

func (r memSeparators) DeleteByIDs(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(r.s.seps, id)
		for itemID, linked := range r.s.links {
			var kept []string
			for _, sepID := range linked {
				if sepID != id {
					kept = append(kept, sepID)
				}
			}
			r.s.links[itemID] = kept
		}
	}
	return nil
}

func (r memSeparators) DeleteByUser(_ context.Context, userID string) error {
	for id, sep := range r.s.seps {
		if sep.UserID == userID {
			if err := r.DeleteByIDs(context.Background(), []string{id}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r memSeparators) GetByIDAndUser(_ context.Context, id, userID string) (*models.Separator, error) {
	sep, ok := r.s.seps[id]
	if !ok || sep.UserID != userID {
		return nil, common.ErrNotFound
	}
	cp := *sep
	return &cp, nil
}

func (r memSeparators) GetFolderByNameAndParent(_ context.Context, userID, name string, parentID *string) (*models.Separator, error) {
	for _, sep := range r.s.seps {
		if sep.UserID != userID || !sep.IsFolder() || sep.Name != name {
			continue
		}
		if (sep.ParentID == nil) != (parentID == nil) {
			continue
		}
		if parentID != nil && *sep.ParentID != *parentID {
			continue
		}
		cp := *sep
		return &cp, nil
	}
	return nil, common.ErrNotFound
}

func (r memSeparators) GetTagByName(_ context.Context, userID, name string) (*models.Separator, error) {
	for _, sep := range r.s.seps {
		if sep.UserID == userID && !sep.IsFolder() && sep.Name == name {
			cp := *sep
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r memSeparators) GetTagsByIDs(_ context.Context, userID string, ids []string) ([]*models.Separator, error) {
	var out []*models.Separator
	for _, id := range ids {
		if sep, ok := r.s.seps[id]; ok && sep.UserID == userID && !sep.IsFolder() {
			cp := *sep
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memSeparators) ListRootFolders(_ context.Context, userID string) ([]*models.Separator, error) {
	var out []*models.Separator
	for _, sep := range r.s.seps {
		if sep.UserID == userID && sep.IsFolder() && sep.ParentID == nil {
			out = append(out, sep)
		}
	}
	return out, nil
}

func (r memSeparators) ListChildFolders(_ context.Context, userID, parentID string) ([]*models.Separator, error) {
	var out []*models.Separator
	for _, sep := range r.s.seps {
		if sep.UserID == userID && sep.IsFolder() && sep.ParentID != nil && *sep.ParentID == parentID {
			out = append(out, sep)
		}
	}
	return out, nil
}

func (r memSeparators) ListTags(_ context.Context, userID string) ([]*models.Separator, error) {
	var out []*models.Separator
	for _, sep := range r.s.seps {
		if sep.UserID == userID && !sep.IsFolder() {
			out = append(out, sep)
		}
	}
	return out, nil
}

func (r memSeparators) ChildFolderIDs(_ context.Context, userID string, parentIDs []string) ([]string, error) {
	parents := map[string]struct{}{}
	for _, id := range parentIDs {
		parents[id] = struct{}{}
	}
	var out []string
	for _, sep := range r.s.seps {
		if sep.UserID != userID || !sep.IsFolder() || sep.ParentID == nil {
			continue
		}
		if _, ok := parents[*sep.ParentID]; ok {
			out = append(out, sep.ID)
		}
	}
	return out, nil
}

type memItems struct{ s *memStore }

func (r memItems) Create(_ context.Context, item *models.DataItem) error {
	cp := *item
	r.s.items[item.ID] = &cp
	return nil
}

func (r memItems) ReplaceSeparators(_ context.Context, itemID string, separatorIDs []string) error {
	r.s.links[itemID] = append([]string(nil), separatorIDs...)
	return nil
}

func (r memItems) GetByIDAndUser(_ context.Context, id, userID string) (*models.DataItem, error) {
	item, ok := r.s.items[id]
	if !ok || item.UserID != userID {
		return nil, common.ErrNotFound
	}
	cp := *item
	if item.Credential != nil {
		c := *item.Credential
		cp.Credential = &c
	}
	if item.File != nil {
		f := *item.File
		cp.File = &f
	}
	cp.Separators = nil
	for _, sepID := range r.s.links[id] {
		if sep, ok := r.s.seps[sepID]; ok {
			cp.Separators = append(cp.Separators, sep)
		}
	}
	return &cp, nil
}

func (r memItems) List(_ context.Context, userID string, limit, offset int, separatorIDs []string) ([]*models.DataItem, error) {
	filter := map[string]struct{}{}
	for _, id := range separatorIDs {
		filter[id] = struct{}{}
	}
	var out []*models.DataItem
	for _, item := range r.s.items {
		if item.UserID != userID {
			continue
		}
		if len(filter) > 0 {
			match := false
			for _, sepID := range r.s.links[item.ID] {
				if _, ok := filter[sepID]; ok {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, item)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memItems) UpdateItem(_ context.Context, item *models.DataItem) error {
	cur, ok := r.s.items[item.ID]
	if !ok {
		return common.ErrNotFound
	}
	cur.AppName = item.AppName
	cur.Description = item.Description
	return nil
}

func (r memItems) UpdateCredential(_ context.Context, cred *models.Credential) error {
	cur, ok := r.s.items[cred.ItemID]
	if !ok || cur.Credential == nil {
		return common.ErrNotFound
	}
	c := *cred
	cur.Credential = &c
	return nil
}

func (r memItems) UpdateFile(_ context.Context, file *models.File, withPayload bool) error {
	cur, ok := r.s.items[file.ItemID]
	if !ok || cur.File == nil {
		return common.ErrNotFound
	}
	cur.File.FileName = file.FileName
	cur.File.Extension = file.Extension
	if withPayload {
		cur.File.Payload = file.Payload
		cur.File.StorageKey = file.StorageKey
	}
	return nil
}

func (r memItems) FindCredentialDuplicate(_ context.Context, userID, appName, email string) (string, error) {
	for _, item := range r.s.items {
		if item.UserID == userID && item.Kind == models.ItemKindCredential &&
			item.AppName == appName && item.Credential.Email == email {
			return item.ID, nil
		}
	}
	return "", nil
}

func (r memItems) FindFileDuplicate(_ context.Context, userID, appName, fileName, extension string, folderID *string) (string, error) {
	for _, item := range r.s.items {
		if item.UserID != userID || item.Kind != models.ItemKindFile {
			continue
		}
		if item.AppName != appName || item.File.FileName != fileName || item.File.Extension != extension {
			continue
		}
		itemFolder := r.s.itemFolderID(item.ID)
		if (itemFolder == nil) != (folderID == nil) {
			continue
		}
		if folderID != nil && *itemFolder != *folderID {
			continue
		}
		return item.ID, nil
	}
	return "", nil
}

func (r memItems) IDsByUser(_ context.Context, userID string) ([]string, error) {
	var out []string
	for _, item := range r.s.items {
		if item.UserID == userID {
			out = append(out, item.ID)
		}
	}
	return out, nil
}

func (r memItems) IDsBySeparators(_ context.Context, separatorIDs []string) ([]string, error) {
	want := map[string]struct{}{}
	for _, id := range separatorIDs {
		want[id] = struct{}{}
	}
	var out []string
	for itemID, linked := range r.s.links {
		for _, sepID := range linked {
			if _, ok := want[sepID]; ok {
				out = append(out, itemID)
				break
			}
		}
	}
	return out, nil
}

func (r memItems) DeleteByIDs(_ context.Context, ids []string) error {
	r.s.deleteItems(ids)
	return nil
}

func (r memItems) DeleteByUser(_ context.Context, userID string) error {
	ids, _ := r.IDsByUser(context.Background(), userID)
	r.s.deleteItems(ids)
	return nil
}

func (r memItems) TotalFileBytes(_ context.Context, userID string) (int64, error) {
	var total int64
	for _, item := range r.s.items {
		if item.UserID == userID && item.Kind == models.ItemKindFile && item.File.StorageKey == "" {
			total += int64(len(item.File.Payload))
		}
	}
	return total, nil
}

type memShares struct{ s *memStore }

func (r memShares) Create(_ context.Context, share *models.Share) error {
	r.s.shares[share.ID] = share
	return nil
}

func (r memShares) GetByToken(_ context.Context, token string) (*models.Share, error) {
	for _, sh := range r.s.shares {
		if sh.Token == token {
			cp := *sh
			cp.Items = append([]*models.SharedItem(nil), sh.Items...)
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r memShares) GetByIDAndOwner(_ context.Context, id, userID string) (*models.Share, error) {
	sh, ok := r.s.shares[id]
	if !ok || sh.UserID != userID {
		return nil, common.ErrNotFound
	}
	cp := *sh
	cp.Items = append([]*models.SharedItem(nil), sh.Items...)
	return &cp, nil
}

func (r memShares) ListByOwner(_ context.Context, userID string) ([]*models.Share, error) {
	var out []*models.Share
	for _, sh := range r.s.shares {
		if sh.UserID == userID {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (r memShares) ConsumeAccess(_ context.Context, shareID string) (bool, error) {
	sh, ok := r.s.shares[shareID]
	if !ok {
		return false, common.ErrNotFound
	}
	if sh.NUsed >= sh.NTotal {
		return false, nil
	}
	sh.NUsed++
	return true, nil
}

func (r memShares) UpdateRules(_ context.Context, share *models.Share) error {
	cur, ok := r.s.shares[share.ID]
	if !ok || cur.UserID != share.UserID {
		return common.ErrNotFound
	}
	cur.NTotal = share.NTotal
	cur.ExpiresAt = share.ExpiresAt
	return nil
}

func (r memShares) Delete(_ context.Context, id string) error {
	delete(r.s.shares, id)
	return nil
}

func (r memShares) DeleteByOwner(_ context.Context, userID string) error {
	for id, sh := range r.s.shares {
		if sh.UserID == userID {
			delete(r.s.shares, id)
		}
	}
	return nil
}

func (r memShares) IDsByOriginItems(_ context.Context, itemIDs []string) ([]string, error) {
	want := map[string]struct{}{}
	for _, id := range itemIDs {
		want[id] = struct{}{}
	}
	seen := map[string]struct{}{}
	var out []string
	for _, sh := range r.s.shares {
		for _, it := range sh.Items {
			if it.OriginItemID == nil {
				continue
			}
			if _, ok := want[*it.OriginItemID]; !ok {
				continue
			}
			if _, dup := seen[sh.ID]; !dup {
				seen[sh.ID] = struct{}{}
				out = append(out, sh.ID)
			}
		}
	}
	return out, nil
}

func (r memShares) CountSurvivingItems(_ context.Context, shareID, excludeItemID string) (int64, error) {
	sh, ok := r.s.shares[shareID]
	if !ok {
		return 0, nil
	}
	var n int64
	for _, it := range sh.Items {
		if it.OriginItemID != nil && *it.OriginItemID != excludeItemID {
			n++
		}
	}
	return n, nil
}

func (r memShares) DeleteOrphaned(_ context.Context, shareIDs []string) error {
	for _, id := range shareIDs {
		sh, ok := r.s.shares[id]
		if !ok {
			continue
		}
		if len(sh.SurvivingItems()) == 0 {
			delete(r.s.shares, id)
		}
	}
	return nil
}

type memUsers struct{ s *memStore }

func (r memUsers) Create(_ context.Context, user *models.User) error {
	cp := *user
	r.s.users[user.ID] = &cp
	return nil
}

func (r memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range r.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r memUsers) Update(_ context.Context, user *models.User) error {
	if _, ok := r.s.users[user.ID]; !ok {
		return common.ErrNotFound
	}
	cp := *user
	r.s.users[user.ID] = &cp
	return nil
}

func (r memUsers) Delete(_ context.Context, id string) error {
	if _, ok := r.s.users[id]; !ok {
		return common.ErrNotFound
	}
	delete(r.s.users, id)
	return nil
}

type memAudit struct{ s *memStore }

func (r memAudit) AppendLog(_ context.Context, log *models.AuditLog) error {
	r.s.logs = append(r.s.logs, log)
	return nil
}

func (r memAudit) AppendEvent(_ context.Context, event *models.Event) error {
	r.s.events = append(r.s.events, event)
	return nil
}

func (r memAudit) ListLogsByUser(_ context.Context, userID string, limit int) ([]*models.AuditLog, error) {
	var out []*models.AuditLog
	for _, l := range r.s.logs {
		if l.UserID != nil && *l.UserID == userID {
			out = append(out, l)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memAudit) ListEventsByUser(_ context.Context, userID string, limit int) ([]*models.Event, error) {
	var out []*models.Event
	for _, e := range r.s.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memAudit) DeleteLogsByItems(_ context.Context, itemIDs []string) error {
	want := map[string]struct{}{}
	for _, id := range itemIDs {
		want[id] = struct{}{}
	}
	var kept []*models.AuditLog
	for _, l := range r.s.logs {
		if l.ItemID != nil {
			if _, ok := want[*l.ItemID]; ok {
				continue
			}
		}
		kept = append(kept, l)
	}
	r.s.logs = kept
	return nil
}

func (r memAudit) DeleteLogsByUserAndItems(_ context.Context, userID string, itemIDs []string) error {
	want := map[string]struct{}{}
	for _, id := range itemIDs {
		want[id] = struct{}{}
	}
	var kept []*models.AuditLog
	for _, l := range r.s.logs {
		if l.UserID != nil && *l.UserID == userID {
			continue
		}
		if l.ItemID != nil {
			if _, ok := want[*l.ItemID]; ok {
				continue
			}
		}
		kept = append(kept, l)
	}
	r.s.logs = kept
	return nil
}

func (r memAudit) DeleteEventsByUser(_ context.Context, userID string) error {
	var kept []*models.Event
	for _, e := range r.s.events {
		if e.UserID != userID {
			kept = append(kept, e)
		}
	}
	r.s.events = kept
	return nil
}

// memRepoManager vends the adapters above regardless of the handed DBTX; the
// sqlmock connection only supplies the Begin/Commit lifecycle.
type memRepoManager struct{ s *memStore }

func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memRepoManager) Users(dbx.DBTX) usersrepo.Repository          { return memUsers{m.s} }
func (m *memRepoManager) Separators(dbx.DBTX) separators.Repository    { return memSeparators{m.s} }
func (m *memRepoManager) DataItems(dbx.DBTX) dataitems.Repository      { return memItems{m.s} }
func (m *memRepoManager) Shares(dbx.DBTX) shares.Repository            { return memShares{m.s} }
func (m *memRepoManager) Audit(dbx.DBTX) auditrepo.Repository          { return memAudit{m.s} }

// recordingSink collects the facts the services emit.
type recordingSink struct {
	facts []Fact
}

func (r *recordingSink) Record(_ context.Context, fact Fact) {
	r.facts = append(r.facts, fact)
}

func (r *recordingSink) last(t *testing.T) Fact {
	t.Helper()
	if len(r.facts) == 0 {
		t.Fatalf("no audit facts recorded")
	}
	return r.facts[len(r.facts)-1]
}
