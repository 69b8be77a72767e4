// Package services contains the server-side business logic: the separator
// tree, data item create/edit with duplicate detection, cascade deletion,
// share access control, and user accounts. Every multi-step write runs
// inside one dbx.WithTx transaction; audit facts are recorded after commit.
package services

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/smorozov/vaultcore/internal/logging"
	"github.com/smorozov/vaultcore/internal/server/models"
	"github.com/smorozov/vaultcore/internal/server/repositories/repomanager"
)

// Fact is one structured "this happened" record handed to the audit sink
// after a business transaction commits.
type Fact struct {
	Action  string
	UserID  string
	ItemID  string
	AppName string
	Device  string
	IP      string
	Region  string

	// Notify, when non-empty, additionally produces a user-facing event.
	Notify string
}

// AuditSink receives facts post-commit. Implementations must never fail the
// operation that produced the fact.
type AuditSink interface {
	Record(ctx context.Context, fact Fact)
}

// AuditService persists facts into audit_logs and events. Failures are
// logged and swallowed: audit is derived data and must not abort or roll
// back the business write it describes.
type AuditService struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	logger logging.Logger
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *sql.DB, rm repomanager.RepositoryManager, logger logging.Logger) *AuditService {
	return &AuditService{db: db, rm: rm, logger: logger.With("module", "audit")}
}

type requestMetaKey struct{}

// RequestMeta carries transport-level request attributes (device, client IP,
// region) that audit records want but business operations do not.
type RequestMeta struct {
	Device string
	IP     string
	Region string
}

// WithRequestMeta stores request attributes in the context for the sink to
// pick up when a fact is recorded.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

func requestMeta(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

func (s *AuditService) Record(ctx context.Context, fact Fact) {
	repo := s.rm.Audit(s.db)

	meta := requestMeta(ctx)
	if fact.Device == "" {
		fact.Device = meta.Device
	}
	if fact.IP == "" {
		fact.IP = meta.IP
	}
	if fact.Region == "" {
		fact.Region = meta.Region
	}

	log := &models.AuditLog{
		ID:      uuid.NewString(),
		Action:  fact.Action,
		UserID:  optional(fact.UserID),
		ItemID:  optional(fact.ItemID),
		AppName: optional(fact.AppName),
		Device:  optional(fact.Device),
		IP:      optional(fact.IP),
		Region:  optional(fact.Region),
	}
	if err := repo.AppendLog(ctx, log); err != nil {
		s.logger.Error(ctx, "append audit log failed", "action", fact.Action, "error", err.Error())
	}

	if fact.Notify == "" || fact.UserID == "" {
		return
	}
	event := &models.Event{
		ID:      uuid.NewString(),
		UserID:  fact.UserID,
		Message: fact.Notify,
	}
	if err := repo.AppendEvent(ctx, event); err != nil {
		s.logger.Error(ctx, "append event failed", "action", fact.Action, "error", err.Error())
	}
}

// Events returns the user's most recent notifications.
func (s *AuditService) Events(ctx context.Context, userID string, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.rm.Audit(s.db).ListEventsByUser(ctx, userID, limit)
}

// Logs returns the user's most recent audit records.
func (s *AuditService) Logs(ctx context.Context, userID string, limit int) ([]*models.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.rm.Audit(s.db).ListLogsByUser(ctx, userID, limit)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
