// Package httpapi exposes the server core over a JSON HTTP API. Handlers
// decode requests, call into the service layer, and map the sentinel errors
// onto HTTP statuses; no business rules live here.
package httpapi

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/smorozov/vaultcore/internal/logging"
	"github.com/smorozov/vaultcore/internal/server/models"
	"github.com/smorozov/vaultcore/internal/server/services"
)

// UserAPI is the slice of the user service the handlers need.
type UserAPI interface {
	Register(ctx context.Context, name, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.User, string, error)
	Get(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, upd services.ProfileUpdate) (*models.User, error)
	WipeData(ctx context.Context, userID string) error
	DeleteAccount(ctx context.Context, userID string) error
}

// SeparatorAPI is the slice of the separator service the handlers need.
type SeparatorAPI interface {
	CreateFolder(ctx context.Context, userID, name string, parentID *string) (*models.Separator, error)
	CreateTag(ctx context.Context, userID, name, color string) (*models.Separator, error)
	UpdateFolder(ctx context.Context, userID, folderID string, upd services.FolderUpdate) (*models.Separator, error)
	UpdateTag(ctx context.Context, userID, tagID string, upd services.TagUpdate) (*models.Separator, error)
	DeleteTag(ctx context.Context, userID, tagID string) error
	RootFolders(ctx context.Context, userID string) ([]*models.Separator, error)
	ChildFolders(ctx context.Context, userID, folderID string) ([]*models.Separator, error)
	Tags(ctx context.Context, userID string) ([]*models.Separator, error)
	Get(ctx context.Context, userID, id string) (*models.Separator, error)
}

// ItemAPI is the slice of the item service the handlers need.
type ItemAPI interface {
	CreateCredential(ctx context.Context, userID string, in services.CreateCredentialInput) (*models.DataItem, error)
	CreateFile(ctx context.Context, userID string, in services.CreateFileInput) (*models.DataItem, string, error)
	UpdateCredential(ctx context.Context, userID, itemID string, upd services.CredentialUpdate) (*models.DataItem, error)
	UpdateFile(ctx context.Context, userID, itemID string, upd services.FileUpdate) (*models.DataItem, string, error)
	Get(ctx context.Context, userID, itemID string) (*models.DataItem, string, error)
	List(ctx context.Context, userID string, page, pageSize int, separatorIDs []string) ([]*models.DataItem, error)
}

// CascadeAPI is the slice of the cascade service the handlers need.
type CascadeAPI interface {
	DeleteItem(ctx context.Context, userID, itemID string) error
	DeleteFolderRecursive(ctx context.Context, userID, folderID string) error
}

// ShareAPI is the slice of the share service the handlers need.
type ShareAPI interface {
	Issue(ctx context.Context, userID string, items []services.ShareItemInput, quota int64, expiresAt *time.Time) (*models.Share, error)
	Redeem(ctx context.Context, token string) (*models.Share, error)
	List(ctx context.Context, userID string) ([]*models.Share, error)
	EditRules(ctx context.Context, userID, shareID string, rules services.ShareRules) (*models.Share, error)
	Revoke(ctx context.Context, userID, shareID string) error
}

// AuditAPI is the slice of the audit service the handlers need.
type AuditAPI interface {
	Events(ctx context.Context, userID string, limit int) ([]*models.Event, error)
	Logs(ctx context.Context, userID string, limit int) ([]*models.AuditLog, error)
}

// Server holds the wired services and the settings the handlers need.
type Server struct {
	users      UserAPI
	separators SeparatorAPI
	items      ItemAPI
	cascade    CascadeAPI
	shares     ShareAPI
	audit      AuditAPI
	logger     logging.Logger

	secretKey    []byte
	shareBaseURL string
}

// NewServer constructs a Server over the given services.
func NewServer(users UserAPI, separators SeparatorAPI, items ItemAPI, cascade CascadeAPI, shares ShareAPI, audit AuditAPI, logger logging.Logger, secretKey []byte, shareBaseURL string) *Server {
	return &Server{
		users:        users,
		separators:   separators,
		items:        items,
		cascade:      cascade,
		shares:       shares,
		audit:        audit,
		logger:       logger.With("module", "httpapi"),
		secretKey:    secretKey,
		shareBaseURL: shareBaseURL,
	}
}

// Router builds the route table.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost", "http://localhost:3000", "http://localhost:5173", "http://127.0.0.1", "http://127.0.0.1:3000", "http://127.0.0.1:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		// Public
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Get("/share/{token}", s.handleRedeemShare)

		// Protected
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/users/me", s.handleGetMe)
			r.Patch("/users/me", s.handleUpdateMe)
			r.Post("/users/me/wipe", s.handleWipeData)
			r.Delete("/users/me", s.handleDeleteAccount)

			r.Post("/folders", s.handleCreateFolder)
			r.Get("/folders", s.handleListRootFolders)
			r.Get("/folders/{id}/children", s.handleListChildFolders)
			r.Patch("/folders/{id}", s.handleUpdateFolder)
			r.Delete("/folders/{id}", s.handleDeleteFolder)

			r.Post("/tags", s.handleCreateTag)
			r.Get("/tags", s.handleListTags)
			r.Patch("/tags/{id}", s.handleUpdateTag)
			r.Delete("/tags/{id}", s.handleDeleteTag)

			r.Post("/items/credentials", s.handleCreateCredential)
			r.Post("/items/files", s.handleCreateFile)
			r.Get("/items", s.handleListItems)
			r.Get("/items/{id}", s.handleGetItem)
			r.Patch("/items/credentials/{id}", s.handleUpdateCredential)
			r.Patch("/items/files/{id}", s.handleUpdateFile)
			r.Delete("/items/{id}", s.handleDeleteItem)

			r.Post("/shares", s.handleIssueShare)
			r.Get("/shares", s.handleListShares)
			r.Patch("/shares/{id}", s.handleEditShareRules)
			r.Delete("/shares/{id}", s.handleRevokeShare)

			r.Get("/events", s.handleListEvents)
			r.Get("/logs", s.handleListLogs)
		})
	})

	return r
}
