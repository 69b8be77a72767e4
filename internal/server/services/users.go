package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/smorozov/vaultcore/internal/common"
	"github.com/smorozov/vaultcore/internal/cryptox"
	"github.com/smorozov/vaultcore/internal/dbx"
	"github.com/smorozov/vaultcore/internal/logging"
	"github.com/smorozov/vaultcore/internal/server/auth"
	"github.com/smorozov/vaultcore/internal/server/models"
	"github.com/smorozov/vaultcore/internal/server/repositories/repomanager"
)

// UserService handles registration, login, and profile edits. Account-wide
// destruction goes through the cascade orchestrator.
type UserService struct {
	db      *sql.DB
	rm      repomanager.RepositoryManager
	cascade *CascadeService
	audit   AuditSink
	logger  logging.Logger

	secretKey     []byte
	tokenValidity time.Duration
}

// NewUserService constructs a UserService.
func NewUserService(db *sql.DB, rm repomanager.RepositoryManager, cascade *CascadeService, audit AuditSink, logger logging.Logger, secretKey []byte, tokenValidity time.Duration) *UserService {
	return &UserService{
		db:            db,
		rm:            rm,
		cascade:       cascade,
		audit:         audit,
		logger:        logger.With("module", "users"),
		secretKey:     secretKey,
		tokenValidity: tokenValidity,
	}
}

// Register creates an account. The password is stored as a bcrypt hash; the
// account also receives a random KDF salt the client derives its encryption
// key from. A taken email answers ErrNameConflict.
func (s *UserService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name and email must not be empty", common.ErrInvalidOperation)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", common.ErrInvalidOperation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	salt, err := cryptox.NewKDFSalt()
	if err != nil {
		return nil, fmt.Errorf("generating kdf salt: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		KDFSalt:      salt,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Users(tx)
		if _, err := repo.GetByEmail(ctx, email); err == nil {
			return fmt.Errorf("%w: email already registered", common.ErrNameConflict)
		} else if !errors.Is(err, common.ErrNotFound) {
			return err
		}
		return repo.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, Fact{Action: models.ActionUserRegistered, UserID: user.ID,
		Notify: "Welcome! Your vault is ready."})
	return user, nil
}

// Login verifies the credentials and returns a signed session token together
// with the user record. Unknown email and wrong password are not told apart.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.rm.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, "", common.ErrUnauthorized
		}
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", common.ErrUnauthorized
	}

	token, err := auth.GenerateToken(user.ID, s.secretKey, s.tokenValidity)
	if err != nil {
		return nil, "", fmt.Errorf("signing token: %w", err)
	}

	s.audit.Record(ctx, Fact{Action: models.ActionUserLogin, UserID: user.ID})
	return user, token, nil
}

// Get returns the user record.
func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	return s.rm.Users(s.db).GetByID(ctx, userID)
}

// ProfileUpdate is a partial profile edit; nil fields keep current values.
type ProfileUpdate struct {
	Name  *string
	Email *string
}

// UpdateProfile edits name and/or email; a new email must be unused.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*models.User, error) {
	if upd.Name == nil && upd.Email == nil {
		return nil, fmt.Errorf("%w: at least one field must be provided", common.ErrInvalidOperation)
	}

	var user *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Users(tx)

		var err error
		user, err = repo.GetByID(ctx, userID)
		if err != nil {
			return err
		}

		if upd.Name != nil {
			name := strings.TrimSpace(*upd.Name)
			if name == "" {
				return fmt.Errorf("%w: name must not be empty", common.ErrInvalidOperation)
			}
			user.Name = name
		}
		if upd.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*upd.Email))
			if email == "" {
				return fmt.Errorf("%w: email must not be empty", common.ErrInvalidOperation)
			}
			if email != user.Email {
				if other, err := repo.GetByEmail(ctx, email); err == nil && other.ID != userID {
					return fmt.Errorf("%w: email already registered", common.ErrNameConflict)
				} else if err != nil && !errors.Is(err, common.ErrNotFound) {
					return err
				}
				user.Email = email
			}
		}
		return repo.Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, Fact{Action: models.ActionUserUpdated, UserID: userID})
	return user, nil
}

// WipeData erases everything the user stores while keeping the account.
func (s *UserService) WipeData(ctx context.Context, userID string) error {
	return s.cascade.WipeUserData(ctx, userID)
}

// DeleteAccount removes the user and everything they store.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	return s.cascade.DeleteAccount(ctx, userID)
}
