// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/smorozov/vaultcore/internal/dbx"
	"github.com/smorozov/vaultcore/internal/server/migrations"
	"github.com/smorozov/vaultcore/internal/server/repositories/audit"
	"github.com/smorozov/vaultcore/internal/server/repositories/dataitems"
	"github.com/smorozov/vaultcore/internal/server/repositories/separators"
	"github.com/smorozov/vaultcore/internal/server/repositories/shares"
	"github.com/smorozov/vaultcore/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// bound to whatever DBTX the caller passes, so the same constructors work both
// on *sql.DB and inside a transaction.
type PostgresRepositoryManager struct{}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}

// Users returns a users.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

// Separators returns a separators.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Separators(db dbx.DBTX) separators.Repository {
	return separators.NewPostgresRepository(db)
}

// DataItems returns a dataitems.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) DataItems(db dbx.DBTX) dataitems.Repository {
	return dataitems.NewPostgresRepository(db)
}

// Shares returns a shares.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Shares(db dbx.DBTX) shares.Repository {
	return shares.NewPostgresRepository(db)
}

// Audit returns an audit.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Audit(db dbx.DBTX) audit.Repository {
	return audit.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}
