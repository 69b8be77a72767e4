package repomanager

import (
	"context"
	"database/sql"

	"github.com/smorozov/vaultcore/internal/dbx"
	"github.com/smorozov/vaultcore/internal/server/repositories/audit"
	"github.com/smorozov/vaultcore/internal/server/repositories/dataitems"
	"github.com/smorozov/vaultcore/internal/server/repositories/separators"
	"github.com/smorozov/vaultcore/internal/server/repositories/shares"
	"github.com/smorozov/vaultcore/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Separators(db dbx.DBTX) separators.Repository
	DataItems(db dbx.DBTX) dataitems.Repository
	Shares(db dbx.DBTX) shares.Repository
	Audit(db dbx.DBTX) audit.Repository
}
