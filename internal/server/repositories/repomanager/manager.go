package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/tors/internal/dbx"
	"github.com/dmitrijs2005/tors/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/tors/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/tors/internal/server/repositories/signingkeys"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Credentials(db dbx.DBTX) credentials.Repository
	SigningKeys(db dbx.DBTX) signingkeys.Repository
}
