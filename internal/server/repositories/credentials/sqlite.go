package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tors/internal/common"
	"github.com/dmitrijs2005/tors/internal/dbx"
	"github.com/dmitrijs2005/tors/internal/server/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, credential *models.Credential) error {
	query := `INSERT INTO login (id, passHash) VALUES (?, ?)`

	_, err := r.db.ExecContext(ctx, query, credential.AccountID, credential.PasswordHash)
	if err != nil {
		if dbx.IsConstraintError(err) {
			return fmt.Errorf("%w: %v", common.ErrConflict, err)
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) GetByAccountID(ctx context.Context, accountID string) (*models.Credential, error) {
	query := `SELECT id, passHash FROM login WHERE id = ?`

	c := &models.Credential{}
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&c.AccountID, &c.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return c, nil
}
