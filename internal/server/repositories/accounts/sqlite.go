package accounts

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

func (r *SQLiteRepository) Create(ctx context.Context, account *models.Account) error {
	query :=
		`INSERT INTO users (id, username, created_at)
		 VALUES (?, ?, ?)
		 `

	_, err := r.db.ExecContext(ctx, query, account.ID, account.UserName, dbx.FormatTime(account.CreatedAt))
	if err != nil {
		if dbx.IsConstraintError(err) {
			return fmt.Errorf("%w: %v", common.ErrConflict, err)
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) Exists(ctx context.Context, userName string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE username = ?)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userName).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return exists, nil
}

func (r *SQLiteRepository) GetByUserName(ctx context.Context, userName string) (*models.Account, error) {
	query :=
		`SELECT id, username, created_at FROM users
		 WHERE username = ?
		 `

	account := &models.Account{}
	var createdAt string
	err := r.db.QueryRowContext(ctx, query, userName).Scan(&account.ID, &account.UserName, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if account.CreatedAt, err = dbx.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at for %s: %w", account.ID, err)
	}

	return account, nil
}
