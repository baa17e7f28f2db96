package signingkeys

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

func (r *SQLiteRepository) Get(ctx context.Context) (*models.SigningKeyPair, error) {
	query :=
		`SELECT private, public, sealed, created_at FROM keys
		 WHERE slot = 1
		 `

	kp := &models.SigningKeyPair{}
	var createdAt string
	err := r.db.QueryRowContext(ctx, query).Scan(&kp.PrivateKey, &kp.PublicKey, &kp.Sealed, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if kp.CreatedAt, err = dbx.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at for signing key: %w", err)
	}

	return kp, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, keyPair *models.SigningKeyPair) error {
	query :=
		`INSERT INTO keys (slot, private, public, sealed, created_at)
		 VALUES (1, ?, ?, ?, ?)
		 `

	_, err := r.db.ExecContext(ctx, query,
		keyPair.PrivateKey, keyPair.PublicKey, keyPair.Sealed, dbx.FormatTime(keyPair.CreatedAt))
	if err != nil {
		if dbx.IsConstraintError(err) {
			return fmt.Errorf("%w: signing key already stored", common.ErrConflict)
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}
