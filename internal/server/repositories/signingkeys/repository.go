// Package signingkeys declares the repository contract for the keys table,
// which holds at most one row.
package signingkeys

import (
	"context"

	"github.com/dmitrijs2005/tors/internal/server/models"
)

type Repository interface {
	// Get returns the stored key pair or common.ErrorNotFound.
	Get(ctx context.Context) (*models.SigningKeyPair, error)

	// Create stores the key pair; common.ErrConflict if one already exists.
	Create(ctx context.Context, keyPair *models.SigningKeyPair) error
}
