// Package credentials declares the repository contract for the login table.
package credentials

import (
	"context"

	"github.com/dmitrijs2005/tors/internal/server/models"
)

type Repository interface {
	// Create stores the password hash of an account. A second credential for
	// the same account yields common.ErrConflict.
	Create(ctx context.Context, credential *models.Credential) error

	// GetByAccountID returns common.ErrorNotFound when the account has no credential.
	GetByAccountID(ctx context.Context, accountID string) (*models.Credential, error)
}
