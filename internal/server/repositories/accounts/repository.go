// Package accounts declares the repository contract for the users table.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/tors/internal/server/models"
)

// Repository stores and looks up accounts.
type Repository interface {
	// Create inserts the account. A taken username or id yields common.ErrConflict.
	Create(ctx context.Context, account *models.Account) error

	// Exists reports whether an account with userName is stored.
	Exists(ctx context.Context, userName string) (bool, error)

	// GetByUserName returns common.ErrorNotFound when no account matches.
	GetByUserName(ctx context.Context, userName string) (*models.Account, error)
}
