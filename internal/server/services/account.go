// Package services contains server-side business logic: account
// registration and password login (AccountService) and access token
// issuance and validation (TokenService).
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/tors/internal/common"
	"github.com/dmitrijs2005/tors/internal/cryptox"
	"github.com/dmitrijs2005/tors/internal/logging"
	"github.com/dmitrijs2005/tors/internal/metrics"
	"github.com/dmitrijs2005/tors/internal/server/models"
	"github.com/google/uuid"
)

// CredentialStore is the persistence AccountService needs.
type CredentialStore interface {
	UsernameExists(ctx context.Context, userName string) (bool, error)
	InsertAccountAndCredential(ctx context.Context, account *models.Account, credential *models.Credential) error
	FindAccountCredential(ctx context.Context, userName string) (*models.Account, *models.Credential, error)
}

type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, encoded string) (bool, error)
}

// AccountService registers accounts and checks passwords.
type AccountService struct {
	store   CredentialStore
	hasher  PasswordHasher
	logger  logging.Logger
	metrics *metrics.Metrics

	now   func() time.Time
	newID func() (uuid.UUID, error)

	dummyOnce sync.Once
	dummyHash string
}

func NewAccountService(store CredentialStore, hasher PasswordHasher, logger logging.Logger, m *metrics.Metrics) *AccountService {
	return &AccountService{
		store:   store,
		hasher:  hasher,
		logger:  logger.With("module", "accounts"),
		metrics: m,
		now:     time.Now,
		newID:   uuid.NewRandom,
	}
}

// Register creates an account with a hashed password. Errors are one of
// common.ErrInvalidInput, common.ErrConflict, common.ErrHashingFailure,
// common.ErrStorageUnavailable, or the context's error.
func (s *AccountService) Register(ctx context.Context, userName, password string) (*models.Account, error) {
	account, err := s.register(ctx, userName, password)
	s.metrics.RecordRegistration(outcome(err))
	return account, err
}

func (s *AccountService) register(ctx context.Context, userName, password string) (*models.Account, error) {
	if strings.TrimSpace(userName) == "" || password == "" {
		return nil, common.ErrInvalidInput
	}

	exists, err := s.store.UsernameExists(ctx, userName)
	if err != nil {
		return nil, s.storageFailure(ctx, "username lookup", err)
	}
	if exists {
		return nil, common.ErrConflict
	}

	// hashing runs on the caller's goroutine, outside the store's queue
	encoded, err := s.hasher.Hash(ctx, password)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Error(ctx, "password hashing failed", "error", err)
		return nil, common.ErrHashingFailure
	}

	id, err := s.newID()
	if err != nil {
		s.logger.Error(ctx, "account id generation failed", "error", err)
		return nil, common.ErrHashingFailure
	}

	account := &models.Account{
		ID:        id.String(),
		UserName:  userName,
		CreatedAt: s.now().UTC(),
	}
	credential := &models.Credential{
		AccountID:    account.ID,
		PasswordHash: encoded,
		HashVersion:  cryptox.HashVersion(encoded),
	}

	err = s.store.InsertAccountAndCredential(ctx, account, credential)
	switch {
	case err == nil:
		s.logger.Info(ctx, "account registered", "account_id", account.ID)
		return account, nil
	case errors.Is(err, common.ErrConflict):
		// lost a race with a concurrent registration of the same name
		return nil, common.ErrConflict
	default:
		return nil, s.storageFailure(ctx, "account insert", err)
	}
}

// Authenticate returns the account whose password matches. An unknown user
// and a wrong password both yield common.ErrorUnauthorized and cost one
// password verification.
func (s *AccountService) Authenticate(ctx context.Context, userName, password string) (*models.Account, error) {
	account, err := s.authenticate(ctx, userName, password)

	switch {
	case err == nil:
		s.metrics.RecordLogin(metrics.OutcomeSuccess)
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidInput):
		s.metrics.RecordLogin(metrics.OutcomeDenied)
	default:
		s.metrics.RecordLogin(metrics.OutcomeError)
	}
	return account, err
}

func (s *AccountService) authenticate(ctx context.Context, userName, password string) (*models.Account, error) {
	if strings.TrimSpace(userName) == "" || password == "" {
		return nil, common.ErrInvalidInput
	}

	account, credential, err := s.store.FindAccountCredential(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			if dummy := s.dummy(ctx); dummy != "" {
				_, _ = s.hasher.Verify(ctx, password, dummy)
			}
			return nil, common.ErrorUnauthorized
		}
		return nil, s.storageFailure(ctx, "credential lookup", err)
	}

	ok, err := s.hasher.Verify(ctx, password, credential.PasswordHash)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Error(ctx, "password verification failed",
			"account_id", account.ID, "hash_version", credential.HashVersion, "error", err)
		return nil, common.ErrHashingFailure
	}
	if !ok {
		return nil, common.ErrorUnauthorized
	}

	return account, nil
}

// dummy returns a hash to verify against for unknown users.
func (s *AccountService) dummy(ctx context.Context) string {
	s.dummyOnce.Do(func() {
		password, err := common.MakeRandHexString(16)
		if err != nil {
			s.logger.Warn(ctx, "dummy hash unavailable", "error", err)
			return
		}
		h, err := s.hasher.Hash(context.WithoutCancel(ctx), password)
		if err != nil {
			s.logger.Warn(ctx, "dummy hash unavailable", "error", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

func (s *AccountService) storageFailure(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	s.logger.Error(ctx, "credential store failure", "op", op, "error", err)
	return fmt.Errorf("%w: %s", common.ErrStorageUnavailable, op)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, common.ErrInvalidInput):
		return metrics.OutcomeInvalid
	case errors.Is(err, common.ErrConflict):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}
