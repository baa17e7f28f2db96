package services

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tors/internal/common"
	"github.com/dmitrijs2005/tors/internal/logging"
	"github.com/dmitrijs2005/tors/internal/metrics"
	"github.com/dmitrijs2005/tors/internal/server/auth"
	"github.com/dmitrijs2005/tors/internal/server/models"
)

// KeySource is the part of auth.KeyManager TokenService signs and verifies with.
type KeySource interface {
	Signer() (crypto.Signer, error)
	PublicKey() (ed25519.PublicKey, error)
}

// TokenService issues and validates stateless access tokens.
type TokenService struct {
	keys    KeySource
	issuer  string
	ttl     time.Duration
	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewTokenService(keys KeySource, issuer string, ttl time.Duration, logger logging.Logger, m *metrics.Metrics) *TokenService {
	return &TokenService{
		keys:    keys,
		issuer:  issuer,
		ttl:     ttl,
		logger:  logger.With("module", "tokens"),
		metrics: m,
		now:     time.Now,
	}
}

// Issue signs a token for accountID that expires ttl from now.
func (s *TokenService) Issue(ctx context.Context, accountID string) (*models.AuthToken, error) {
	if accountID == "" {
		return nil, common.ErrInvalidInput
	}

	signer, err := s.keys.Signer()
	if err != nil {
		s.logger.Error(ctx, "signing key unavailable", "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	// token timestamps have second precision
	issuedAt := s.now().UTC().Truncate(time.Second)

	value, err := auth.GenerateToken(accountID, s.issuer, signer, issuedAt, s.ttl)
	if err != nil {
		s.logger.Error(ctx, "token signing failed", "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	return &models.AuthToken{
		Value:     value,
		AccountID: accountID,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(s.ttl),
	}, nil
}

// Validate returns the account id the token was issued for, or
// common.ErrInvalidToken / common.ErrTokenExpired.
func (s *TokenService) Validate(ctx context.Context, token string) (string, error) {
	pub, err := s.keys.PublicKey()
	if err != nil {
		s.logger.Error(ctx, "signing key unavailable", "error", err)
		s.metrics.RecordTokenValidation(metrics.OutcomeError)
		return "", fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	accountID, err := auth.ParseToken(token, pub, s.issuer, s.now)
	switch {
	case err == nil:
		s.metrics.RecordTokenValidation(metrics.OutcomeSuccess)
		return accountID, nil
	case errors.Is(err, common.ErrTokenExpired):
		s.metrics.RecordTokenValidation(metrics.OutcomeExpired)
		return "", common.ErrTokenExpired
	default:
		s.logger.Debug(ctx, "token rejected", "error", err)
		s.metrics.RecordTokenValidation(metrics.OutcomeInvalid)
		return "", common.ErrInvalidToken
	}
}
