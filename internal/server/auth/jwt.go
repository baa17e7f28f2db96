// Package auth holds the server's signing key and the token codec built on it.
package auth

import (
	"crypto"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tors/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims of an access token. Subject is the account id.
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken signs an EdDSA token for accountID valid from issuedAt for ttl.
func GenerateToken(accountID, issuer string, signer crypto.Signer, issuedAt time.Time, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	})

	tokenString, err := token.SignedString(signer)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies tokenString against pub and returns the account id.
// The signature is checked before any claim; a token with a valid signature
// past its expiry yields common.ErrTokenExpired, anything else that fails
// yields common.ErrInvalidToken.
func ParseToken(tokenString string, pub ed25519.PublicKey, issuer string, now func() time.Time) (string, error) {
	claims := &Claims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		// the library treats exp as exclusive; a token is still valid at exp
		jwt.WithLeeway(time.Nanosecond),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if now != nil {
		opts = append(opts, jwt.WithTimeFunc(now))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return pub, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Subject, nil
}
