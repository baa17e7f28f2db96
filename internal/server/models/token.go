package models

import "time"

// AuthToken is an issued, signed token. It is never stored.
type AuthToken struct {
	Value     string
	AccountID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
