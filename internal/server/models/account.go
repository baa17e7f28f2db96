// Package models holds the server's domain records.
package models

import "time"

// Account is a registered identity. UserName is unique across accounts and
// ID never changes once assigned.
type Account struct {
	ID        string    `db:"id"`
	UserName  string    `db:"username"`
	CreatedAt time.Time `db:"created_at"`
}

// Credential is the password-verification material of exactly one Account.
// HashVersion names the scheme and cost encoded in PasswordHash.
type Credential struct {
	AccountID    string `db:"id"`
	PasswordHash string `db:"passHash"`
	HashVersion  string `db:"-"`
}
