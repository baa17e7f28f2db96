package models

import "time"

// SigningKeyPair is the single persisted Ed25519 key pair. When Sealed is
// true PrivateKey holds an AES-GCM envelope instead of the raw key.
type SigningKeyPair struct {
	PrivateKey []byte    `db:"private"`
	PublicKey  []byte    `db:"public"`
	Sealed     bool      `db:"sealed"`
	CreatedAt  time.Time `db:"created_at"`
}
