package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tors/internal/common"
	"golang.org/x/crypto/argon2"
)

const sealSaltSize = 16

// sealAAD binds sealed blobs to their purpose.
var sealAAD = []byte("tors/signing-key/v1")

// ErrSealedKeyCorrupt is returned when a sealed blob cannot be opened: wrong
// secret, truncation or tampering.
var ErrSealedKeyCorrupt = errors.New("sealed key cannot be opened")

// DeriveMasterKey stretches a secret into a 32-byte AES-256 key.
func DeriveMasterKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)
}

// SealKey encrypts plaintext with AES-256-GCM under a key derived from secret.
//
// Layout of the result: salt (16) | nonce (12) | ciphertext with tag.
func SealKey(plaintext, secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty sealing secret")
	}

	salt, err := common.RandomBytes(sealSaltSize)
	if err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}

	aead, err := newGCM(secret, salt)
	if err != nil {
		return nil, err
	}

	nonce, err := common.RandomBytes(aead.NonceSize())
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	out := make([]byte, 0, len(salt)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, sealAAD), nil
}

// OpenKey reverses SealKey.
func OpenKey(sealed, secret []byte) ([]byte, error) {
	if len(sealed) < sealSaltSize {
		return nil, ErrSealedKeyCorrupt
	}

	salt := sealed[:sealSaltSize]
	aead, err := newGCM(secret, salt)
	if err != nil {
		return nil, err
	}

	rest := sealed[sealSaltSize:]
	if len(rest) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrSealedKeyCorrupt
	}

	nonce, ciphertext := rest[:aead.NonceSize()], rest[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, sealAAD)
	if err != nil {
		return nil, ErrSealedKeyCorrupt
	}

	return plaintext, nil
}

func newGCM(secret, salt []byte) (cipher.AEAD, error) {
	key := DeriveMasterKey(secret, salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
