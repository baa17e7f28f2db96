// Package cryptox holds the server's password hashing and the sealing of
// key material at rest.
package cryptox

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/dmitrijs2005/tors/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const argon2idPrefix = "$argon2id$"

// upper bounds accepted when decoding a stored hash
const (
	maxMemoryKiB  = 1 << 21
	maxIterations = 64
	minKeyLength  = 16
)

// Argon2Params is the work factor of newly created hashes. Existing hashes
// carry their own parameters and keep verifying after a change.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params matches DeriveMasterKey: 64 MiB, one pass, four lanes.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		MemoryKiB:   64 * 1024,
		Iterations:  1,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// PasswordHasher produces and verifies salted argon2id hashes in PHC string
// form. Legacy bcrypt hashes written by the first release still verify.
//
// Each operation holds up to MemoryKiB of memory, so the number running at
// once is capped at GOMAXPROCS.
type PasswordHasher struct {
	params Argon2Params
	slots  *semaphore.Weighted
}

// NewPasswordHasher returns a hasher; zero fields in p take their default.
func NewPasswordHasher(p Argon2Params) *PasswordHasher {
	d := DefaultArgon2Params()
	if p.MemoryKiB == 0 {
		p.MemoryKiB = d.MemoryKiB
	}
	if p.Iterations == 0 {
		p.Iterations = d.Iterations
	}
	if p.Parallelism == 0 {
		p.Parallelism = d.Parallelism
	}
	if p.SaltLength == 0 {
		p.SaltLength = d.SaltLength
	}
	if p.KeyLength == 0 {
		p.KeyLength = d.KeyLength
	}
	return &PasswordHasher{
		params: p,
		slots:  semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
}

// Hash returns the encoded hash of password with a fresh random salt. Any
// password content and length is accepted. The only failure besides ctx is
// the random source failing, reported as common.ErrHashingFailure.
func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	salt, err := common.RandomBytes(int(h.params.SaltLength))
	if err != nil {
		return "", fmt.Errorf("%w: salt: %v", common.ErrHashingFailure, err)
	}

	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLength)
	h.slots.Release(1)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2idPrefix, argon2.Version,
		h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. A mismatch is (false, nil);
// a hash that cannot be decoded is common.ErrHashingFailure.
func (h *PasswordHasher) Verify(ctx context.Context, password, encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return h.verifyBcrypt(ctx, password, encoded)
	}

	p, salt, want, err := decodeArgon2id(encoded)
	if err != nil {
		return false, err
	}

	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)
	h.slots.Release(1)

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func (h *PasswordHasher) verifyBcrypt(ctx context.Context, password, encoded string) (bool, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false, err
	}
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	h.slots.Release(1)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", common.ErrHashingFailure, err)
	}
}

// HashVersion names the scheme and version of an encoded hash, e.g.
// "argon2id-v19" or "bcrypt-2b". Unrecognised input yields "unknown".
func HashVersion(encoded string) string {
	if isBcrypt(encoded) {
		return "bcrypt-" + encoded[1:3]
	}
	if _, _, _, err := decodeArgon2id(encoded); err == nil {
		return fmt.Sprintf("argon2id-v%d", argon2.Version)
	}
	return "unknown"
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

func decodeArgon2id(encoded string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params

	malformed := func(reason string) (Argon2Params, []byte, []byte, error) {
		return Argon2Params{}, nil, nil, fmt.Errorf("%w: malformed hash: %s", common.ErrHashingFailure, reason)
	}

	if !strings.HasPrefix(encoded, argon2idPrefix) {
		return malformed("unknown scheme")
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return malformed("wrong number of fields")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return malformed("unsupported version")
	}

	var parallelism uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Iterations, &parallelism); err != nil {
		return malformed("bad parameters")
	}
	if p.MemoryKiB == 0 || p.MemoryKiB > maxMemoryKiB || p.Iterations == 0 || p.Iterations > maxIterations ||
		parallelism == 0 || parallelism > 255 {
		return malformed("parameters out of range")
	}
	p.Parallelism = uint8(parallelism)

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return malformed("bad salt")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) < minKeyLength {
		return malformed("bad key")
	}

	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))

	return p, salt, key, nil
}
