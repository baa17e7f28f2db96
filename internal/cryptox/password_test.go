package cryptox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/tors/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestHasher() *PasswordHasher {
	return NewPasswordHasher(Argon2Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1})
}

func TestHash_VerifiesOwnPassword(t *testing.T) {
	h := newTestHasher()
	ctx := context.Background()

	passwords := []string{"secret123", "", "ü∂ƒ©˙∆˚¬ password", strings.Repeat("x", 4096)}
	for _, p := range passwords {
		encoded, err := h.Hash(ctx, p)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=1024,t=1,p=1$"), encoded)

		ok, err := h.Verify(ctx, p, encoded)
		require.NoError(t, err)
		assert.True(t, ok, "password of length %d must verify", len(p))

		ok, err = h.Verify(ctx, p+"!", encoded)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestHash_SaltMakesEachHashUnique(t *testing.T) {
	h := newTestHasher()
	ctx := context.Background()

	a, err := h.Hash(ctx, "secret123")
	require.NoError(t, err)
	b, err := h.Hash(ctx, "secret123")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)

	for _, encoded := range []string{a, b} {
		ok, err := h.Verify(ctx, "secret123", encoded)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestVerify_UsesParametersFromStoredHash(t *testing.T) {
	ctx := context.Background()
	old := NewPasswordHasher(Argon2Params{MemoryKiB: 2048, Iterations: 2, Parallelism: 2})
	encoded, err := old.Hash(ctx, "pw")
	require.NoError(t, err)

	ok, err := newTestHasher().Verify(ctx, "pw", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_MalformedHashIsHashingFailure(t *testing.T) {
	h := newTestHasher()
	ctx := context.Background()

	bad := []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=1024,t=1,p=1$c2FsdA",
		"$argon2id$v=16$m=1024,t=1,p=1$c2FsdHNhbHQ$AAAAAAAAAAAAAAAAAAAAAA",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$AAAAAAAAAAAAAAAAAAAAAA",
		"$argon2id$v=19$m=1024,t=1,p=1$!!!$AAAAAAAAAAAAAAAAAAAAAA",
		"$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHQ$AAAA",
		"$2b$04$short",
	}
	for _, encoded := range bad {
		ok, err := h.Verify(ctx, "pw", encoded)
		assert.False(t, ok)
		assert.ErrorIs(t, err, common.ErrHashingFailure, "%q", encoded)
	}
}

func TestVerify_LegacyBcrypt(t *testing.T) {
	h := newTestHasher()
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := h.Verify(ctx, "secret123", string(legacy))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(ctx, "other", string(legacy))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_CanceledContext(t *testing.T) {
	h := NewPasswordHasher(Argon2Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1})
	encoded, err := h.Hash(context.Background(), "pw")
	require.NoError(t, err)

	// occupy every slot so Verify has to wait
	for h.slots.TryAcquire(1) {
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = h.Verify(ctx, "pw", encoded)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHash_ConcurrentCallers(t *testing.T) {
	h := newTestHasher()
	ctx := context.Background()

	var wg sync.WaitGroup
	hashes := make([]string, 16)
	for i := range hashes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			encoded, err := h.Hash(ctx, fmt.Sprintf("pw-%d", i))
			assert.NoError(t, err)
			hashes[i] = encoded
		}(i)
	}
	wg.Wait()

	for i, encoded := range hashes {
		ok, err := h.Verify(ctx, fmt.Sprintf("pw-%d", i), encoded)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestHashVersion(t *testing.T) {
	h := newTestHasher()
	encoded, err := h.Hash(context.Background(), "pw")
	require.NoError(t, err)

	legacy, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.Equal(t, "argon2id-v19", HashVersion(encoded))
	assert.Equal(t, "bcrypt-2a", HashVersion(string(legacy)))
	assert.Equal(t, "bcrypt-2b", HashVersion("$2b$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"))
	assert.Equal(t, "unknown", HashVersion("md5:abc"))
}

func TestNewPasswordHasher_FillsDefaults(t *testing.T) {
	h := NewPasswordHasher(Argon2Params{})
	assert.Equal(t, DefaultArgon2Params(), h.params)
}
