package auth

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/tors/internal/common"
	"github.com/dmitrijs2005/tors/internal/cryptox"
	"github.com/dmitrijs2005/tors/internal/logging"
	"github.com/dmitrijs2005/tors/internal/server/models"
)

// ErrKeyNotInitialized is returned by KeyManager methods called before a
// successful Initialize.
var ErrKeyNotInitialized = errors.New("signing key not initialized")

// KeyStore persists the single signing key pair.
type KeyStore interface {
	LoadSigningKeyPair(ctx context.Context) (*models.SigningKeyPair, error)
	StoreSigningKeyPair(ctx context.Context, keyPair *models.SigningKeyPair) error
}

// KeyManager owns the server's Ed25519 signing key. The key is loaded or
// created once and never leaves the manager; callers sign through it.
type KeyManager struct {
	mu     sync.RWMutex
	store  KeyStore
	secret []byte
	logger logging.Logger

	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewKeyManager returns an unloaded manager. With a non-empty secret, newly
// generated keys are sealed before they are stored.
func NewKeyManager(store KeyStore, secret []byte, logger logging.Logger) *KeyManager {
	return &KeyManager{
		store:  store,
		secret: secret,
		logger: logger.With("module", "keys"),
	}
}

// Initialize loads the stored key pair, generating and storing one if none
// exists. It is a no-op once it has succeeded; after a failure it may be
// called again.
func (m *KeyManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.priv != nil {
		return nil
	}

	kp, err := m.store.LoadSigningKeyPair(ctx)
	switch {
	case err == nil:
		m.logger.Info(ctx, "signing key loaded", "created_at", kp.CreatedAt)
		return m.adopt(kp)
	case !errors.Is(err, common.ErrorNotFound):
		return fmt.Errorf("load signing key: %w", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate signing key: %w", err)
	}

	kp, err = m.record(pub, priv)
	if err != nil {
		return err
	}

	err = m.store.StoreSigningKeyPair(ctx, kp)
	switch {
	case err == nil:
		m.priv, m.pub = priv, pub
		m.logger.Info(ctx, "signing key generated", "sealed", kp.Sealed)
		return nil
	case errors.Is(err, common.ErrConflict):
		// another process stored its key first; use that one
		stored, err := m.store.LoadSigningKeyPair(ctx)
		if err != nil {
			return fmt.Errorf("reload signing key: %w", err)
		}
		return m.adopt(stored)
	default:
		return fmt.Errorf("store signing key: %w", err)
	}
}

func (m *KeyManager) record(pub ed25519.PublicKey, priv ed25519.PrivateKey) (*models.SigningKeyPair, error) {
	kp := &models.SigningKeyPair{
		PrivateKey: priv.Seed(),
		PublicKey:  pub,
		CreatedAt:  time.Now().UTC(),
	}
	if len(m.secret) == 0 {
		return kp, nil
	}

	sealed, err := cryptox.SealKey(kp.PrivateKey, m.secret)
	if err != nil {
		return nil, fmt.Errorf("seal signing key: %w", err)
	}
	kp.PrivateKey = sealed
	kp.Sealed = true
	return kp, nil
}

func (m *KeyManager) adopt(kp *models.SigningKeyPair) error {
	raw := kp.PrivateKey
	if kp.Sealed {
		if len(m.secret) == 0 {
			return errors.New("stored signing key is sealed but no key encryption secret is configured")
		}
		opened, err := cryptox.OpenKey(kp.PrivateKey, m.secret)
		if err != nil {
			return fmt.Errorf("open signing key: %w", err)
		}
		raw = opened
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(append([]byte(nil), raw...))
	default:
		return fmt.Errorf("stored signing key has length %d", len(raw))
	}

	pub := priv.Public().(ed25519.PublicKey)
	if !pub.Equal(ed25519.PublicKey(kp.PublicKey)) {
		return errors.New("stored signing key does not match its public key")
	}

	m.priv, m.pub = priv, pub
	return nil
}

// Sign returns the Ed25519 signature of payload.
func (m *KeyManager) Sign(payload []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.priv == nil {
		return nil, ErrKeyNotInitialized
	}
	return ed25519.Sign(m.priv, payload), nil
}

func (m *KeyManager) PublicKey() (ed25519.PublicKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.pub == nil {
		return nil, ErrKeyNotInitialized
	}
	return append(ed25519.PublicKey(nil), m.pub...), nil
}

// Signer returns a crypto.Signer backed by the managed key.
func (m *KeyManager) Signer() (crypto.Signer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.priv == nil {
		return nil, ErrKeyNotInitialized
	}
	return keySigner{key: m.priv}, nil
}

// keySigner exposes signing without exposing the key bytes.
type keySigner struct {
	key ed25519.PrivateKey
}

func (s keySigner) Public() crypto.PublicKey {
	return s.key.Public()
}

func (s keySigner) Sign(rand io.Reader, message []byte, opts crypto.SignerOpts) ([]byte, error) {
	return s.key.Sign(rand, message, opts)
}
