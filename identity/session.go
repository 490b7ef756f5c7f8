package identity

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ghostmsg/ghostcore/crypto"
)

var (
	// ErrIdentityExists is returned by Create when a secret key is
	// already stored. Overwriting must be explicit (Recreate) because it
	// invalidates the ID and every contact trust relationship.
	ErrIdentityExists = errors.New("identity already exists")

	// ErrNoIdentity is returned when no secret key is stored yet.
	ErrNoIdentity = errors.New("no identity")
)

// Identity is the full derived tuple for this installation.
type Identity struct {
	ID      string
	KeyPair *crypto.KeyPair
	Signing *crypto.SigningKeyPair
}

// SecretStore abstracts the protected, OS-backed storage holding the
// box secret key. Only the secret key is ever persisted; everything
// else is re-derived.
type SecretStore interface {
	Load() (secret []byte, ok bool, err error)
	Save(secret []byte) error
	Delete() error
}

// Session owns the in-memory identity for the lifetime of the process.
type Session struct {
	mu     sync.RWMutex
	store  SecretStore
	cached *Identity
}

// NewSession creates a session backed by the given secret store. No key
// material is loaded until Create or Identity is called.
func NewSession(store SecretStore) *Session {
	return &Session{store: store}
}

// Create generates a fresh key pair and persists only the secret key.
// It fails with ErrIdentityExists if one is already stored.
func (s *Session) Create() (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok, err := s.store.Load(); err != nil {
		return nil, fmt.Errorf("failed to check for existing identity: %w", err)
	} else if ok {
		return nil, ErrIdentityExists
	}

	return s.generateLocked()
}

// Recreate generates a fresh key pair, overwriting any stored one. The
// previous ID and all trust relationships are invalidated; callers are
// expected to have wiped dependent state first.
func (s *Session) Recreate() (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidateLocked()
	return s.generateLocked()
}

func (s *Session) generateLocked() (*Identity, error) {
	keyPair, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	if err := s.store.Save(keyPair.Private[:]); err != nil {
		return nil, fmt.Errorf("failed to persist secret key: %w", err)
	}

	ident, err := derive(keyPair)
	if err != nil {
		return nil, err
	}
	s.cached = ident

	logrus.WithFields(logrus.Fields{
		"function": "Create",
		"ghost_id": ident.ID,
	}).Info("Created new identity")

	return ident, nil
}

// Identity loads or derives the full identity tuple, memoizing it in
// process memory. It returns ErrNoIdentity when no secret key is
// stored.
func (s *Session) Identity() (*Identity, error) {
	s.mu.RLock()
	if s.cached != nil {
		ident := s.cached
		s.mu.RUnlock()
		return ident, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		return s.cached, nil
	}

	secret, ok, err := s.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load secret key: %w", err)
	}
	if !ok {
		return nil, ErrNoIdentity
	}
	if len(secret) != 32 {
		return nil, fmt.Errorf("stored secret key has invalid size %d", len(secret))
	}

	var sk [32]byte
	copy(sk[:], secret)
	crypto.ZeroBytes(secret)

	keyPair, err := crypto.FromSecretKey(sk)
	if err != nil {
		return nil, fmt.Errorf("stored secret key is invalid: %w", err)
	}

	ident, err := derive(keyPair)
	if err != nil {
		return nil, err
	}
	s.cached = ident

	logrus.WithFields(logrus.Fields{
		"function": "Identity",
		"ghost_id": ident.ID,
	}).Debug("Loaded identity from secret store")

	return ident, nil
}

// Exists reports whether a secret key is stored, without deriving or
// caching anything.
func (s *Session) Exists() (bool, error) {
	_, ok, err := s.store.Load()
	return ok, err
}

// Invalidate wipes the cached key material. The persisted secret key is
// untouched; use Destroy for a full wipe.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateLocked()
}

func (s *Session) invalidateLocked() {
	if s.cached == nil {
		return
	}
	crypto.WipeKeyPair(s.cached.KeyPair)
	crypto.ZeroBytes(s.cached.Signing.Private)
	s.cached = nil
}

// Destroy removes the persisted secret key and wipes the cached
// identity. Used on account deletion.
func (s *Session) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidateLocked()
	if err := s.store.Delete(); err != nil {
		return fmt.Errorf("failed to delete secret key: %w", err)
	}

	logrus.WithField("function", "Destroy").Info("Identity destroyed")
	return nil
}

func derive(keyPair *crypto.KeyPair) (*Identity, error) {
	signing, err := crypto.DeriveSigningKeyPair(keyPair.Private)
	if err != nil {
		return nil, fmt.Errorf("failed to derive signing key pair: %w", err)
	}

	return &Identity{
		ID:      crypto.ComputeID(keyPair.Public),
		KeyPair: keyPair,
		Signing: signing,
	}, nil
}
