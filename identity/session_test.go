package identity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostmsg/ghostcore/crypto"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	return NewSession(NewFileStore(filepath.Join(t.TempDir(), "identity.key")))
}

func TestCreateAndLoad(t *testing.T) {
	s := newTestSession(t)

	created, err := s.Create()
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Len(t, created.ID, crypto.IDLength)
	assert.Equal(t, crypto.ComputeID(created.KeyPair.Public), created.ID)

	loaded, err := s.Identity()
	require.NoError(t, err)
	assert.Same(t, created, loaded, "identity should be memoized")
}

func TestCreateFailsWhenExists(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Create()
	require.NoError(t, err)

	_, err = s.Create()
	assert.ErrorIs(t, err, ErrIdentityExists)
}

func TestIdentitySurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.key")

	first := NewSession(NewFileStore(path))
	created, err := first.Create()
	require.NoError(t, err)

	// Fresh session over the same store simulates a cold start.
	second := NewSession(NewFileStore(path))
	loaded, err := second.Identity()
	require.NoError(t, err)

	assert.Equal(t, created.ID, loaded.ID)
	assert.Equal(t, created.KeyPair.Public, loaded.KeyPair.Public)
	assert.Equal(t, created.Signing.Public, loaded.Signing.Public)
}

func TestIdentityAbsent(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Identity()
	assert.ErrorIs(t, err, ErrNoIdentity)

	ok, err := s.Exists()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecreateInvalidatesID(t *testing.T) {
	s := newTestSession(t)

	first, err := s.Create()
	require.NoError(t, err)

	second, err := s.Recreate()
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID, "new key pair must produce a new ID")
}

func TestDestroy(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Create()
	require.NoError(t, err)

	require.NoError(t, s.Destroy())

	_, err = s.Identity()
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestInvalidateDropsCache(t *testing.T) {
	s := newTestSession(t)

	created, err := s.Create()
	require.NoError(t, err)
	id := created.ID

	s.Invalidate()

	// Reload from disk; same identity, new object.
	loaded, err := s.Identity()
	require.NoError(t, err)
	assert.Equal(t, id, loaded.ID)
	assert.NotSame(t, created, loaded)
}
