package contact

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostmsg/ghostcore/crypto"
	"github.com/ghostmsg/ghostcore/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "ghost.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	engine, err := storage.NewEngine(db)
	require.NoError(t, err)
	engine.Unlock([32]byte{42})
	return NewStore(engine)
}

func newTestContact(t *testing.T, name string) (Contact, *crypto.KeyPair) {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return Contact{
		ID:   crypto.ComputeID(kp.Public),
		Key:  hex.EncodeToString(kp.Public[:]),
		Name: name,
	}, kp
}

func TestAddGetRemove(t *testing.T) {
	s := newTestStore(t)
	c, _ := newTestContact(t, "alice")

	require.NoError(t, s.Add(c))

	got, ok, err := s.Get(c.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Name)
	assert.False(t, got.SecurityWarning)

	assert.ErrorIs(t, s.Add(c), ErrExists)

	require.NoError(t, s.Remove(c.ID))
	_, ok, err = s.Get(c.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, s.Remove(c.ID), ErrNotFound)
}

func TestAddRejectsMismatchedID(t *testing.T) {
	s := newTestStore(t)
	c, _ := newTestContact(t, "alice")
	c.ID = "0123456789AB" // not derived from c.Key

	assert.Error(t, s.Add(c))
}

func TestObserveKeyStagesRotation(t *testing.T) {
	s := newTestStore(t)
	c, kp := newTestContact(t, "bob")
	require.NoError(t, s.Add(c))

	// Matching key: nothing changes.
	obs, err := s.ObserveKey(c.ID, kp.Public)
	require.NoError(t, err)
	assert.Equal(t, KeyMatches, obs)

	// Different key claiming the same ID: staged, never applied.
	rotated, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	obs, err = s.ObserveKey(c.ID, rotated.Public)
	require.NoError(t, err)
	assert.Equal(t, KeyMismatch, obs)

	got, ok, err := s.Get(c.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.Key, got.Key, "trusted key must not be clobbered")
	assert.True(t, got.SecurityWarning)
	assert.Equal(t, hex.EncodeToString(rotated.Public[:]), got.PendingNewKey)

	// Unknown ID.
	obs, err = s.ObserveKey("FFFFFFFFFFFF", rotated.Public)
	require.NoError(t, err)
	assert.Equal(t, KeyUnknown, obs)
}

func TestApprovePendingKeyResetsVerification(t *testing.T) {
	s := newTestStore(t)
	c, _ := newTestContact(t, "bob")
	require.NoError(t, s.Add(c))
	require.NoError(t, s.SetVerified(c.ID, true))

	rotated, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, err = s.ObserveKey(c.ID, rotated.Public)
	require.NoError(t, err)

	require.NoError(t, s.ApprovePendingKey(c.ID))

	got, _, err := s.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(rotated.Public[:]), got.Key)
	assert.Empty(t, got.PendingNewKey)
	assert.False(t, got.SecurityWarning)
	assert.False(t, got.IsVerified, "key change must invalidate prior verification")

	assert.ErrorIs(t, s.ApprovePendingKey(c.ID), ErrNoPendingKey)
}

func TestRejectPendingKey(t *testing.T) {
	s := newTestStore(t)
	c, _ := newTestContact(t, "bob")
	require.NoError(t, s.Add(c))

	rotated, _ := crypto.GenerateKeyPair()
	_, err := s.ObserveKey(c.ID, rotated.Public)
	require.NoError(t, err)

	require.NoError(t, s.RejectPendingKey(c.ID))

	got, _, err := s.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Key, got.Key)
	assert.Empty(t, got.PendingNewKey)
	assert.False(t, got.SecurityWarning)
}

func TestCandidatesSkipBlocked(t *testing.T) {
	s := newTestStore(t)
	a, _ := newTestContact(t, "alice")
	b, _ := newTestContact(t, "bob")
	require.NoError(t, s.Add(a))
	require.NoError(t, s.Add(b))
	require.NoError(t, s.SetBlocked(b.ID, true))

	candidates, err := s.Candidates()
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, a.ID, candidates[0].ID)
}

func TestApplyProfileKeepsAlias(t *testing.T) {
	s := newTestStore(t)
	c, _ := newTestContact(t, "bob")
	require.NoError(t, s.Add(c))
	require.NoError(t, s.SetAlias(c.ID, "bobby"))

	require.NoError(t, s.ApplyProfile(c.ID, "Robert", ""))

	got, _, err := s.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Robert", got.Name)
	assert.Equal(t, "bobby", got.Alias)
	assert.Equal(t, "bobby", got.DisplayName())
}

func TestSafetyNumberMatchesPeerComputation(t *testing.T) {
	s := newTestStore(t)
	c, peer := newTestContact(t, "bob")
	require.NoError(t, s.Add(c))

	self, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	num, err := s.SafetyNumber(self.Public, c.ID)
	require.NoError(t, err)
	assert.Equal(t, crypto.SafetyNumber(peer.Public, self.Public), num)
}

func TestParseAddPayload(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	id := crypto.ComputeID(kp.Public)
	key := hex.EncodeToString(kp.Public[:])

	valid := fmt.Sprintf(`{"id":%q,"key":%q,"name":"alice"}`, id, key)
	p, err := ParseAddPayload([]byte(valid))
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)

	cases := []struct {
		name    string
		payload string
	}{
		{"not json", `not json`},
		{"bad id", fmt.Sprintf(`{"id":"nope","key":%q}`, key)},
		{"bad key", fmt.Sprintf(`{"id":%q,"key":"zz"}`, id)},
		{"short key", fmt.Sprintf(`{"id":%q,"key":"abcd"}`, id)},
		{"long name", mustJSON(t, AddPayload{ID: id, Key: key, Name: string(make([]byte, 51))})},
		{"bad avatar", fmt.Sprintf(`{"id":%q,"key":%q,"avatar":"http://x"}`, id, key)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAddPayload([]byte(tc.payload))
			assert.Error(t, err)
		})
	}
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
