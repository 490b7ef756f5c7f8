package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostmsg/ghostcore/crypto"
)

func TestSealOpenRoundTrip(t *testing.T) {
	alice, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	bob, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	plaintext := []byte("hello")
	env, err := Seal(plaintext, bob.Public, alice.Private)
	require.NoError(t, err)

	opened, senderPK, err := Open(env, bob.Private, [][32]byte{alice.Public})
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
	assert.Equal(t, alice.Public, senderPK)
}

func TestSealFreshNoncePerMessage(t *testing.T) {
	alice, _ := crypto.GenerateKeyPair()
	bob, _ := crypto.GenerateKeyPair()

	env1, err := Seal([]byte("same plaintext"), bob.Public, alice.Private)
	require.NoError(t, err)
	env2, err := Seal([]byte("same plaintext"), bob.Public, alice.Private)
	require.NoError(t, err)

	assert.NotEqual(t, env1[:crypto.NonceSize], env2[:crypto.NonceSize])
	assert.NotEqual(t, env1, env2)
}

func TestTrialDecryptionIdentifiesSender(t *testing.T) {
	bob, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	// N contacts with distinct keys; the envelope opens only against
	// the real sender's key.
	const n = 10
	contacts := make([]*crypto.KeyPair, n)
	candidates := make([][32]byte, n)
	for i := range contacts {
		kp, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		contacts[i] = kp
		candidates[i] = kp.Public
	}

	const senderIdx = 6
	env, err := Seal([]byte("from contact six"), bob.Public, contacts[senderIdx].Private)
	require.NoError(t, err)

	opened, senderPK, err := Open(env, bob.Private, candidates)
	require.NoError(t, err)
	assert.Equal(t, []byte("from contact six"), opened)
	assert.Equal(t, contacts[senderIdx].Public, senderPK)
}

func TestOpenNoCandidate(t *testing.T) {
	alice, _ := crypto.GenerateKeyPair()
	bob, _ := crypto.GenerateKeyPair()
	stranger, _ := crypto.GenerateKeyPair()

	env, err := Seal([]byte("hi"), bob.Public, alice.Private)
	require.NoError(t, err)

	_, _, err = Open(env, bob.Private, [][32]byte{stranger.Public})
	assert.ErrorIs(t, err, ErrNoCandidate)

	_, _, err = Open(env, bob.Private, nil)
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestOpenMalformed(t *testing.T) {
	bob, _ := crypto.GenerateKeyPair()

	_, _, err := Open([]byte("short"), bob.Private, nil)
	assert.ErrorIs(t, err, ErrMalformed)

	_, _, err = OpenAnonymous([]byte("short"), bob.Private)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestAnonymousRoundTrip(t *testing.T) {
	alice, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	bob, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	plaintext := []byte(`{"id":"0123456789AB","key":"aa"}`)
	env, err := SealAnonymous(plaintext, bob.Public, alice)
	require.NoError(t, err)

	// Bob has never seen Alice's key; the envelope carries it.
	opened, senderPK, err := OpenAnonymous(env, bob.Private)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
	assert.Equal(t, alice.Public, senderPK)
}

func TestAnonymousEmbeddedKeyTamperFails(t *testing.T) {
	alice, _ := crypto.GenerateKeyPair()
	bob, _ := crypto.GenerateKeyPair()
	mallory, _ := crypto.GenerateKeyPair()

	env, err := SealAnonymous([]byte("handshake"), bob.Public, alice)
	require.NoError(t, err)

	// Swapping the embedded key breaks authentication.
	copy(env[:KeySize], mallory.Public[:])
	_, _, err = OpenAnonymous(env, bob.Private)
	assert.Error(t, err)
}
