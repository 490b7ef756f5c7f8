package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPair(t *testing.T) {
	keyPair, err := GenerateKeyPair()
	require.NoError(t, err)
	require.NotNil(t, keyPair)

	assert.False(t, isZeroKey(keyPair.Public), "public key should not be zero")
	assert.False(t, isZeroKey(keyPair.Private), "private key should not be zero")

	keyPair2, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.NotEqual(t, keyPair.Public, keyPair2.Public, "two generations should differ")
}

func TestFromSecretKey(t *testing.T) {
	cases := []struct {
		name      string
		secretKey [32]byte
		wantError bool
	}{
		{
			name:      "valid key",
			secretKey: [32]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32},
			wantError: false,
		},
		{
			name:      "zero key",
			secretKey: [32]byte{},
			wantError: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			keyPair, err := FromSecretKey(tc.secretKey)
			if tc.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.secretKey, keyPair.Private)
			assert.False(t, isZeroKey(keyPair.Public))
		})
	}
}

func TestFromSecretKeyRoundTrip(t *testing.T) {
	// The derived public key must match the one box.GenerateKey produced.
	original, err := GenerateKeyPair()
	require.NoError(t, err)

	restored, err := FromSecretKey(original.Private)
	require.NoError(t, err)
	assert.Equal(t, original.Public, restored.Public)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	sender, err := GenerateKeyPair()
	require.NoError(t, err)
	recipient, err := GenerateKeyPair()
	require.NoError(t, err)
	nonce, err := GenerateNonce()
	require.NoError(t, err)

	plaintext := []byte("hello over an untrusted relay")

	ciphertext, err := Encrypt(plaintext, nonce, recipient.Public, sender.Private)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := Decrypt(ciphertext, nonce, sender.Public, recipient.Private)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	sender, _ := GenerateKeyPair()
	recipient, _ := GenerateKeyPair()
	stranger, _ := GenerateKeyPair()
	nonce, _ := GenerateNonce()

	ciphertext, err := Encrypt([]byte("secret"), nonce, recipient.Public, sender.Private)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, nonce, stranger.Public, recipient.Private)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestEncryptValidation(t *testing.T) {
	sender, _ := GenerateKeyPair()
	recipient, _ := GenerateKeyPair()
	nonce, _ := GenerateNonce()

	_, err := Encrypt(nil, nonce, recipient.Public, sender.Private)
	assert.Error(t, err, "empty message should be rejected")

	_, err = Encrypt(make([]byte, MaxMessageSize+1), nonce, recipient.Public, sender.Private)
	assert.Error(t, err, "oversized message should be rejected")
}

func TestSymmetricRoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], bytes.Repeat([]byte{7}, 32))
	nonce, _ := GenerateNonce()

	plaintext := []byte(`{"contacts":[]}`)
	ciphertext, err := EncryptSymmetric(plaintext, nonce, key)
	require.NoError(t, err)

	decrypted, err := DecryptSymmetric(ciphertext, nonce, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)

	// Tampering must be detected.
	ciphertext[0] ^= 0xFF
	_, err = DecryptSymmetric(ciphertext, nonce, key)
	assert.Error(t, err)
}

func TestGenerateNonce(t *testing.T) {
	nonce, err := GenerateNonce()
	require.NoError(t, err)
	assert.NotEqual(t, Nonce{}, nonce)

	nonce2, err := GenerateNonce()
	require.NoError(t, err)
	assert.NotEqual(t, nonce, nonce2, "nonces must be fresh per call")
}
