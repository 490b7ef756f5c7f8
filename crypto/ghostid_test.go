package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeIDDeterministic(t *testing.T) {
	keys, err := GenerateKeyPair()
	require.NoError(t, err)

	id1 := ComputeID(keys.Public)
	id2 := ComputeID(keys.Public)
	assert.Equal(t, id1, id2, "same key must always yield the same ID")
	assert.Len(t, id1, IDLength)
	assert.NoError(t, ValidateID(id1))
}

func TestComputeIDChangesWithKey(t *testing.T) {
	a, _ := GenerateKeyPair()
	b, _ := GenerateKeyPair()
	assert.NotEqual(t, ComputeID(a.Public), ComputeID(b.Public))
}

func TestValidateID(t *testing.T) {
	cases := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid", "0123456789AB", false},
		{"lowercase", "0123456789ab", true},
		{"too short", "0123456789A", true},
		{"too long", "0123456789ABC", true},
		{"non-hex", "0123456789AZ", true},
		{"empty", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateID(tc.id)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDeriveSigningKeyPairDeterministic(t *testing.T) {
	keys, err := GenerateKeyPair()
	require.NoError(t, err)

	sk1, err := DeriveSigningKeyPair(keys.Private)
	require.NoError(t, err)
	sk2, err := DeriveSigningKeyPair(keys.Private)
	require.NoError(t, err)

	assert.Equal(t, sk1.Public, sk2.Public, "derivation must be deterministic")

	msg := []byte("ABCDEF123456:1700000000000:GET:/check/ABCDEF123456")
	sig, err := Sign(msg, sk1.Private)
	require.NoError(t, err)

	ok, err := Verify(msg, sig, sk2.Public)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify([]byte("tampered"), sig, sk2.Public)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeriveSigningKeyPairZeroKey(t *testing.T) {
	_, err := DeriveSigningKeyPair([32]byte{})
	assert.Error(t, err)
}

func TestSafetyNumberSymmetry(t *testing.T) {
	a, _ := GenerateKeyPair()
	b, _ := GenerateKeyPair()

	numAB := SafetyNumber(a.Public, b.Public)
	numBA := SafetyNumber(b.Public, a.Public)
	assert.Equal(t, numAB, numBA, "both parties must compute the same safety number")

	// Four zero-padded 4-digit groups.
	assert.Regexp(t, `^\d{4} \d{4} \d{4} \d{4}$`, numAB)

	c, _ := GenerateKeyPair()
	assert.NotEqual(t, numAB, SafetyNumber(a.Public, c.Public))
}
