package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// IDLength is the length of a Ghost ID in hex characters (48 bits).
const IDLength = 12

// ComputeID derives the short public user ID from a box public key.
// The key is hex-encoded, hashed with SHA-256, and the first 12 hex
// characters of the digest are uppercased. The ID is a pure function of
// the public key: regenerating the key pair yields a new ID and
// invalidates every existing trust relationship.
func ComputeID(publicKey [32]byte) string {
	sum := sha256.Sum256([]byte(hex.EncodeToString(publicKey[:])))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:IDLength])
}

// ValidateID reports whether s is a well-formed Ghost ID: exactly 12
// uppercase hex characters.
func ValidateID(s string) error {
	if len(s) != IDLength {
		return errors.New("invalid ID length")
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return errors.New("invalid ID character")
		}
	}
	return nil
}
