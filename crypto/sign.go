package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
)

// SignatureSize is the size of an Ed25519 signature in bytes.
const SignatureSize = ed25519.SignatureSize

// Signature represents an Ed25519 signature.
type Signature [SignatureSize]byte

// SigningKeyPair holds the Ed25519 keys used to authenticate relay
// requests.
type SigningKeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// DeriveSigningKeyPair deterministically derives the signing key pair
// from the box secret key: the SHA-256 of the secret key material is
// used as the Ed25519 seed. The same box key always yields the same
// signing key, so compromise of the box secret also compromises the
// signing key. That coupling is intentional; the relay identifies an
// account by its box-key-derived ID, and the signing key has no
// independent lifecycle.
func DeriveSigningKeyPair(boxSecretKey [32]byte) (*SigningKeyPair, error) {
	if isZeroKey(boxSecretKey) {
		return nil, errors.New("invalid secret key: all zeros")
	}

	seed := sha256.Sum256(boxSecretKey[:])
	private := ed25519.NewKeyFromSeed(seed[:])

	return &SigningKeyPair{
		Public:  private.Public().(ed25519.PublicKey),
		Private: private,
	}, nil
}

// Sign creates an Ed25519 signature for a message.
func Sign(message []byte, privateKey ed25519.PrivateKey) (Signature, error) {
	if len(message) == 0 {
		return Signature{}, errors.New("empty message")
	}
	if len(privateKey) != ed25519.PrivateKeySize {
		return Signature{}, errors.New("invalid private key size")
	}

	var signature Signature
	copy(signature[:], ed25519.Sign(privateKey, message))
	return signature, nil
}

// Verify checks if a signature is valid for a message and public key.
func Verify(message []byte, signature Signature, publicKey ed25519.PublicKey) (bool, error) {
	if len(message) == 0 {
		return false, errors.New("empty message")
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return false, errors.New("invalid public key size")
	}

	return ed25519.Verify(publicKey, message, signature[:]), nil
}
