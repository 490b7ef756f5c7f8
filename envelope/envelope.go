// Package envelope implements the wire format for 1:1 encrypted
// payloads.
//
// Two forms exist. The known-sender form is nonce || ciphertext; the
// wire carries no sender identifier, so the recipient identifies the
// sender by trial decryption against known contact keys. The anonymous
// handshake form is senderPublicKey || nonce || ciphertext, used for a
// first contact before any trust relationship exists.
package envelope

import (
	"errors"
	"fmt"

	"github.com/ghostmsg/ghostcore/crypto"
)

// KeySize is the size of a box public key on the wire.
const KeySize = 32

const (
	minSize          = crypto.NonceSize + 16 // nonce + box overhead
	minAnonymousSize = KeySize + minSize
)

var (
	// ErrNoCandidate is returned when no candidate key opens an
	// envelope. Broadcast-style polling makes this expected noise, not a
	// fault; callers drop the envelope silently.
	ErrNoCandidate = errors.New("envelope not addressed to any known trust relationship")

	// ErrMalformed is returned for envelopes too short to carry their
	// declared structure.
	ErrMalformed = errors.New("malformed envelope")
)

// Seal encrypts plaintext for a known recipient: fresh nonce,
// authenticated encryption, output nonce || ciphertext.
func Seal(plaintext []byte, recipientPK [32]byte, senderSK [32]byte) ([]byte, error) {
	nonce, err := crypto.GenerateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext, err := crypto.Encrypt(plaintext, nonce, recipientPK, senderSK)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, crypto.NonceSize+len(ciphertext))
	out = append(out, nonce[:]...)
	out = append(out, ciphertext...)
	return out, nil
}

// SealAnonymous encrypts plaintext for a recipient who has no trust
// relationship with the sender yet. The output is prefixed with the
// sender's public key so the recipient can open it:
// senderPK || nonce || ciphertext.
func SealAnonymous(plaintext []byte, recipientPK [32]byte, sender *crypto.KeyPair) ([]byte, error) {
	sealed, err := Seal(plaintext, recipientPK, sender.Private)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, KeySize+len(sealed))
	out = append(out, sender.Public[:]...)
	out = append(out, sealed...)
	return out, nil
}

// Open opens a known-sender envelope by trial decryption: each
// candidate public key is tried in turn and the first success
// identifies the sender. O(n) in the candidate count is a deliberate
// trade-off; the wire format stays free of sender identifiers.
func Open(env []byte, recipientSK [32]byte, candidates [][32]byte) (plaintext []byte, senderPK [32]byte, err error) {
	if len(env) < minSize {
		return nil, senderPK, ErrMalformed
	}

	var nonce crypto.Nonce
	copy(nonce[:], env[:crypto.NonceSize])
	ciphertext := env[crypto.NonceSize:]

	for _, candidate := range candidates {
		opened, err := crypto.Decrypt(ciphertext, nonce, candidate, recipientSK)
		if err == nil {
			return opened, candidate, nil
		}
	}

	return nil, senderPK, ErrNoCandidate
}

// OpenAnonymous opens a handshake envelope using the embedded sender
// key. The caller must still verify that the handshake payload restates
// the same key before trusting the claimed identity; see
// protocol.ParseHandshake.
func OpenAnonymous(env []byte, recipientSK [32]byte) (plaintext []byte, senderPK [32]byte, err error) {
	if len(env) < minAnonymousSize {
		return nil, senderPK, ErrMalformed
	}

	copy(senderPK[:], env[:KeySize])

	var nonce crypto.Nonce
	copy(nonce[:], env[KeySize:KeySize+crypto.NonceSize])
	ciphertext := env[KeySize+crypto.NonceSize:]

	plaintext, err = crypto.Decrypt(ciphertext, nonce, senderPK, recipientSK)
	if err != nil {
		return nil, senderPK, err
	}
	return plaintext, senderPK, nil
}
