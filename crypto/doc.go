// Package crypto implements the cryptographic primitives for the Ghost
// messaging protocol.
//
// This package handles key generation, envelope encryption and
// decryption, request signing, and derivation of the short public user
// ID, using the NaCl constructions from Go's x/crypto packages.
//
// Example:
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Ghost ID:", crypto.ComputeID(keys.Public))
package crypto
