// Package storage implements the secure storage engine: an encrypted
// key/value layer over a bolt database.
//
// Every record is sealed with NaCl secretbox under a key derived from
// the identity's box secret key, stored as base64(nonce || ciphertext).
// The symmetric key is never persisted; it is re-derived on each cold
// start and wiped on logout. Reads fail closed while the engine is
// locked, and legacy plaintext-JSON records are migrated to the
// encrypted format the first time they are read.
package storage
