package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"github.com/sirupsen/logrus"

	"github.com/ghostmsg/ghostcore/crypto"
)

const (
	// dbTimeout bounds how long an attempted open of the database file
	// may block on another process's lock.
	dbTimeout = 5 * time.Second

	// keyDomainTag separates the storage key derivation from every
	// other hash use in the system.
	keyDomainTag = "ghostcore/storage/v1"
)

var recordsBucket = []byte("records")

// ErrLocked is returned by writes attempted before Unlock. Reads do not
// return it; they fail closed by reporting the record absent.
var ErrLocked = errors.New("storage engine is locked")

// Engine is the encrypted key/value store. All application state goes
// through it; the underlying bolt file only ever sees ciphertext
// (plus not-yet-migrated legacy plaintext records).
type Engine struct {
	db *bolt.DB

	mu      sync.RWMutex
	key     [32]byte
	haveKey bool

	locks keyedMutex
}

// OpenDB opens the bolt database file backing an Engine.
func OpenDB(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: dbTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// NewEngine creates an engine over an open bolt database. The engine
// starts locked; call Unlock with the identity secret before use.
func NewEngine(db *bolt.DB) (*Engine, error) {
	if db == nil {
		return nil, errors.New("nil database")
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create records bucket: %w", err)
	}

	return &Engine{db: db}, nil
}

// Unlock derives and caches the symmetric key from the identity's
// secret key material. Derivation is a two-step hash: extract the
// secret into a uniform value, then expand it under the storage domain
// tag.
func (e *Engine) Unlock(secretKey [32]byte) {
	extract := sha256.Sum256(secretKey[:])

	h := sha256.New()
	h.Write([]byte(keyDomainTag))
	h.Write(extract[:])
	expanded := h.Sum(nil)

	e.mu.Lock()
	copy(e.key[:], expanded[:32])
	e.haveKey = true
	e.mu.Unlock()

	crypto.ZeroBytes(extract[:])
	crypto.ZeroBytes(expanded)
}

// Lock wipes the cached symmetric key. Called on logout and wipe.
func (e *Engine) Lock() {
	e.mu.Lock()
	crypto.ZeroBytes(e.key[:])
	e.haveKey = false
	e.mu.Unlock()
}

// Unlocked reports whether the symmetric key is available.
func (e *Engine) Unlocked() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.haveKey
}

func (e *Engine) currentKey() ([32]byte, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.key, e.haveKey
}

// Put encrypts plaintext under a fresh nonce and writes
// base64(nonce || ciphertext) at key.
func (e *Engine) Put(key string, plaintext []byte) error {
	symKey, ok := e.currentKey()
	if !ok {
		return ErrLocked
	}

	nonce, err := crypto.GenerateNonce()
	if err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed, err := crypto.EncryptSymmetric(plaintext, nonce, symKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt record: %w", err)
	}

	record := make([]byte, 0, crypto.NonceSize+len(sealed))
	record = append(record, nonce[:]...)
	record = append(record, sealed...)
	encoded := base64.StdEncoding.EncodeToString(record)

	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Put([]byte(key), []byte(encoded))
	})
}

// Get reads and decrypts the record at key. It fails closed: while the
// engine is locked every record reads as absent. An undecryptable
// record is given one chance as a legacy plaintext-JSON blob and
// migrated in place; anything else is treated as corrupted and
// discarded.
func (e *Engine) Get(key string) ([]byte, bool, error) {
	symKey, ok := e.currentKey()
	if !ok {
		return nil, false, nil
	}

	var raw []byte
	err := e.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(recordsBucket).Get([]byte(key))
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read record: %w", err)
	}
	if raw == nil {
		return nil, false, nil
	}

	if plaintext, ok := e.openRecord(raw, symKey); ok {
		return plaintext, true, nil
	}

	return e.migrateLegacy(key, raw)
}

// openRecord attempts to decode and open an encrypted record.
func (e *Engine) openRecord(raw []byte, symKey [32]byte) ([]byte, bool) {
	decoded, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil {
		return nil, false
	}
	if len(decoded) <= crypto.NonceSize {
		return nil, false
	}

	var nonce crypto.Nonce
	copy(nonce[:], decoded[:crypto.NonceSize])

	plaintext, err := crypto.DecryptSymmetric(decoded[crypto.NonceSize:], nonce, symKey)
	if err != nil {
		return nil, false
	}
	return plaintext, true
}

// migrateLegacy handles a record that failed to open as ciphertext. If
// the raw bytes are valid JSON they are a pre-encryption plaintext
// record: re-encrypt in place and return them. Anything else is
// corrupted or tampered and is deleted.
func (e *Engine) migrateLegacy(key string, raw []byte) ([]byte, bool, error) {
	if json.Valid(raw) {
		if err := e.Put(key, raw); err != nil {
			return nil, false, fmt.Errorf("failed to migrate legacy record: %w", err)
		}
		logrus.WithFields(logrus.Fields{
			"function": "migrateLegacy",
			"key":      key,
		}).Info("Migrated legacy plaintext record to encrypted format")
		return raw, true, nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "migrateLegacy",
		"key":      key,
	}).Warn("Discarding undecryptable record")

	if err := e.Delete(key); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

// Keys returns every record key with the given prefix. Keys are not
// encrypted, only values are.
func (e *Engine) Keys(prefix string) ([]string, error) {
	var keys []string
	err := e.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(recordsBucket).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	return keys, nil
}

// Delete removes the record at key.
func (e *Engine) Delete(key string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Delete([]byte(key))
	})
}

// Wipe deletes every record and locks the engine. Used on account
// deletion.
func (e *Engine) Wipe() error {
	e.Lock()
	return e.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(recordsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(recordsBucket)
		return err
	})
}

// Close closes the underlying database.
func (e *Engine) Close() error {
	e.Lock()
	return e.db.Close()
}
