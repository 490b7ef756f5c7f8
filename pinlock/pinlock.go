// Package pinlock gates UI access behind a PIN or password.
//
// The secret is never stored; only a salted iterated hash is persisted,
// under a domain-separation tag distinct from every other hash use in
// the system. Failed attempts increment a persisted counter that drives
// an exponential lockout delay which survives process restarts. A
// legacy low-iteration record format is accepted for verification only
// and upgraded in place on the first successful match.
package pinlock

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/pbkdf2"

	"github.com/ghostmsg/ghostcore/storage"
)

const (
	recordKey = "pinlock"

	versionLegacy  = 1
	versionCurrent = 2

	iterationsLegacy  = 5000
	iterationsCurrent = 50000

	domainTagLegacy  = "ghostcore/pin/v1"
	domainTagCurrent = "ghostcore/pin/v2"

	saltSize = 16
	hashSize = 32
)

// Kind distinguishes numeric PINs from full passwords. It only affects
// the unlock prompt; hashing is identical.
type Kind string

const (
	KindPIN      Kind = "pin"
	KindPassword Kind = "password"
)

// ErrNotConfigured is returned by Verify when no lock is set up.
var ErrNotConfigured = errors.New("pin lock not configured")

// lockoutSteps maps the failed-attempt count to the enforced wait in
// seconds. Entries beyond the table reuse the last step.
var lockoutSteps = []int64{0, 0, 0, 30, 60, 300, 900, 3600}

// record is the persisted lock state.
type record struct {
	Version        int    `json:"version"`
	Kind           Kind   `json:"kind"`
	Salt           string `json:"salt"`
	Hash           string `json:"hash"`
	FailedAttempts int    `json:"failedAttempts"`
	LastFailure    int64  `json:"lastFailure,omitempty"` // unix ms
}

// Result reports a verification outcome. RemainingLockout is non-zero
// while further attempts are refused.
type Result struct {
	OK               bool
	RemainingLockout time.Duration
}

// Lock is the PIN-lock state machine, persisted through the secure
// storage engine. It is independent of the network.
type Lock struct {
	engine *storage.Engine
	now    func() time.Time
}

// NewLock creates a Lock over the given engine.
func NewLock(engine *storage.Engine) *Lock {
	return &Lock{engine: engine, now: time.Now}
}

// NewLockWithClock creates a Lock with an injected clock for tests.
func NewLockWithClock(engine *storage.Engine, now func() time.Time) *Lock {
	return &Lock{engine: engine, now: now}
}

func deriveHash(secret string, salt []byte, tag string, iterations int) []byte {
	return pbkdf2.Key([]byte(tag+":"+secret), salt, iterations, hashSize, sha256.New)
}

// Setup hashes the secret under the current format and persists the
// record, clearing any previous failure state.
func (l *Lock) Setup(secret string, kind Kind) error {
	if secret == "" {
		return errors.New("empty secret")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	rec := record{
		Version: versionCurrent,
		Kind:    kind,
		Salt:    base64.StdEncoding.EncodeToString(salt),
		Hash:    base64.StdEncoding.EncodeToString(deriveHash(secret, salt, domainTagCurrent, iterationsCurrent)),
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return l.engine.Put(recordKey, raw)
}

// Enabled reports whether a lock record exists.
func (l *Lock) Enabled() (bool, error) {
	_, ok, err := l.engine.Get(recordKey)
	return ok, err
}

// Clear removes the lock entirely.
func (l *Lock) Clear() error {
	return l.engine.Delete(recordKey)
}

// Verify checks the secret against the stored record. While a lockout
// delay is pending the attempt is refused without touching the hash,
// and the remaining wait is reported. A successful match clears the
// failure counter; a legacy-format match also rewrites the record in
// the current format.
func (l *Lock) Verify(secret string) (Result, error) {
	var result Result

	err := l.engine.Update(recordKey, func(current []byte, ok bool) ([]byte, error) {
		if !ok {
			return nil, ErrNotConfigured
		}

		var rec record
		if err := json.Unmarshal(current, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode pin lock record: %w", err)
		}

		now := l.now()
		if remaining := remainingLockout(&rec, now); remaining > 0 {
			result = Result{OK: false, RemainingLockout: remaining}
			return current, nil
		}

		if matches(&rec, secret) {
			result = Result{OK: true}
			upgraded, err := l.afterSuccess(rec, secret)
			if err != nil {
				return nil, err
			}
			return json.Marshal(upgraded)
		}

		rec.FailedAttempts++
		rec.LastFailure = now.UnixMilli()
		result = Result{OK: false, RemainingLockout: lockoutDelay(rec.FailedAttempts)}

		logrus.WithFields(logrus.Fields{
			"function": "Verify",
			"attempts": rec.FailedAttempts,
		}).Warn("Failed unlock attempt")

		return json.Marshal(rec)
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// matches verifies the secret against the record's format version.
func matches(rec *record, secret string) bool {
	salt, err := base64.StdEncoding.DecodeString(rec.Salt)
	if err != nil {
		return false
	}
	stored, err := base64.StdEncoding.DecodeString(rec.Hash)
	if err != nil {
		return false
	}

	var computed []byte
	switch rec.Version {
	case versionCurrent:
		computed = deriveHash(secret, salt, domainTagCurrent, iterationsCurrent)
	case versionLegacy:
		computed = deriveHash(secret, salt, domainTagLegacy, iterationsLegacy)
	default:
		return false
	}

	return subtle.ConstantTimeCompare(computed, stored) == 1
}

// afterSuccess clears the failure counter and, for a legacy record,
// upgrades it to the current format under a fresh salt.
func (l *Lock) afterSuccess(rec record, secret string) (record, error) {
	rec.FailedAttempts = 0
	rec.LastFailure = 0

	if rec.Version == versionCurrent {
		return rec, nil
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return rec, fmt.Errorf("failed to generate salt for upgrade: %w", err)
	}

	rec.Version = versionCurrent
	rec.Salt = base64.StdEncoding.EncodeToString(salt)
	rec.Hash = base64.StdEncoding.EncodeToString(deriveHash(secret, salt, domainTagCurrent, iterationsCurrent))

	logrus.WithField("function", "afterSuccess").Info("Upgraded legacy pin lock record")
	return rec, nil
}

// lockoutDelay returns the enforced wait after the given failure count.
func lockoutDelay(failedAttempts int) time.Duration {
	if failedAttempts <= 0 {
		return 0
	}
	idx := failedAttempts
	if idx >= len(lockoutSteps) {
		idx = len(lockoutSteps) - 1
	}
	return time.Duration(lockoutSteps[idx]) * time.Second
}

// remainingLockout computes how much of the current delay is left.
func remainingLockout(rec *record, now time.Time) time.Duration {
	delay := lockoutDelay(rec.FailedAttempts)
	if delay == 0 || rec.LastFailure == 0 {
		return 0
	}
	elapsed := time.Duration(now.UnixMilli()-rec.LastFailure) * time.Millisecond
	if elapsed >= delay {
		return 0
	}
	return delay - elapsed
}
