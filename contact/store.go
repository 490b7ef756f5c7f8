package contact

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ghostmsg/ghostcore/crypto"
	"github.com/ghostmsg/ghostcore/storage"
)

// recordKey is the secure-storage key holding the whole contact list.
const recordKey = "contacts"

var (
	// ErrNotFound is returned for operations on an unknown contact ID.
	ErrNotFound = errors.New("contact not found")

	// ErrExists is returned by Add when the ID is already present.
	ErrExists = errors.New("contact already exists")

	// ErrNoPendingKey is returned by Approve/RejectPendingKey when no
	// key rotation is staged.
	ErrNoPendingKey = errors.New("no pending key for contact")
)

// KeyObservation is the result of checking an inbound sender key
// against the trust store.
type KeyObservation int

const (
	// KeyMatches: the observed key is the trusted key.
	KeyMatches KeyObservation = iota
	// KeyUnknown: no contact record exists for the ID.
	KeyUnknown
	// KeyMismatch: the ID is known but the key differs; the new key has
	// been staged, never applied.
	KeyMismatch
)

// Store is the TOFU trust store, persisted as a single record in the
// secure storage engine. All mutations run through the engine's
// per-record writer queue, so concurrent handlers (an inbound profile
// update and a local alias edit, say) cannot clobber each other.
type Store struct {
	engine *storage.Engine
}

// NewStore creates a trust store over the given engine.
func NewStore(engine *storage.Engine) *Store {
	return &Store{engine: engine}
}

func decodeList(raw []byte, ok bool) (map[string]*Contact, error) {
	list := make(map[string]*Contact)
	if !ok {
		return list, nil
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("failed to decode contact list: %w", err)
	}
	return list, nil
}

// mutate runs a serialized read-modify-write on the contact list.
func (s *Store) mutate(fn func(list map[string]*Contact) error) error {
	return s.engine.Update(recordKey, func(current []byte, ok bool) ([]byte, error) {
		list, err := decodeList(current, ok)
		if err != nil {
			return nil, err
		}
		if err := fn(list); err != nil {
			return nil, err
		}
		return json.Marshal(list)
	})
}

// All returns every contact.
func (s *Store) All() ([]*Contact, error) {
	raw, ok, err := s.engine.Get(recordKey)
	if err != nil {
		return nil, err
	}
	list, err := decodeList(raw, ok)
	if err != nil {
		return nil, err
	}

	out := make([]*Contact, 0, len(list))
	for _, c := range list {
		out = append(out, c)
	}
	return out, nil
}

// Get returns the contact with the given ID.
func (s *Store) Get(id string) (*Contact, bool, error) {
	raw, ok, err := s.engine.Get(recordKey)
	if err != nil {
		return nil, false, err
	}
	list, err := decodeList(raw, ok)
	if err != nil {
		return nil, false, err
	}
	c, ok := list[id]
	return c, ok, nil
}

// Add records a new trusted contact (untrusted -> trusted transition:
// handshake accept or explicit manual add). The ID must match the key
// it claims to belong to.
func (s *Store) Add(c Contact) error {
	key, err := c.PublicKey()
	if err != nil {
		return err
	}
	if derived := crypto.ComputeID(key); derived != c.ID {
		return fmt.Errorf("contact ID %q does not match key-derived ID %q", c.ID, derived)
	}

	return s.mutate(func(list map[string]*Contact) error {
		if _, ok := list[c.ID]; ok {
			return ErrExists
		}
		added := c
		list[c.ID] = &added

		logrus.WithFields(logrus.Fields{
			"function": "Add",
			"ghost_id": c.ID,
		}).Info("Contact added")
		return nil
	})
}

// Remove deletes a contact locally. The peer's side keeps its trust
// record; a best-effort delete signal is the caller's concern.
func (s *Store) Remove(id string) error {
	return s.mutate(func(list map[string]*Contact) error {
		if _, ok := list[id]; !ok {
			return ErrNotFound
		}
		delete(list, id)
		return nil
	})
}

// ObserveKey checks an inbound sender key against the stored key for
// id. On a mismatch the observed key is staged as PendingNewKey and the
// contact is flagged with a security warning; the trusted key is left
// untouched. This is the MITM / reinstall detection path.
func (s *Store) ObserveKey(id string, observed [32]byte) (KeyObservation, error) {
	observedHex := hex.EncodeToString(observed[:])
	result := KeyUnknown

	err := s.mutate(func(list map[string]*Contact) error {
		c, ok := list[id]
		if !ok {
			return nil
		}
		if c.Key == observedHex {
			result = KeyMatches
			return nil
		}

		result = KeyMismatch
		c.SecurityWarning = true
		c.PendingNewKey = observedHex

		logrus.WithFields(logrus.Fields{
			"function":    "ObserveKey",
			"ghost_id":    id,
			"key_preview": observedHex[:16],
		}).Warn("Contact key mismatch, staged for explicit approval")
		return nil
	})
	return result, err
}

// ApprovePendingKey replaces the trusted key with the staged one. The
// verification flag is reset: a key change invalidates any prior
// out-of-band attestation.
func (s *Store) ApprovePendingKey(id string) error {
	return s.mutate(func(list map[string]*Contact) error {
		c, ok := list[id]
		if !ok {
			return ErrNotFound
		}
		if c.PendingNewKey == "" {
			return ErrNoPendingKey
		}

		c.Key = c.PendingNewKey
		c.PendingNewKey = ""
		c.SecurityWarning = false
		c.IsVerified = false

		logrus.WithFields(logrus.Fields{
			"function": "ApprovePendingKey",
			"ghost_id": id,
		}).Info("Staged key approved, trust re-established")
		return nil
	})
}

// RejectPendingKey discards the staged key and clears the warning.
func (s *Store) RejectPendingKey(id string) error {
	return s.mutate(func(list map[string]*Contact) error {
		c, ok := list[id]
		if !ok {
			return ErrNotFound
		}
		if c.PendingNewKey == "" {
			return ErrNoPendingKey
		}
		c.PendingNewKey = ""
		c.SecurityWarning = false
		return nil
	})
}

// SetAlias sets the local display override.
func (s *Store) SetAlias(id, alias string) error {
	return s.update(id, func(c *Contact) { c.Alias = alias })
}

// SetVerified records the out-of-band safety number attestation.
func (s *Store) SetVerified(id string, verified bool) error {
	return s.update(id, func(c *Contact) { c.IsVerified = verified })
}

// SetBlocked toggles the block flag.
func (s *Store) SetBlocked(id string, blocked bool) error {
	return s.update(id, func(c *Contact) { c.IsBlocked = blocked })
}

// ApplyProfile applies a peer-sent profile update (name, avatar). The
// local alias is untouched.
func (s *Store) ApplyProfile(id, name, avatar string) error {
	return s.update(id, func(c *Contact) {
		if name != "" {
			c.Name = name
		}
		if avatar != "" {
			c.Avatar = avatar
		}
	})
}

// SetPresence records the result of a presence poll.
func (s *Store) SetPresence(id string, online bool, lastSeen int64) error {
	return s.update(id, func(c *Contact) {
		c.IsOnline = online
		if lastSeen > 0 {
			c.LastSeen = lastSeen
		}
	})
}

func (s *Store) update(id string, fn func(c *Contact)) error {
	return s.mutate(func(list map[string]*Contact) error {
		c, ok := list[id]
		if !ok {
			return ErrNotFound
		}
		fn(c)
		return nil
	})
}

// Candidate pairs a contact ID with its decoded trusted key for trial
// decryption.
type Candidate struct {
	ID  string
	Key [32]byte
}

// Candidates returns the decoded trusted keys of all non-blocked
// contacts.
func (s *Store) Candidates() ([]Candidate, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(all))
	for _, c := range all {
		if c.IsBlocked {
			continue
		}
		key, err := c.PublicKey()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Candidates",
				"ghost_id": c.ID,
			}).Warn("Skipping contact with undecodable key")
			continue
		}
		out = append(out, Candidate{ID: c.ID, Key: key})
	}
	return out, nil
}

// FindByKey returns the contact whose trusted key matches pk.
func (s *Store) FindByKey(pk [32]byte) (*Contact, bool, error) {
	keyHex := hex.EncodeToString(pk[:])
	all, err := s.All()
	if err != nil {
		return nil, false, err
	}
	for _, c := range all {
		if c.Key == keyHex {
			return c, true, nil
		}
	}
	return nil, false, nil
}

// SafetyNumber computes the out-of-band verification fingerprint for a
// contact against our own public key.
func (s *Store) SafetyNumber(selfPK [32]byte, id string) (string, error) {
	c, ok, err := s.Get(id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotFound
	}
	peerPK, err := c.PublicKey()
	if err != nil {
		return "", err
	}
	return crypto.SafetyNumber(selfPK, peerPK), nil
}
