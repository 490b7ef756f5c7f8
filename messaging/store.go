package messaging

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ghostmsg/ghostcore/storage"
)

const (
	historyPrefix  = "history:"
	lastReadPrefix = "lastread:"
	ttlPrefix      = "ttl:"
)

// Store persists conversation histories, last-read timestamps and
// per-conversation ephemeral TTLs through the secure storage engine.
type Store struct {
	engine *storage.Engine
}

// NewStore creates a message store over the given engine.
func NewStore(engine *storage.Engine) *Store {
	return &Store{engine: engine}
}

func historyKey(contactID string) string { return historyPrefix + contactID }

func decodeHistory(raw []byte, ok bool) ([]Message, error) {
	if !ok {
		return nil, nil
	}
	var history []Message
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return history, nil
}

// Append adds a message to the front of a conversation history
// (newest-first order). Appending an ID already present is a no-op, so
// redelivered poll batches are idempotent.
func (s *Store) Append(contactID string, m Message) error {
	return s.engine.Update(historyKey(contactID), func(current []byte, ok bool) ([]byte, error) {
		history, err := decodeHistory(current, ok)
		if err != nil {
			return nil, err
		}
		for _, existing := range history {
			if existing.ID == m.ID {
				return json.Marshal(history)
			}
		}
		return json.Marshal(append([]Message{m}, history...))
	})
}

// List returns a conversation history, newest first.
func (s *Store) List(contactID string) ([]Message, error) {
	raw, ok, err := s.engine.Get(historyKey(contactID))
	if err != nil {
		return nil, err
	}
	return decodeHistory(raw, ok)
}

// SetStatus updates the delivery status of a single message.
func (s *Store) SetStatus(contactID, messageID string, status Status) error {
	return s.engine.Update(historyKey(contactID), func(current []byte, ok bool) ([]byte, error) {
		history, err := decodeHistory(current, ok)
		if err != nil {
			return nil, err
		}
		for i := range history {
			if history[i].ID == messageID {
				history[i].Status = status
				break
			}
		}
		return json.Marshal(history)
	})
}

// MarkOutgoingRead applies a peer read receipt: every own message sent
// at or before upToMillis transitions sent -> read.
func (s *Store) MarkOutgoingRead(contactID string, upToMillis int64) error {
	return s.engine.Update(historyKey(contactID), func(current []byte, ok bool) ([]byte, error) {
		history, err := decodeHistory(current, ok)
		if err != nil {
			return nil, err
		}
		for i := range history {
			if history[i].IsMe && history[i].Timestamp <= upToMillis && history[i].Status == StatusSent {
				history[i].Status = StatusRead
			}
		}
		return json.Marshal(history)
	})
}

// DeleteConversation removes a history record entirely.
func (s *Store) DeleteConversation(contactID string) error {
	return s.engine.Delete(historyKey(contactID))
}

// SetLastRead records the local read position for a conversation.
func (s *Store) SetLastRead(contactID string, millis int64) error {
	return s.engine.Put(lastReadPrefix+contactID, []byte(strconv.FormatInt(millis, 10)))
}

// LastRead returns the local read position, zero when unset.
func (s *Store) LastRead(contactID string) (int64, error) {
	raw, ok, err := s.engine.Get(lastReadPrefix + contactID)
	if err != nil || !ok {
		return 0, err
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, nil
	}
	return v, nil
}

// SetTTL configures the ephemeral TTL (seconds) for a conversation.
// Zero disables expiry and removes the setting.
func (s *Store) SetTTL(contactID string, seconds int64) error {
	if seconds <= 0 {
		return s.engine.Delete(ttlPrefix + contactID)
	}
	return s.engine.Put(ttlPrefix+contactID, []byte(strconv.FormatInt(seconds, 10)))
}

// TTL returns the configured ephemeral TTL for a conversation, zero
// when expiry is disabled.
func (s *Store) TTL(contactID string) (int64, error) {
	raw, ok, err := s.engine.Get(ttlPrefix + contactID)
	if err != nil || !ok {
		return 0, err
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, nil
	}
	return v, nil
}

// Sweep removes expired messages from one conversation. When every
// message has expired the history record is deleted rather than left as
// an empty list.
func (s *Store) Sweep(contactID string, now time.Time) error {
	ttl, err := s.TTL(contactID)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}

	return s.engine.Update(historyKey(contactID), func(current []byte, ok bool) ([]byte, error) {
		if !ok {
			return nil, nil
		}
		history, err := decodeHistory(current, ok)
		if err != nil {
			return nil, err
		}

		kept := Retain(history, ttl, now)
		if len(kept) == len(history) {
			return current, nil
		}

		logrus.WithFields(logrus.Fields{
			"function": "Sweep",
			"ghost_id": contactID,
			"removed":  len(history) - len(kept),
		}).Debug("Swept expired messages")

		if len(kept) == 0 {
			return nil, nil
		}
		return json.Marshal(kept)
	})
}

// SweepAll sweeps every conversation with a configured TTL.
func (s *Store) SweepAll(now time.Time) error {
	keys, err := s.engine.Keys(ttlPrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		contactID := strings.TrimPrefix(key, ttlPrefix)
		if err := s.Sweep(contactID, now); err != nil {
			return err
		}
	}
	return nil
}

// Forget removes every record tied to a conversation: history,
// last-read position, and TTL setting. Used when a contact is deleted.
func (s *Store) Forget(contactID string) error {
	if err := s.DeleteConversation(contactID); err != nil {
		return err
	}
	if err := s.engine.Delete(lastReadPrefix + contactID); err != nil {
		return err
	}
	return s.engine.Delete(ttlPrefix + contactID)
}
