// Package messaging defines the message model and the per-conversation
// history store.
//
// Histories are whole-record blobs in the secure storage engine, one
// per contact, ordered newest-first. Messages are immutable after
// creation except for two sanctioned mutations: the sent -> read status
// transition driven by read receipts, and deletion by the ephemeral
// retention sweep.
package messaging

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Status is the delivery state of an outgoing message.
type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusRead    Status = "read"
)

// Message is one entry in a conversation history.
type Message struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	IsMe      bool   `json:"isMe"`
	Status    Status `json:"status,omitempty"`
	LocalURI  string `json:"localUri,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	System    bool   `json:"system,omitempty"` // synthetic notices, e.g. screenshot alerts
}

// NewID builds a time-plus-random composite message ID. The time prefix
// keeps IDs roughly monotonic; the random suffix makes them unique
// within a conversation even at the same millisecond.
func NewID(now time.Time) string {
	var r [4]byte
	_, _ = rand.Read(r[:])
	return fmt.Sprintf("%d-%s", now.UnixMilli(), hex.EncodeToString(r[:]))
}

// Expired reports whether the message has outlived ttlSeconds at now.
func (m *Message) Expired(ttlSeconds int64, now time.Time) bool {
	return now.UnixMilli()-m.Timestamp >= ttlSeconds*1000
}

// Retain filters a history down to the messages still inside the TTL
// window. The input order is preserved.
func Retain(history []Message, ttlSeconds int64, now time.Time) []Message {
	kept := make([]Message, 0, len(history))
	for _, m := range history {
		if !m.Expired(ttlSeconds, now) {
			kept = append(kept, m)
		}
	}
	return kept
}
