// Package protocol decodes decrypted payloads into chat content,
// control signals, and media, and routes them to the trust store and
// message store.
//
// Control signals are a small closed enumeration carried as prefixed
// plaintext inside the envelope. Anything without a recognized prefix
// is an ordinary chat message.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ghostmsg/ghostcore/contact"
	"github.com/ghostmsg/ghostcore/crypto"
)

// Kind classifies a decrypted payload.
type Kind int

const (
	KindChat Kind = iota
	KindHandshakeAccept
	KindProfileUpdate
	KindDelete
	KindReadReceipt
	KindScreenshot
	KindMedia
)

func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindHandshakeAccept:
		return "handshake-accept"
	case KindProfileUpdate:
		return "profile-update"
	case KindDelete:
		return "delete"
	case KindReadReceipt:
		return "read-receipt"
	case KindScreenshot:
		return "screenshot"
	case KindMedia:
		return "media"
	default:
		return "unknown"
	}
}

// Signal prefixes. The delete and screenshot signals carry no payload.
const (
	prefixHandshakeAccept = "GHOST:HSK:"
	prefixProfileUpdate   = "GHOST:PRF:"
	prefixReadReceipt     = "GHOST:RRC:"
	prefixMedia           = "GHOST:MED:"
	prefixDelete          = "GHOST:DEL"
	prefixScreenshot      = "GHOST:SSN"
)

// Classify splits a decrypted payload into its kind and the signal
// payload (empty for chat and the bare signals).
func Classify(plaintext []byte) (Kind, []byte) {
	switch {
	case bytes.HasPrefix(plaintext, []byte(prefixHandshakeAccept)):
		return KindHandshakeAccept, plaintext[len(prefixHandshakeAccept):]
	case bytes.HasPrefix(plaintext, []byte(prefixProfileUpdate)):
		return KindProfileUpdate, plaintext[len(prefixProfileUpdate):]
	case bytes.HasPrefix(plaintext, []byte(prefixReadReceipt)):
		return KindReadReceipt, plaintext[len(prefixReadReceipt):]
	case bytes.HasPrefix(plaintext, []byte(prefixMedia)):
		return KindMedia, plaintext[len(prefixMedia):]
	case bytes.Equal(plaintext, []byte(prefixDelete)):
		return KindDelete, nil
	case bytes.Equal(plaintext, []byte(prefixScreenshot)):
		return KindScreenshot, nil
	default:
		return KindChat, nil
	}
}

// ProfileUpdate is the payload of a profile-update signal.
type ProfileUpdate struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// ReadReceipt marks every message sent at or before UpTo as read.
type ReadReceipt struct {
	UpTo int64 `json:"upTo"` // unix milliseconds
}

// EncodeHandshakeAccept builds the control payload sent when accepting
// a contact request.
func EncodeHandshakeAccept(p contact.AddPayload) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return append([]byte(prefixHandshakeAccept), body...), nil
}

// EncodeProfileUpdate builds a profile-update signal.
func EncodeProfileUpdate(p ProfileUpdate) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return append([]byte(prefixProfileUpdate), body...), nil
}

// EncodeReadReceipt builds a read-receipt signal.
func EncodeReadReceipt(r ReadReceipt) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append([]byte(prefixReadReceipt), body...), nil
}

// EncodeDelete builds the bare delete signal.
func EncodeDelete() []byte { return []byte(prefixDelete) }

// EncodeScreenshot builds the bare screenshot-notice signal.
func EncodeScreenshot() []byte { return []byte(prefixScreenshot) }

// ParseHandshake validates a handshake payload against the envelope's
// sender key. The payload must restate the key the envelope was opened
// with; otherwise an attacker could supply one key for decryption while
// claiming another identity inside the plaintext.
func ParseHandshake(payload []byte, senderPK [32]byte) (*contact.AddPayload, error) {
	p, err := contact.ParseAddPayload(payload)
	if err != nil {
		return nil, err
	}

	restated, err := contactKey(p.Key)
	if err != nil {
		return nil, err
	}
	if restated != senderPK {
		return nil, errors.New("handshake payload key does not match envelope sender key")
	}
	return p, nil
}

func contactKey(hexKey string) ([32]byte, error) {
	c := contact.Contact{Key: hexKey}
	return c.PublicKey()
}

// EncodeSelfHandshake builds the handshake payload describing our own
// identity, for contact requests and accepts.
func EncodeSelfHandshake(keys *crypto.KeyPair, id, name, avatar string) (contact.AddPayload, error) {
	p := contact.AddPayload{
		ID:     id,
		Key:    fmt.Sprintf("%x", keys.Public[:]),
		Name:   name,
		Avatar: avatar,
	}
	if err := p.Validate(); err != nil {
		return contact.AddPayload{}, err
	}
	return p, nil
}
