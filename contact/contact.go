package contact

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Contact is one entry in the trust store.
type Contact struct {
	ID              string `json:"id"`
	Key             string `json:"key"` // hex-encoded box public key
	Name            string `json:"name"`
	Alias           string `json:"alias,omitempty"`
	Avatar          string `json:"avatar,omitempty"`
	IsSelf          bool   `json:"isSelf,omitempty"`
	IsBlocked       bool   `json:"isBlocked,omitempty"`
	IsVerified      bool   `json:"isVerified,omitempty"`
	SecurityWarning bool   `json:"securityWarning,omitempty"`
	PendingNewKey   string `json:"pendingNewKey,omitempty"`
	LastSeen        int64  `json:"lastSeen,omitempty"` // unix ms, from presence polls
	IsOnline        bool   `json:"-"`                  // runtime only
}

// PublicKey decodes the trusted key.
func (c *Contact) PublicKey() ([32]byte, error) {
	return decodeKey(c.Key)
}

// DisplayName returns the local alias when set, otherwise the
// peer-provided name.
func (c *Contact) DisplayName() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Name
}

func decodeKey(s string) ([32]byte, error) {
	var key [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("invalid key encoding: %w", err)
	}
	if len(raw) != 32 {
		return key, errors.New("invalid key length")
	}
	copy(key[:], raw)
	return key, nil
}
