package contact

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ghostmsg/ghostcore/crypto"
)

// MaxNameLength bounds peer-provided display names.
const MaxNameLength = 50

// AddPayload is the QR / manual-add exchange format. It is validated
// strictly before any field is used.
type AddPayload struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// ParseAddPayload decodes and validates a QR or manual-add payload.
func ParseAddPayload(data []byte) (*AddPayload, error) {
	var p AddPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid add payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks every field against the exchange schema.
func (p *AddPayload) Validate() error {
	if err := crypto.ValidateID(p.ID); err != nil {
		return fmt.Errorf("invalid contact ID: %w", err)
	}
	if _, err := decodeKey(p.Key); err != nil {
		return fmt.Errorf("invalid contact key: %w", err)
	}
	if len(p.Name) > MaxNameLength {
		return errors.New("contact name too long")
	}
	if p.Avatar != "" && !strings.HasPrefix(p.Avatar, "data:") {
		return errors.New("avatar must be a data URI")
	}
	return nil
}

// Contact converts a validated payload into a trust store entry.
func (p *AddPayload) Contact() Contact {
	return Contact{
		ID:     p.ID,
		Key:    p.Key,
		Name:   p.Name,
		Avatar: p.Avatar,
	}
}
