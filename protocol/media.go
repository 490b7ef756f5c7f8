package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// MaxMediaBytes bounds decoded inline media. Together with base64
// expansion this keeps a media envelope inside the 1MB plaintext bound.
const MaxMediaBytes = 512 * 1024

// allowedMediaTypes is the inbound media allow-list. Anything else is
// dropped before touching disk.
var allowedMediaTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var (
	// ErrMediaType is returned for types outside the allow-list.
	ErrMediaType = errors.New("media type not allowed")

	// ErrMediaTooLarge is returned when the decoded payload exceeds
	// MaxMediaBytes.
	ErrMediaTooLarge = errors.New("media payload too large")
)

// MediaPayload is the payload of a media signal: a type tag, the inline
// base64 bytes, and an optional caption.
type MediaPayload struct {
	Type    string `json:"type"`
	Data    string `json:"data"`
	Caption string `json:"caption,omitempty"`
}

// EncodeMedia builds a media signal from raw bytes.
func EncodeMedia(mediaType string, data []byte, caption string) ([]byte, error) {
	if _, ok := allowedMediaTypes[mediaType]; !ok {
		return nil, ErrMediaType
	}
	if len(data) > MaxMediaBytes {
		return nil, ErrMediaTooLarge
	}

	body, err := json.Marshal(MediaPayload{
		Type:    mediaType,
		Data:    base64.StdEncoding.EncodeToString(data),
		Caption: caption,
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(prefixMedia), body...), nil
}

// decodeMedia validates a media payload against the allow-list and size
// bound and returns the raw bytes.
func decodeMedia(payload []byte) (*MediaPayload, []byte, error) {
	var p MediaPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, nil, fmt.Errorf("invalid media payload: %w", err)
	}
	if _, ok := allowedMediaTypes[p.Type]; !ok {
		return nil, nil, ErrMediaType
	}

	data, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid media encoding: %w", err)
	}
	if len(data) > MaxMediaBytes {
		return nil, nil, ErrMediaTooLarge
	}
	return &p, data, nil
}

// saveMedia writes validated media bytes to the local media directory
// and returns the file path referenced by the stored message.
func saveMedia(dir, mediaType string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}

	name := uuid.NewString() + allowedMediaTypes[mediaType]
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	return path, nil
}
