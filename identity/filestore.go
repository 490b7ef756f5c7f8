package identity

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps the secret key in a file with owner-only permissions.
// On platforms with a system keyring the SecretStore interface is the
// seam to swap this out.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the stored secret key, reporting absence without error.
func (f *FileStore) Load() ([]byte, bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read secret key file: %w", err)
	}
	return data, true, nil
}

// Save writes the secret key with 0600 permissions, creating parent
// directories as needed.
func (f *FileStore) Save(secret []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(f.path, secret, 0o600); err != nil {
		return fmt.Errorf("failed to write secret key file: %w", err)
	}
	return nil
}

// Delete removes the secret key file. A missing file is not an error.
func (f *FileStore) Delete() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove secret key file: %w", err)
	}
	return nil
}

var _ SecretStore = (*FileStore)(nil)
