package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/marl/pkg/core"
)

// TokenFile stores the service credential as a single file readable only
// by the owner.
type TokenFile struct {
	Path string
}

var _ core.TokenVault = (*TokenFile)(nil)

// NewTokenFile prepares a credential file at the given path.
func NewTokenFile(path string) *TokenFile {
	return &TokenFile{Path: path}
}

// LoadToken returns the stored credential, or core.ErrNoToken if none is
// stored.
func (t *TokenFile) LoadToken() (string, error) {
	data, err := os.ReadFile(t.Path)
	if os.IsNotExist(err) {
		return "", core.ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", core.ErrNoToken
	}
	return token, nil
}

// StoreToken writes the credential with owner-only permissions.
func (t *TokenFile) StoreToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(t.Path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := writeFileAtomic(t.Path, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// ClearToken removes the credential. Clearing an empty vault is not an
// error.
func (t *TokenFile) ClearToken() error {
	err := os.Remove(t.Path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}
