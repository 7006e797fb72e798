package tokenstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	portal "github.com/goliatone/go-auth-portal"
)

// FileName is the name of the token file inside the storage directory.
const FileName = "session.token"

// File keeps the token in a single file readable only by the owner.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a storage rooted at dir. The directory is created on the
// first Set.
func NewFile(dir string) *File {
	return &File{path: filepath.Join(dir, FileName)}
}

// DefaultDir is the per user directory used by the CLI.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "go-auth-portal"), nil
}

// Path returns the token file location.
func (f *File) Path() string {
	return f.path
}

func (f *File) Get() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", false
	}
	token := strings.TrimSpace(string(data))
	return token, token != ""
}

func (f *File) Set(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace token: %w", err)
	}
	return nil
}

func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

var _ portal.TokenStorage = (*File)(nil)
