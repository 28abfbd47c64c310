package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// TempStore writes submitted audio under a single directory with generated
// names. Generated base names are unique, which the polling match against the
// remote listing relies on.
type TempStore struct {
	dir string
}

// NewTempStore ensures dir exists and returns a store rooted there.
func NewTempStore(dir string) (*TempStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir %s: %w", dir, err)
	}
	return &TempStore{dir: dir}, nil
}

// Write stores the reader's bytes as a new file named by a fresh UUID plus
// the extension hint, and returns the file path.
func (t *TempStore) Write(r io.Reader, ext string) (string, error) {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	name := uuid.New().String()
	if ext != "" {
		name += "." + ext
	}
	path := filepath.Join(t.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create temp audio: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write temp audio: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close temp audio: %w", err)
	}
	return path, nil
}

// Remove deletes the file at path. Removing a missing file is not an error.
func (t *TempStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp audio %s: %w", path, err)
	}
	return nil
}
