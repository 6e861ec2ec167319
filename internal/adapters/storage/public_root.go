// Package storage owns everything the service writes under its public root:
// client photos and expanded archive batches.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrOutsideRoot = errors.New("path is outside the public root")

// PublicRoot maps filesystem paths under a served directory to the URLs
// clients use to fetch them.
type PublicRoot struct {
	dir string
}

func NewPublicRoot(dir string) (PublicRoot, error) {
	if strings.TrimSpace(dir) == "" {
		return PublicRoot{}, errors.New("public root is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return PublicRoot{}, fmt.Errorf("resolve public root: %w", err)
	}
	return PublicRoot{dir: abs}, nil
}

func (p PublicRoot) Dir() string {
	return p.dir
}

// Path joins elem under the root.
func (p PublicRoot) Path(elem ...string) string {
	return filepath.Join(append([]string{p.dir}, elem...)...)
}

// URL returns the root-relative URL of path, always with forward slashes and
// a leading "/". Paths that resolve outside the root are rejected.
func (p PublicRoot) URL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	rel, err := filepath.Rel(p.dir, abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	if rel == "." {
		return "/", nil
	}
	return "/" + filepath.ToSlash(rel), nil
}

// EnsureLayout creates the upload folders served under /uploads.
func (p PublicRoot) EnsureLayout() error {
	for _, dir := range []string{p.Path(uploadsDir, clientsDir), p.Path(uploadsDir, archivesDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

const (
	uploadsDir  = "uploads"
	clientsDir  = "clients"
	archivesDir = "archives"
)
