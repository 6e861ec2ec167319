package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
	"github.com/atvirokodosprendimai/clientvault/internal/core/ports"
)

// PhotoStore writes client photos to uploads/clients/<ci>/<slot>_<stamp><ext>.
type PhotoStore struct {
	root PublicRoot
	now  func() time.Time
}

func NewPhotoStore(root PublicRoot) *PhotoStore {
	return &PhotoStore{root: root, now: func() time.Time { return time.Now().UTC() }}
}

func (s *PhotoStore) SavePhoto(ctx context.Context, clientID, slot, originalName string, content io.Reader) (string, error) {
	if err := domain.ValidateClientID(clientID); err != nil {
		return "", err
	}
	dir := s.root.Path(uploadsDir, clientsDir, clientID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create photo dir: %w", err)
	}

	stamp := strings.Replace(s.now().UTC().Format("20060102150405.000"), ".", "", 1)
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	target := filepath.Join(dir, slot+"_"+stamp+ext)

	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create photo: %w", err)
	}
	if _, err := copyContext(ctx, out, content); err != nil {
		_ = out.Close()
		_ = os.Remove(target)
		return "", fmt.Errorf("write photo: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close photo: %w", err)
	}
	return s.root.URL(target)
}

var _ ports.PhotoStore = (*PhotoStore)(nil)
