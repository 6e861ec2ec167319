package storage

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
	"github.com/atvirokodosprendimai/clientvault/internal/core/ports"
	"github.com/google/uuid"
)

const (
	rawArchiveName   = "archive.zip"
	extractedDirName = "files"
	batchAttempts    = 5

	// ExpansionFactor scales the upload limit into the most bytes one
	// archive may expand to.
	ExpansionFactor         = 8
	DefaultMaxExpandedBytes = ExpansionFactor * (512 << 20)
)

var drivePrefix = regexp.MustCompile(`^[A-Za-z]:`)

// Stager expands uploaded archives into per-client batch folders:
//
//	<root>/uploads/archives/<clientId>/<yyyyMMddHHmmss>-<8 hex>/files/...
type Stager struct {
	root        PublicRoot
	maxExpanded int64
	now         func() time.Time
}

// NewStager stages under root. maxExpanded caps the total uncompressed size
// of one archive; zero or less means DefaultMaxExpandedBytes.
func NewStager(root PublicRoot, maxExpanded int64) *Stager {
	if maxExpanded <= 0 {
		maxExpanded = DefaultMaxExpandedBytes
	}
	return &Stager{root: root, maxExpanded: maxExpanded, now: func() time.Time { return time.Now().UTC() }}
}

// Inspect parses the archive directory from the upload without touching the
// filesystem. Entries that would land outside the extraction folder are
// rejected here as well, and so are archives whose declared sizes exceed the
// expansion limit.
func (s *Stager) Inspect(upload ports.ArchiveUpload) error {
	if upload.Content == nil || upload.Size <= 0 {
		return domain.ErrEmptyPayload
	}
	zr, err := zip.NewReader(upload.Content, upload.Size)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArchive, err)
	}
	var declared uint64
	for _, f := range zr.File {
		if _, err := entryPath(f.Name); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidArchive, err)
		}
		declared += f.UncompressedSize64
		if declared > uint64(s.maxExpanded) {
			return fmt.Errorf("%w: archive expands beyond %d bytes", domain.ErrCorruptArchive, s.maxExpanded)
		}
	}
	return nil
}

// Stage writes the archive into a new batch folder, expands it into files/
// and removes the raw copy. Once the batch folder exists its id is returned
// even on failure so the caller can report it.
func (s *Stager) Stage(ctx context.Context, clientID string, upload ports.ArchiveUpload) (string, []ports.StagedFile, error) {
	if err := domain.ValidateClientID(clientID); err != nil {
		return "", nil, err
	}

	clientDir := s.root.Path(uploadsDir, archivesDir, clientID)
	if err := os.MkdirAll(clientDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create client archive dir: %w", err)
	}

	batchID, batchDir, err := s.createBatchDir(clientDir)
	if err != nil {
		return "", nil, err
	}

	rawPath := filepath.Join(batchDir, rawArchiveName)
	if err := writeRawArchive(ctx, rawPath, upload); err != nil {
		return batchID, nil, err
	}

	filesDir := filepath.Join(batchDir, extractedDirName)
	if err := extract(ctx, rawPath, filesDir, &expandBudget{limit: s.maxExpanded, left: s.maxExpanded}); err != nil {
		return batchID, nil, err
	}

	if err := os.Remove(rawPath); err != nil {
		return batchID, nil, fmt.Errorf("remove raw archive: %w", err)
	}

	staged, err := s.collect(ctx, filesDir)
	if err != nil {
		return batchID, nil, err
	}
	return batchID, staged, nil
}

func (s *Stager) createBatchDir(clientDir string) (string, string, error) {
	stamp := s.now().UTC().Format("20060102150405")
	for i := 0; i < batchAttempts; i++ {
		batchID := stamp + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		dir := filepath.Join(clientDir, batchID)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return batchID, dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", fmt.Errorf("create batch dir: %w", err)
		}
	}
	return "", "", fmt.Errorf("create batch dir: no free name after %d attempts", batchAttempts)
}

func writeRawArchive(ctx context.Context, dst string, upload ports.ArchiveUpload) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create raw archive: %w", err)
	}
	if _, err := copyContext(ctx, out, io.NewSectionReader(upload.Content, 0, upload.Size)); err != nil {
		_ = out.Close()
		return fmt.Errorf("write raw archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close raw archive: %w", err)
	}
	return nil
}

// expandBudget tracks bytes written across all entries of one archive.
// Declared sizes are not trusted.
type expandBudget struct {
	limit int64
	left  int64
}

func extract(ctx context.Context, archivePath, filesDir string, budget *expandBudget) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCorruptArchive, err)
	}
	defer zr.Close()

	if err := os.Mkdir(filesDir, 0o755); err != nil {
		return fmt.Errorf("create files dir: %w", err)
	}

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("extract aborted: %w", err)
		}
		if err := extractEntry(ctx, f, filesDir, budget); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(ctx context.Context, f *zip.File, filesDir string, budget *expandBudget) error {
	rel, err := entryPath(f.Name)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCorruptArchive, err)
	}
	target := filepath.Join(filesDir, rel)

	mode := f.Mode()
	if mode.IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", rel, err)
		}
		return nil
	}
	// symlinks and devices carry no file content worth registering
	if !mode.IsRegular() {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", rel, err)
	}
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", domain.ErrCorruptArchive, f.Name, err)
	}
	defer src.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", rel, err)
	}
	n, err := copyContext(ctx, out, io.LimitReader(src, budget.left+1))
	budget.left -= n
	if err != nil {
		_ = out.Close()
		if ctx.Err() != nil {
			return fmt.Errorf("extract aborted: %w", err)
		}
		return fmt.Errorf("%w: read %s: %v", domain.ErrCorruptArchive, f.Name, err)
	}
	if budget.left < 0 {
		_ = out.Close()
		return fmt.Errorf("%w: archive expands beyond %d bytes", domain.ErrCorruptArchive, budget.limit)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", rel, err)
	}
	return nil
}

// entryPath turns a zip entry name into a relative OS path that stays inside
// the extraction folder.
func entryPath(name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if name == "" || strings.HasPrefix(name, "/") || drivePrefix.MatchString(name) {
		return "", fmt.Errorf("illegal entry name %q", name)
	}
	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("illegal entry name %q", name)
	}
	return filepath.FromSlash(cleaned), nil
}

func (s *Stager) collect(ctx context.Context, filesDir string) ([]ports.StagedFile, error) {
	var paths []string
	err := filepath.WalkDir(filesDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Type().IsRegular() {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk batch files: %w", err)
	}
	sort.Strings(paths)

	staged := make([]ports.StagedFile, 0, len(paths))
	for _, p := range paths {
		url, err := s.root.URL(p)
		if err != nil {
			return nil, err
		}
		staged = append(staged, ports.StagedFile{Name: filepath.Base(p), StorageURL: url})
	}
	return staged, nil
}

var _ ports.ArchiveStager = (*Stager)(nil)
