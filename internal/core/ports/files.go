package ports

import (
	"context"
	"io"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
)

// IngestedFileRepository registers a whole batch in one commit, together with
// its outbox event.
type IngestedFileRepository interface {
	RegisterBatch(ctx context.Context, batchID string, files []domain.IngestedFile, meta domain.MutationMetadata) ([]domain.IngestedFile, error)
	ListByClient(ctx context.Context, clientID string) ([]domain.IngestedFile, error)
}

// ArchiveUpload is an uploaded archive that can be read at random offsets,
// which lets the format be checked before anything touches the disk.
type ArchiveUpload struct {
	FileName string
	Size     int64
	Content  io.ReaderAt
}

// StagedFile is a regular file found in an expanded batch.
type StagedFile struct {
	Name       string
	StorageURL string
}

// ArchiveStager owns the filesystem side of bulk ingestion.
type ArchiveStager interface {
	// Inspect checks the archive structure without mutating the filesystem.
	Inspect(upload ArchiveUpload) error
	// Stage writes the raw archive into a fresh batch folder for the client,
	// expands it and removes the raw copy. It returns the batch id and the
	// regular files of the expanded tree.
	Stage(ctx context.Context, clientID string, upload ArchiveUpload) (string, []StagedFile, error)
}

// PhotoStore persists client photos and returns their public URLs.
type PhotoStore interface {
	SavePhoto(ctx context.Context, clientID, slot, originalName string, content io.Reader) (string, error)
}
