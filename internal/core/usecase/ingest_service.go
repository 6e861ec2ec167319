package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
	"github.com/atvirokodosprendimai/clientvault/internal/core/ports"
)

const archiveExtension = ".zip"

// IngestService expands uploaded archives into per-client batches and
// registers every extracted file.
type IngestService struct {
	clients ports.ClientRepository
	files   ports.IngestedFileRepository
	stager  ports.ArchiveStager
	logger  *slog.Logger
	now     func() time.Time
}

func NewIngestService(clients ports.ClientRepository, files ports.IngestedFileRepository, stager ports.ArchiveStager, logger *slog.Logger) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{
		clients: clients,
		files:   files,
		stager:  stager,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Ingest validates the request, stages the archive and registers the batch.
// Every precondition is checked before the filesystem is touched.
func (s *IngestService) Ingest(ctx context.Context, clientID string, upload ports.ArchiveUpload, meta domain.MutationMetadata) (domain.IngestResult, error) {
	if err := domain.ValidateClientID(clientID); err != nil {
		verr := &domain.ValidationError{}
		verr.Add("clientId", "must be a valid client id")
		return domain.IngestResult{}, verr
	}

	exists, err := s.clients.Exists(ctx, clientID)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("check client: %w", err)
	}
	if !exists {
		return domain.IngestResult{}, fmt.Errorf("client %s: %w", clientID, domain.ErrNotFound)
	}

	if upload.Content == nil || upload.Size <= 0 {
		return domain.IngestResult{}, domain.ErrEmptyPayload
	}
	if !strings.EqualFold(filepath.Ext(upload.FileName), archiveExtension) {
		return domain.IngestResult{}, domain.ErrInvalidArchive
	}
	if err := s.stager.Inspect(upload); err != nil {
		return domain.IngestResult{}, err
	}

	batchID, staged, err := s.stager.Stage(ctx, clientID, upload)
	if err != nil {
		if batchID != "" {
			s.logger.Warn("archive staging failed, batch left for diagnostics",
				"client_id", clientID,
				"batch_id", batchID,
				"error", err,
			)
		}
		return domain.IngestResult{}, err
	}

	uploadedAt := s.now()
	pending := make([]domain.IngestedFile, 0, len(staged))
	for _, f := range staged {
		pending = append(pending, domain.IngestedFile{
			OwnerClientID: clientID,
			FileName:      f.Name,
			StorageURL:    f.StorageURL,
			UploadedAt:    uploadedAt,
		})
	}

	if err := ctx.Err(); err != nil {
		return domain.IngestResult{}, fmt.Errorf("ingest aborted: %w", err)
	}

	meta.OccurredAt = uploadedAt
	registered, err := s.files.RegisterBatch(ctx, batchID, pending, meta)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("register batch %s: %w", batchID, err)
	}

	s.logger.Info("archive ingested",
		"client_id", clientID,
		"batch_id", batchID,
		"files", len(registered),
	)
	return domain.IngestResult{OwnerClientID: clientID, BatchID: batchID, Files: registered}, nil
}

func (s *IngestService) ListByClient(ctx context.Context, clientID string) ([]domain.IngestedFile, error) {
	if err := domain.ValidateClientID(clientID); err != nil {
		return []domain.IngestedFile{}, nil
	}
	return s.files.ListByClient(ctx, clientID)
}
