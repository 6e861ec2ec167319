package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/clientvault/internal/adapters/gormdb"
	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
	"github.com/google/uuid"
)

type ingestedFileModel struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ClientID   string    `gorm:"column:client_id;not null"`
	BatchID    string    `gorm:"column:batch_id;not null"`
	FileName   string    `gorm:"column:file_name;not null"`
	StorageURL string    `gorm:"column:storage_url;not null"`
	UploadedAt time.Time `gorm:"column:uploaded_at;not null"`
}

func (ingestedFileModel) TableName() string {
	return "ingested_files"
}

type IngestedFileRepository struct {
	db *gormdb.DB
}

func NewIngestedFileRepository(db *gormdb.DB) *IngestedFileRepository {
	return &IngestedFileRepository{db: db}
}

// RegisterBatch inserts every file of a batch and its archive.ingested event
// in one transaction. Either all rows commit or none do.
func (r *IngestedFileRepository) RegisterBatch(ctx context.Context, batchID string, files []domain.IngestedFile, meta domain.MutationMetadata) ([]domain.IngestedFile, error) {
	if len(files) == 0 {
		return []domain.IngestedFile{}, nil
	}
	meta = meta.Normalize()

	models := make([]ingestedFileModel, 0, len(files))
	for _, f := range files {
		uploadedAt := f.UploadedAt
		if uploadedAt.IsZero() {
			uploadedAt = meta.OccurredAt
		}
		models = append(models, ingestedFileModel{
			ClientID:   f.OwnerClientID,
			BatchID:    batchID,
			FileName:   f.FileName,
			StorageURL: f.StorageURL,
			UploadedAt: uploadedAt.UTC(),
		})
	}

	err := r.db.WriteTX(ctx, func(tx *gormdb.Tx) error {
		if err := tx.Create(&models).Error; err != nil {
			return fmt.Errorf("insert ingested files: %w", err)
		}
		return appendArchiveIngested(tx, batchID, models, meta)
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.IngestedFile, 0, len(models))
	for _, m := range models {
		out = append(out, toIngestedFileDomain(m))
	}
	return out, nil
}

func (r *IngestedFileRepository) ListByClient(ctx context.Context, clientID string) ([]domain.IngestedFile, error) {
	var models []ingestedFileModel
	err := r.db.ReadTX(ctx, func(tx *gormdb.Tx) error {
		return tx.Where("client_id = ?", clientID).
			Order("uploaded_at DESC").
			Order("id DESC").
			Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list ingested files: %w", err)
	}

	out := make([]domain.IngestedFile, 0, len(models))
	for _, m := range models {
		out = append(out, toIngestedFileDomain(m))
	}
	return out, nil
}

func appendArchiveIngested(tx *gormdb.Tx, batchID string, models []ingestedFileModel, meta domain.MutationMetadata) error {
	files := make([]domain.IngestedFile, 0, len(models))
	for _, m := range models {
		files = append(files, toIngestedFileDomain(m))
	}
	envelope, err := domain.NewArchiveIngestedEnvelope(uuid.NewString(), batchID, files, meta)
	if err != nil {
		return err
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode event envelope: %w", err)
	}

	outbox := outboxEventModel{
		EventID:       envelope.EventID,
		Topic:         domain.OutboxTopic(envelope.EventType),
		PayloadJSON:   string(body),
		Status:        outboxStatusPending,
		NextAttemptAt: envelope.OccurredAt,
		CreatedAt:     envelope.OccurredAt,
	}
	if err := tx.Create(&outbox).Error; err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func toIngestedFileDomain(m ingestedFileModel) domain.IngestedFile {
	return domain.IngestedFile{
		ID:            m.ID,
		OwnerClientID: m.ClientID,
		FileName:      m.FileName,
		StorageURL:    m.StorageURL,
		UploadedAt:    m.UploadedAt,
	}
}
