package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/clientvault/internal/adapters/gormdb"
	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type accessKeyModel struct {
	Name      string     `gorm:"column:name;primaryKey"`
	Digest    string     `gorm:"column:digest;not null;uniqueIndex"`
	Active    bool       `gorm:"column:active;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;not null"`
	RotatedAt *time.Time `gorm:"column:rotated_at"`
}

func (accessKeyModel) TableName() string {
	return "log_access_keys"
}

// AccessKeyRepository stores one secret digest per key name.
type AccessKeyRepository struct {
	db *gormdb.DB
}

func NewAccessKeyRepository(db *gormdb.DB) *AccessKeyRepository {
	return &AccessKeyRepository{db: db}
}

func (r *AccessKeyRepository) FindByDigest(ctx context.Context, digest string) (domain.AccessKey, error) {
	var model accessKeyModel
	err := r.db.ReadTX(ctx, func(tx *gormdb.Tx) error {
		return tx.Where("digest = ?", digest).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AccessKey{}, domain.ErrNotFound
		}
		return domain.AccessKey{}, fmt.Errorf("find access key: %w", err)
	}
	return domain.AccessKey{
		Name:      model.Name,
		Digest:    model.Digest,
		Active:    model.Active,
		CreatedAt: model.CreatedAt,
		RotatedAt: model.RotatedAt,
	}, nil
}

// Save inserts the key, or replaces the digest of an existing name and
// stamps rotated_at. A digest already held by another name is a conflict.
func (r *AccessKeyRepository) Save(ctx context.Context, key domain.AccessKey) error {
	createdAt := key.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	model := accessKeyModel{
		Name:      key.Name,
		Digest:    key.Digest,
		Active:    key.Active,
		CreatedAt: createdAt.UTC(),
	}

	err := r.db.WriteTX(ctx, func(tx *gormdb.Tx) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]any{
				"digest":     model.Digest,
				"active":     model.Active,
				"rotated_at": model.CreatedAt,
			}),
		}).Create(&model).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("access key %s: %w", key.Name, domain.ErrConflict)
		}
		return fmt.Errorf("save access key: %w", err)
	}
	return nil
}
