package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/clientvault/internal/adapters/gormdb"
	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
	"gorm.io/gorm"
)

type clientModel struct {
	CI        string    `gorm:"column:ci;primaryKey"`
	Names     string    `gorm:"column:names;not null"`
	Address   string    `gorm:"column:address;not null"`
	Phone     string    `gorm:"column:phone;not null"`
	Photo1URL *string   `gorm:"column:photo1_url"`
	Photo2URL *string   `gorm:"column:photo2_url"`
	Photo3URL *string   `gorm:"column:photo3_url"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (clientModel) TableName() string {
	return "clients"
}

type ClientRepository struct {
	db *gormdb.DB
}

func NewClientRepository(db *gormdb.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.ReadTX(ctx, func(tx *gormdb.Tx) error {
		return tx.Model(&clientModel{}).Where("ci = ?", id).Count(&count).Error
	})
	if err != nil {
		return false, fmt.Errorf("check client exists: %w", err)
	}
	return count > 0, nil
}

func (r *ClientRepository) Create(ctx context.Context, c domain.Client) (domain.Client, error) {
	now := time.Now().UTC()
	model := toClientModel(c)
	model.CreatedAt = now
	model.UpdatedAt = now

	err := r.db.WriteTX(ctx, func(tx *gormdb.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Client{}, fmt.Errorf("client %s already exists: %w", c.ID, domain.ErrConflict)
		}
		return domain.Client{}, fmt.Errorf("insert client: %w", err)
	}
	return toClientDomain(model), nil
}

func (r *ClientRepository) Get(ctx context.Context, id string) (domain.Client, error) {
	var model clientModel
	err := r.db.ReadTX(ctx, func(tx *gormdb.Tx) error {
		return tx.Where("ci = ?", id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Client{}, domain.ErrNotFound
		}
		return domain.Client{}, fmt.Errorf("get client: %w", err)
	}
	return toClientDomain(model), nil
}

func (r *ClientRepository) List(ctx context.Context) ([]domain.Client, error) {
	var models []clientModel
	err := r.db.ReadTX(ctx, func(tx *gormdb.Tx) error {
		return tx.Order("names ASC").Order("ci ASC").Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}

	clients := make([]domain.Client, 0, len(models))
	for _, m := range models {
		clients = append(clients, toClientDomain(m))
	}
	return clients, nil
}

func (r *ClientRepository) Update(ctx context.Context, id string, fn func(domain.Client) domain.Client) (domain.Client, error) {
	var out domain.Client
	err := r.db.WriteTX(ctx, func(tx *gormdb.Tx) error {
		var existing clientModel
		if err := tx.Where("ci = ?", id).First(&existing).Error; err != nil {
			return err
		}

		updated := toClientModel(fn(toClientDomain(existing)))
		updated.CI = existing.CI
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = time.Now().UTC()
		if err := tx.Save(&updated).Error; err != nil {
			return fmt.Errorf("save client: %w", err)
		}
		out = toClientDomain(updated)
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Client{}, domain.ErrNotFound
		}
		return domain.Client{}, fmt.Errorf("update client: %w", err)
	}
	return out, nil
}

func (r *ClientRepository) Delete(ctx context.Context, id string) (bool, error) {
	var affected int64
	err := r.db.WriteTX(ctx, func(tx *gormdb.Tx) error {
		res := tx.Where("ci = ?", id).Delete(&clientModel{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("delete client: %w", err)
	}
	return affected > 0, nil
}

func toClientModel(c domain.Client) clientModel {
	return clientModel{
		CI:        c.ID,
		Names:     c.Names,
		Address:   c.Address,
		Phone:     c.Phone,
		Photo1URL: c.Photo1URL,
		Photo2URL: c.Photo2URL,
		Photo3URL: c.Photo3URL,
	}
}

func toClientDomain(m clientModel) domain.Client {
	return domain.Client{
		ID:        m.CI,
		Names:     m.Names,
		Address:   m.Address,
		Phone:     m.Phone,
		Photo1URL: m.Photo1URL,
		Photo2URL: m.Photo2URL,
		Photo3URL: m.Photo3URL,
	}
}
