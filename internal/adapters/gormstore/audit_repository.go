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

type auditRecordModel struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	LoggedAt      time.Time `gorm:"column:logged_at;not null"`
	Kind          string    `gorm:"column:kind;not null"`
	EndpointURL   string    `gorm:"column:endpoint_url;not null"`
	HTTPMethod    string    `gorm:"column:http_method;not null"`
	RemoteAddress string    `gorm:"column:remote_address;not null"`
	RequestBody   string    `gorm:"column:request_body;not null"`
	ResponseBody  string    `gorm:"column:response_body;not null"`
	Detail        *string   `gorm:"column:detail"`
}

func (auditRecordModel) TableName() string {
	return "audit_records"
}

type AuditRepository struct {
	db *gormdb.DB
}

func NewAuditRepository(db *gormdb.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Insert(ctx context.Context, rec domain.AuditRecord) (domain.AuditRecord, error) {
	model := auditRecordModel{
		LoggedAt:      rec.Timestamp.UTC(),
		Kind:          string(rec.Kind),
		EndpointURL:   rec.EndpointURL,
		HTTPMethod:    rec.HTTPMethod,
		RemoteAddress: rec.RemoteAddress,
		RequestBody:   rec.RequestBody,
		ResponseBody:  rec.ResponseBody,
		Detail:        rec.Detail,
	}
	if model.LoggedAt.IsZero() {
		model.LoggedAt = time.Now().UTC()
	}

	err := r.db.WriteTX(ctx, func(tx *gormdb.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.AuditRecord{}, fmt.Errorf("insert audit record: %w", err)
	}
	return toAuditDomain(model), nil
}

// Query returns one page of records, newest first, with the total match count.
func (r *AuditRepository) Query(ctx context.Context, filter domain.AuditFilter) (domain.AuditPage, error) {
	page := domain.AuditPage{Page: filter.Page, PageSize: filter.PageSize}
	var rows []auditRecordModel
	err := r.db.ReadTX(ctx, func(tx *gormdb.Tx) error {
		if err := applyAuditFilter(tx.Model(&auditRecordModel{}), filter).Count(&page.Total).Error; err != nil {
			return err
		}
		return applyAuditFilter(tx.Model(&auditRecordModel{}), filter).
			Order("logged_at DESC").
			Order("id DESC").
			Offset(filter.Offset()).
			Limit(filter.PageSize).
			Find(&rows).Error
	})
	if err != nil {
		return domain.AuditPage{}, fmt.Errorf("query audit records: %w", err)
	}

	page.Records = make([]domain.AuditRecord, 0, len(rows))
	for _, row := range rows {
		page.Records = append(page.Records, toAuditDomain(row))
	}
	return page, nil
}

func (r *AuditRepository) Get(ctx context.Context, id int64) (domain.AuditRecord, error) {
	var model auditRecordModel
	err := r.db.ReadTX(ctx, func(tx *gormdb.Tx) error {
		return tx.Where("id = ?", id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AuditRecord{}, domain.ErrNotFound
		}
		return domain.AuditRecord{}, fmt.Errorf("get audit record: %w", err)
	}
	return toAuditDomain(model), nil
}

func applyAuditFilter(query *gorm.DB, filter domain.AuditFilter) *gorm.DB {
	if filter.Kind != "" {
		query = query.Where("kind = ?", string(filter.Kind))
	}
	if filter.From != nil {
		query = query.Where("logged_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("logged_at <= ?", filter.To.UTC())
	}
	if filter.Method != "" {
		query = query.Where("http_method = ?", filter.Method)
	}
	if filter.Text != "" {
		pattern := likePattern(filter.Text)
		query = query.Where(
			`(endpoint_url LIKE ? ESCAPE '\' OR request_body LIKE ? ESCAPE '\' OR response_body LIKE ? ESCAPE '\' OR detail LIKE ? ESCAPE '\')`,
			pattern, pattern, pattern, pattern,
		)
	}
	return query
}

func toAuditDomain(m auditRecordModel) domain.AuditRecord {
	return domain.AuditRecord{
		ID:            m.ID,
		Timestamp:     m.LoggedAt,
		Kind:          domain.AuditKind(m.Kind),
		EndpointURL:   m.EndpointURL,
		HTTPMethod:    m.HTTPMethod,
		RemoteAddress: m.RemoteAddress,
		RequestBody:   m.RequestBody,
		ResponseBody:  m.ResponseBody,
		Detail:        m.Detail,
	}
}
