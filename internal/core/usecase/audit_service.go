package usecase

import (
	"context"
	"time"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
	"github.com/atvirokodosprendimai/clientvault/internal/core/ports"
)

type AuditService struct {
	repo ports.AuditRepository
}

func NewAuditService(repo ports.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

// Record persists one exchange. Info records never carry a detail.
func (s *AuditService) Record(ctx context.Context, rec domain.AuditRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.Timestamp = rec.Timestamp.UTC()
	if rec.Kind == "" {
		rec.Kind = domain.AuditKindInfo
	}
	if rec.Kind == domain.AuditKindInfo {
		rec.Detail = nil
	}
	_, err := s.repo.Insert(ctx, rec)
	return err
}

func (s *AuditService) Query(ctx context.Context, filter domain.AuditFilter) (domain.AuditPage, error) {
	filter = filter.Normalize()
	if err := filter.Validate(); err != nil {
		return domain.AuditPage{}, err
	}
	return s.repo.Query(ctx, filter)
}

func (s *AuditService) Get(ctx context.Context, id int64) (domain.AuditRecord, error) {
	if id <= 0 {
		return domain.AuditRecord{}, domain.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}
