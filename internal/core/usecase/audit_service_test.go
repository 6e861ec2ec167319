package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
)

type auditRepoStub struct {
	inserted []domain.AuditRecord
	filters  []domain.AuditFilter
}

func (r *auditRepoStub) Insert(_ context.Context, rec domain.AuditRecord) (domain.AuditRecord, error) {
	rec.ID = int64(len(r.inserted) + 1)
	r.inserted = append(r.inserted, rec)
	return rec, nil
}

func (r *auditRepoStub) Query(_ context.Context, filter domain.AuditFilter) (domain.AuditPage, error) {
	r.filters = append(r.filters, filter)
	return domain.AuditPage{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (r *auditRepoStub) Get(_ context.Context, id int64) (domain.AuditRecord, error) {
	for _, rec := range r.inserted {
		if rec.ID == id {
			return rec, nil
		}
	}
	return domain.AuditRecord{}, domain.ErrNotFound
}

func TestAuditServiceRecordDefaults(t *testing.T) {
	repo := &auditRepoStub{}
	svc := NewAuditService(repo)

	stray := "should be dropped"
	if err := svc.Record(context.Background(), domain.AuditRecord{HTTPMethod: "GET", Detail: &stray}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got := repo.inserted[0]
	if got.Kind != domain.AuditKindInfo {
		t.Fatalf("expected info kind, got %q", got.Kind)
	}
	if got.Detail != nil {
		t.Fatalf("info records must not carry detail, got %q", *got.Detail)
	}
	if got.Timestamp.IsZero() || got.Timestamp.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", got.Timestamp)
	}
}

func TestAuditServiceRecordKeepsErrorDetail(t *testing.T) {
	repo := &auditRepoStub{}
	svc := NewAuditService(repo)

	detail := "panic: boom"
	if err := svc.Record(context.Background(), domain.AuditRecord{Kind: domain.AuditKindError, Detail: &detail}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if repo.inserted[0].Detail == nil || *repo.inserted[0].Detail != detail {
		t.Fatalf("expected detail to be kept, got %v", repo.inserted[0].Detail)
	}
}

func TestAuditServiceQueryNormalizesAndValidates(t *testing.T) {
	repo := &auditRepoStub{}
	svc := NewAuditService(repo)

	page, err := svc.Query(context.Background(), domain.AuditFilter{PageSize: 10_000, Method: " post "})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.Page != 1 || page.PageSize != domain.MaxAuditPageSize {
		t.Fatalf("unexpected paging: %+v", page)
	}
	if repo.filters[0].Method != "POST" {
		t.Fatalf("expected normalized method, got %q", repo.filters[0].Method)
	}

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	if _, err := svc.Query(context.Background(), domain.AuditFilter{From: &from, To: &to}); !errors.Is(err, domain.ErrInvalidFilter) {
		t.Fatalf("expected invalid filter, got %v", err)
	}
	if len(repo.filters) != 1 {
		t.Fatalf("invalid filter must not reach the repository")
	}
}

func TestAuditServiceGetRejectsNonPositiveIDs(t *testing.T) {
	svc := NewAuditService(&auditRepoStub{})
	if _, err := svc.Get(context.Background(), 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
