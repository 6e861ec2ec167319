package ports

import (
	"context"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
)

type AuditRepository interface {
	Insert(ctx context.Context, rec domain.AuditRecord) (domain.AuditRecord, error)
	Query(ctx context.Context, filter domain.AuditFilter) (domain.AuditPage, error)
	Get(ctx context.Context, id int64) (domain.AuditRecord, error)
}

// AccessKeyRepository stores the keys guarding the audit log. Save replaces
// the secret of an existing name.
type AccessKeyRepository interface {
	FindByDigest(ctx context.Context, digest string) (domain.AccessKey, error)
	Save(ctx context.Context, key domain.AccessKey) error
}
