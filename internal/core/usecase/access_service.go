package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
	"github.com/atvirokodosprendimai/clientvault/internal/core/ports"
)

// LogAccessService guards the audit log routes with named secrets.
type LogAccessService struct {
	keys ports.AccessKeyRepository
	now  func() time.Time
}

func NewLogAccessService(keys ports.AccessKeyRepository) *LogAccessService {
	return &LogAccessService{keys: keys, now: func() time.Time { return time.Now().UTC() }}
}

// Provision stores secret under name. An earlier secret of the same name
// stops working.
func (s *LogAccessService) Provision(ctx context.Context, name, secret string) error {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(secret) == "" {
		return domain.ErrInvalidKey
	}
	err := s.keys.Save(ctx, domain.AccessKey{
		Name:      name,
		Digest:    domain.DigestSecret(secret),
		Active:    true,
		CreatedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("provision access key %s: %w", name, err)
	}
	return nil
}

// Authorize returns the key matching secret, or domain.ErrUnauthorized.
func (s *LogAccessService) Authorize(ctx context.Context, secret string) (domain.AccessKey, error) {
	if strings.TrimSpace(secret) == "" {
		return domain.AccessKey{}, domain.ErrUnauthorized
	}
	key, err := s.keys.FindByDigest(ctx, domain.DigestSecret(secret))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.AccessKey{}, domain.ErrUnauthorized
	case err != nil:
		return domain.AccessKey{}, err
	case !key.Active:
		return domain.AccessKey{}, domain.ErrUnauthorized
	}
	return key, nil
}
