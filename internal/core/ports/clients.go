package ports

import (
	"context"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
)

type ClientRepository interface {
	Exists(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, c domain.Client) (domain.Client, error)
	Get(ctx context.Context, id string) (domain.Client, error)
	List(ctx context.Context) ([]domain.Client, error)
	Update(ctx context.Context, id string, fn func(domain.Client) domain.Client) (domain.Client, error)
	Delete(ctx context.Context, id string) (bool, error)
}
