package ports

import (
	"context"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
)

type OutboxRepository interface {
	FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt string, errMsg string) error
	MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error
}

// EventPublisher delivers one outbox event to the outside world. A nil error
// means the receiver accepted it.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event domain.EventEnvelope) error
}
