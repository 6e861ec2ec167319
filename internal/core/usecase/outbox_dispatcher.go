package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
	"github.com/atvirokodosprendimai/clientvault/internal/core/ports"
)

const (
	defaultDispatchInterval    = 2 * time.Second
	defaultDispatchBatch       = 50
	defaultDispatchMaxAttempts = 5
	maxRetryDelay              = 5 * time.Minute
)

// OutboxDispatcherConfig tunes delivery of pending outbox events. Zero
// values fall back to the defaults.
type OutboxDispatcherConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	Logger      *slog.Logger
}

// OutboxDispatcher delivers committed events, such as archive.ingested, to
// the configured publisher. Failed deliveries are retried with a growing
// delay and dead-lettered once MaxAttempts is used up.
type OutboxDispatcher struct {
	repo      ports.OutboxRepository
	publisher ports.EventPublisher
	cfg       OutboxDispatcherConfig
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	delivered atomic.Int64
	retried   atomic.Int64
	dead      atomic.Int64
}

// DeliveryStats counts outcomes since the dispatcher was built.
type DeliveryStats struct {
	Delivered int64
	Retried   int64
	Dead      int64
}

func NewOutboxDispatcher(repo ports.OutboxRepository, publisher ports.EventPublisher, cfg OutboxDispatcherConfig) *OutboxDispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultDispatchInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultDispatchBatch
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultDispatchMaxAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxDispatcher{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With("component", "outbox"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (d *OutboxDispatcher) Start(parent context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.wg.Add(1)
	go d.run(ctx)
}

// Close stops the loop and waits for the pass in flight.
func (d *OutboxDispatcher) Close() error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	return nil
}

func (d *OutboxDispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchPending(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("outbox pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchPending makes one pass over the due events and returns how many
// were delivered. It stops at the first storage error; delivery errors are
// recorded on the event instead.
func (d *OutboxDispatcher) DispatchPending(ctx context.Context) (int, error) {
	pending, err := d.repo.FetchPending(ctx, d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch pending events: %w", err)
	}

	delivered := 0
	for _, event := range pending {
		ok, err := d.deliver(ctx, event)
		if err != nil {
			return delivered, err
		}
		if ok {
			delivered++
		}
	}
	return delivered, nil
}

func (d *OutboxDispatcher) deliver(ctx context.Context, event domain.OutboxEvent) (bool, error) {
	attempt := event.Attempts + 1
	attrs := []any{"event_id", event.EventID, "topic", event.Topic, "attempts", attempt}

	var envelope domain.EventEnvelope
	if err := json.Unmarshal(event.PayloadJSON, &envelope); err != nil {
		return false, d.giveUpOrRetry(ctx, event, fmt.Sprintf("decode envelope: %v", err), attrs)
	}
	attrs = append(attrs, envelopeAttrs(envelope)...)

	if err := d.publisher.Publish(ctx, event.Topic, envelope); err != nil {
		if ctx.Err() != nil {
			// Shutting down; the event stays due and keeps its attempt budget.
			return false, ctx.Err()
		}
		return false, d.giveUpOrRetry(ctx, event, err.Error(), attrs)
	}

	if err := d.repo.MarkDispatched(ctx, event.ID); err != nil {
		return false, fmt.Errorf("mark event %s dispatched: %w", event.EventID, err)
	}
	d.delivered.Add(1)
	d.logger.InfoContext(ctx, "outbox event delivered", attrs...)
	return true, nil
}

func (d *OutboxDispatcher) giveUpOrRetry(ctx context.Context, event domain.OutboxEvent, reason string, attrs []any) error {
	attempt := event.Attempts + 1
	attrs = append(attrs, "error", reason)

	if attempt >= d.cfg.MaxAttempts {
		if err := d.repo.MarkDead(ctx, event.ID, attempt, reason); err != nil {
			return fmt.Errorf("dead-letter event %s: %w", event.EventID, err)
		}
		d.dead.Add(1)
		d.logger.ErrorContext(ctx, "outbox event dead-lettered", attrs...)
		return nil
	}

	next := d.now().Add(retryDelay(attempt))
	if err := d.repo.MarkFailed(ctx, event.ID, attempt, next.Format(time.RFC3339Nano), reason); err != nil {
		return fmt.Errorf("reschedule event %s: %w", event.EventID, err)
	}
	d.retried.Add(1)
	d.logger.WarnContext(ctx, "outbox event delivery failed", append(attrs, "next_attempt_at", next)...)
	return nil
}

// envelopeAttrs names the client and batch an event is about, so delivery
// logs can be joined with the audit trail of the upload.
func envelopeAttrs(e domain.EventEnvelope) []any {
	attrs := []any{"event_type", e.EventType, "correlation_id", e.CorrelationID}
	if e.EventType != domain.EventArchiveIngested {
		return append(attrs, "aggregate_id", e.AggregateID)
	}
	p, err := e.ArchiveIngested()
	if err != nil {
		return append(attrs, "client_id", e.AggregateID, "payload_error", err.Error())
	}
	return append(attrs, "client_id", p.ClientID, "batch_id", p.BatchID, "file_count", p.FileCount)
}

func (d *OutboxDispatcher) Stats() DeliveryStats {
	return DeliveryStats{
		Delivered: d.delivered.Load(),
		Retried:   d.retried.Load(),
		Dead:      d.dead.Load(),
	}
}

// retryDelay grows quadratically with the attempt number, capped at five minutes.
func retryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return time.Second
	}
	delay := time.Duration(attempt*attempt) * time.Second
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}
