package usecase

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
)

var dispatchNow = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

// memOutbox keeps events the way the outbox table does: a status per row and
// the bookkeeping written by each mark.
type memOutbox struct {
	events []domain.OutboxEvent
	calls  []string
}

func (m *memOutbox) FetchPending(_ context.Context, limit int) ([]domain.OutboxEvent, error) {
	var due []domain.OutboxEvent
	for _, e := range m.events {
		if e.Status == "pending" && !e.NextAttemptAt.After(dispatchNow) && len(due) < limit {
			due = append(due, e)
		}
	}
	return due, nil
}

func (m *memOutbox) find(id int64) *domain.OutboxEvent {
	for i := range m.events {
		if m.events[i].ID == id {
			return &m.events[i]
		}
	}
	return nil
}

func (m *memOutbox) MarkDispatched(_ context.Context, id int64) error {
	m.calls = append(m.calls, "dispatched")
	e := m.find(id)
	if e == nil {
		return errors.New("unknown outbox id")
	}
	e.Status = "dispatched"
	return nil
}

func (m *memOutbox) MarkFailed(_ context.Context, id int64, attempts int, nextAttemptAt string, errMsg string) error {
	m.calls = append(m.calls, "failed")
	next, err := time.Parse(time.RFC3339Nano, nextAttemptAt)
	if err != nil {
		return err
	}
	e := m.find(id)
	if e == nil {
		return errors.New("unknown outbox id")
	}
	e.Attempts, e.NextAttemptAt, e.LastError = attempts, next, errMsg
	return nil
}

func (m *memOutbox) MarkDead(_ context.Context, id int64, attempts int, errMsg string) error {
	m.calls = append(m.calls, "dead")
	e := m.find(id)
	if e == nil {
		return errors.New("unknown outbox id")
	}
	e.Status, e.Attempts, e.LastError = "dead", attempts, errMsg
	return nil
}

type recordingPublisher struct {
	publishFn func(ctx context.Context, topic string, event domain.EventEnvelope) error
	topics    []string
	received  []domain.EventEnvelope
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	p.topics = append(p.topics, topic)
	p.received = append(p.received, event)
	if p.publishFn != nil {
		return p.publishFn(ctx, topic, event)
	}
	return nil
}

// ingestedEvent builds the outbox row written when client uploads a batch
// of the given storage URLs.
func ingestedEvent(t *testing.T, id int64, client, batch string, urls ...string) domain.OutboxEvent {
	t.Helper()
	files := make([]domain.IngestedFile, 0, len(urls))
	for i, u := range urls {
		files = append(files, domain.IngestedFile{ID: id*100 + int64(i), OwnerClientID: client, StorageURL: u})
	}
	env, err := domain.NewArchiveIngestedEnvelope("evt-"+batch, batch, files, domain.MutationMetadata{
		CorrelationID: "req-" + batch,
		OccurredAt:    dispatchNow.Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	body, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	return domain.OutboxEvent{
		ID:            id,
		EventID:       env.EventID,
		Topic:         domain.OutboxTopic(env.EventType),
		PayloadJSON:   body,
		Status:        "pending",
		NextAttemptAt: env.OccurredAt,
	}
}

func newTestDispatcher(repo *memOutbox, pub *recordingPublisher, logs *bytes.Buffer) *OutboxDispatcher {
	d := NewOutboxDispatcher(repo, pub, OutboxDispatcherConfig{
		BatchSize: 10,
		Logger:    slog.New(slog.NewJSONHandler(logs, nil)),
	})
	d.now = func() time.Time { return dispatchNow }
	return d
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var line map[string]any
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("decode log line %q: %v", sc.Text(), err)
		}
		out = append(out, line)
	}
	return out
}

func TestDispatchDeliversIngestionEventWithBatchFields(t *testing.T) {
	repo := &memOutbox{events: []domain.OutboxEvent{
		ingestedEvent(t, 1, "123", "20260402095900-0a1b2c3d",
			"/uploads/archives/123/20260402095900-0a1b2c3d/files/a.txt",
			"/uploads/archives/123/20260402095900-0a1b2c3d/files/sub/b.txt"),
	}}
	pub := &recordingPublisher{}
	var logs bytes.Buffer
	d := newTestDispatcher(repo, pub, &logs)

	n, err := d.DispatchPending(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("dispatch: n=%d err=%v", n, err)
	}
	if pub.topics[0] != "events.archive.ingested" {
		t.Fatalf("unexpected topic %q", pub.topics[0])
	}
	payload, err := pub.received[0].ArchiveIngested()
	if err != nil {
		t.Fatalf("decode delivered payload: %v", err)
	}
	if payload.ClientID != "123" || payload.FileCount != 2 || payload.URLs[1] != "/uploads/archives/123/20260402095900-0a1b2c3d/files/sub/b.txt" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if repo.events[0].Status != "dispatched" {
		t.Fatalf("expected dispatched, got %q", repo.events[0].Status)
	}

	lines := logLines(t, &logs)
	if len(lines) != 1 || lines[0]["msg"] != "outbox event delivered" {
		t.Fatalf("unexpected logs: %v", lines)
	}
	want := map[string]any{
		"event_id":       "evt-20260402095900-0a1b2c3d",
		"topic":          "events.archive.ingested",
		"attempts":       float64(1),
		"client_id":      "123",
		"batch_id":       "20260402095900-0a1b2c3d",
		"file_count":     float64(2),
		"correlation_id": "req-20260402095900-0a1b2c3d",
	}
	for k, v := range want {
		if lines[0][k] != v {
			t.Fatalf("log field %s = %v, want %v", k, lines[0][k], v)
		}
	}
	if got := d.Stats(); got != (DeliveryStats{Delivered: 1}) {
		t.Fatalf("unexpected stats: %+v", got)
	}
}

func TestDispatchFailedDeliveryIsRescheduled(t *testing.T) {
	repo := &memOutbox{events: []domain.OutboxEvent{ingestedEvent(t, 2, "77", "b-retry", "/u/a")}}
	repo.events[0].Attempts = 2
	pub := &recordingPublisher{publishFn: func(context.Context, string, domain.EventEnvelope) error {
		return errors.New("webhook returned 502")
	}}
	var logs bytes.Buffer
	d := newTestDispatcher(repo, pub, &logs)

	n, err := d.DispatchPending(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("dispatch: n=%d err=%v", n, err)
	}
	ev := repo.events[0]
	if ev.Status != "pending" || ev.Attempts != 3 || ev.LastError != "webhook returned 502" {
		t.Fatalf("unexpected event after failure: %+v", ev)
	}
	if !ev.NextAttemptAt.Equal(dispatchNow.Add(9 * time.Second)) {
		t.Fatalf("expected retry in 9s, got %v", ev.NextAttemptAt.Sub(dispatchNow))
	}

	lines := logLines(t, &logs)
	if len(lines) != 1 || lines[0]["level"] != "WARN" || lines[0]["batch_id"] != "b-retry" || lines[0]["attempts"] != float64(3) {
		t.Fatalf("unexpected logs: %v", lines)
	}

	// Not due yet, so a second pass leaves it alone.
	if _, err := d.DispatchPending(context.Background()); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(pub.received) != 1 {
		t.Fatalf("event redelivered before its retry time")
	}
}

func TestDispatchLastAttemptDeadLetters(t *testing.T) {
	repo := &memOutbox{events: []domain.OutboxEvent{ingestedEvent(t, 3, "77", "b-dead", "/u/a")}}
	repo.events[0].Attempts = 4
	pub := &recordingPublisher{publishFn: func(context.Context, string, domain.EventEnvelope) error {
		return errors.New("connection refused")
	}}
	var logs bytes.Buffer
	d := newTestDispatcher(repo, pub, &logs)

	if _, err := d.DispatchPending(context.Background()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if repo.events[0].Status != "dead" || repo.events[0].Attempts != 5 {
		t.Fatalf("expected dead after 5 attempts, got %+v", repo.events[0])
	}
	if len(repo.calls) != 1 || repo.calls[0] != "dead" {
		t.Fatalf("expected a single dead mark, got %v", repo.calls)
	}
	lines := logLines(t, &logs)
	if lines[0]["level"] != "ERROR" || lines[0]["client_id"] != "77" {
		t.Fatalf("unexpected logs: %v", lines)
	}
	if got := d.Stats(); got.Dead != 1 || got.Retried != 0 {
		t.Fatalf("unexpected stats: %+v", got)
	}
}

func TestDispatchUndecodableRowIsNotPublished(t *testing.T) {
	repo := &memOutbox{events: []domain.OutboxEvent{{
		ID: 4, EventID: "evt-broken", Topic: "events.archive.ingested", Status: "pending",
		PayloadJSON: json.RawMessage(`{"event_id":`), NextAttemptAt: dispatchNow,
	}}}
	pub := &recordingPublisher{}
	var logs bytes.Buffer
	d := newTestDispatcher(repo, pub, &logs)

	if _, err := d.DispatchPending(context.Background()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(pub.received) != 0 {
		t.Fatalf("broken row must not reach the publisher")
	}
	if repo.events[0].Attempts != 1 || repo.events[0].Status != "pending" {
		t.Fatalf("expected a retry mark, got %+v", repo.events[0])
	}
	if lines := logLines(t, &logs); lines[0]["event_id"] != "evt-broken" {
		t.Fatalf("unexpected logs: %v", lines)
	}
}

func TestDispatchShutdownKeepsAttemptBudget(t *testing.T) {
	repo := &memOutbox{events: []domain.OutboxEvent{
		ingestedEvent(t, 5, "123", "b-first", "/u/a"),
		ingestedEvent(t, 6, "123", "b-second", "/u/b"),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	pub := &recordingPublisher{publishFn: func(ctx context.Context, _ string, _ domain.EventEnvelope) error {
		cancel()
		return ctx.Err()
	}}
	d := newTestDispatcher(repo, pub, &bytes.Buffer{})

	_, err := d.DispatchPending(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if len(repo.calls) != 0 {
		t.Fatalf("shutdown must not consume attempts, got marks %v", repo.calls)
	}
	if len(pub.received) != 1 {
		t.Fatalf("pass must stop after shutdown, published %d", len(pub.received))
	}
}

func TestDispatchResumesAfterRestart(t *testing.T) {
	repo := &memOutbox{events: []domain.OutboxEvent{
		ingestedEvent(t, 7, "123", "b-flaky", "/u/a"),
		ingestedEvent(t, 8, "456", "b-steady", "/u/b"),
	}}
	pub := &recordingPublisher{publishFn: func(_ context.Context, _ string, e domain.EventEnvelope) error {
		if e.AggregateID == "123" {
			return errors.New("timeout")
		}
		return nil
	}}
	if n, err := newTestDispatcher(repo, pub, &bytes.Buffer{}).DispatchPending(context.Background()); err != nil || n != 1 {
		t.Fatalf("first run: n=%d err=%v", n, err)
	}

	repo.events[0].NextAttemptAt = dispatchNow
	pub.publishFn = nil
	if n, err := newTestDispatcher(repo, pub, &bytes.Buffer{}).DispatchPending(context.Background()); err != nil || n != 1 {
		t.Fatalf("second run: n=%d err=%v", n, err)
	}
	for _, e := range repo.events {
		if e.Status != "dispatched" {
			t.Fatalf("event %s left %s", e.EventID, e.Status)
		}
	}
}

func TestRetryDelayIsCapped(t *testing.T) {
	cases := map[int]time.Duration{0: time.Second, 1: time.Second, 2: 4 * time.Second, 17: 289 * time.Second, 18: maxRetryDelay, 100: maxRetryDelay}
	for attempt, want := range cases {
		if got := retryDelay(attempt); got != want {
			t.Fatalf("retryDelay(%d) = %v, want %v", attempt, got, want)
		}
	}
}
