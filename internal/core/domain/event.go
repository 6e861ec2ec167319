package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const CurrentEventSchemaVersion = 1

const (
	EventArchiveIngested = "archive.ingested"
	AggregateClient      = "client"
)

type MutationMetadata struct {
	Actor         string
	Source        string
	CorrelationID string
	OccurredAt    time.Time
}

func (m MutationMetadata) Normalize() MutationMetadata {
	if m.Actor == "" {
		m.Actor = "api"
	}
	if m.Source == "" {
		m.Source = "api"
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = time.Now().UTC()
	}
	return m
}

type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	Actor         string          `json:"actor"`
	Source        string          `json:"source"`
	Payload       json.RawMessage `json:"payload"`
}

// ArchiveIngestedPayload is the payload of EventArchiveIngested.
type ArchiveIngestedPayload struct {
	ClientID  string   `json:"client_id"`
	BatchID   string   `json:"batch_id"`
	FileCount int      `json:"file_count"`
	FileIDs   []int64  `json:"file_ids"`
	URLs      []string `json:"urls"`
}

// NewArchiveIngestedEnvelope describes one registered batch. files must be
// the stored rows, so that their ids are known.
func NewArchiveIngestedEnvelope(eventID, batchID string, files []IngestedFile, meta MutationMetadata) (EventEnvelope, error) {
	if len(files) == 0 {
		return EventEnvelope{}, errors.New("archive.ingested needs at least one file")
	}
	clientID := files[0].OwnerClientID
	payload := ArchiveIngestedPayload{
		ClientID:  clientID,
		BatchID:   batchID,
		FileCount: len(files),
		FileIDs:   make([]int64, 0, len(files)),
		URLs:      make([]string, 0, len(files)),
	}
	for _, f := range files {
		payload.FileIDs = append(payload.FileIDs, f.ID)
		payload.URLs = append(payload.URLs, f.StorageURL)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("encode archive.ingested payload: %w", err)
	}

	meta = meta.Normalize()
	return EventEnvelope{
		EventID:       eventID,
		EventType:     EventArchiveIngested,
		SchemaVersion: CurrentEventSchemaVersion,
		AggregateType: AggregateClient,
		AggregateID:   clientID,
		OccurredAt:    meta.OccurredAt.UTC(),
		CorrelationID: meta.CorrelationID,
		Actor:         meta.Actor,
		Source:        meta.Source,
		Payload:       raw,
	}, nil
}

// ArchiveIngested decodes the payload of an archive.ingested envelope.
func (e EventEnvelope) ArchiveIngested() (ArchiveIngestedPayload, error) {
	var p ArchiveIngestedPayload
	if e.EventType != EventArchiveIngested {
		return p, fmt.Errorf("event %s is %q, not %s", e.EventID, e.EventType, EventArchiveIngested)
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("decode archive.ingested payload: %w", err)
	}
	return p, nil
}

type OutboxEvent struct {
	ID            int64
	EventID       string
	Topic         string
	PayloadJSON   json.RawMessage
	Status        string
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}

func OutboxTopic(eventType string) string {
	return "events." + eventType
}
