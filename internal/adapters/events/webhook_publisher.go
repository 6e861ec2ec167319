package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	maxReplySnippet       = 512
)

// StatusError reports a receiver that answered outside 2xx. Body holds the
// start of its reply.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
}

// WebhookPublisher POSTs outbox events to one receiver. The body is signed
// with HMAC-SHA256 so the receiver can check it came from this server.
type WebhookPublisher struct {
	url    string
	secret []byte
	client *http.Client
}

func NewWebhookPublisher(url, secret string, timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookPublisher{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
	}
}

// Publish sends the envelope as JSON. Receivers can dedupe on
// X-Clientvault-Delivery, which stays the same across retries.
func (p *WebhookPublisher) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header = deliveryHeaders(topic, event)
	req.Header.Set("X-Hub-Signature-256", "sha256="+p.sign(body))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send event %s: %w", event.EventID, err)
	}
	defer resp.Body.Close()

	reply, _ := io.ReadAll(io.LimitReader(resp.Body, maxReplySnippet))
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(reply))}
	}
	return nil
}

func deliveryHeaders(topic string, event domain.EventEnvelope) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("X-Clientvault-Topic", topic)
	h.Set("X-Clientvault-Event-Type", event.EventType)
	h.Set("X-Clientvault-Delivery", event.EventID)
	if event.CorrelationID != "" {
		h.Set("X-Request-Id", event.CorrelationID)
	}
	if event.AggregateType == domain.AggregateClient {
		h.Set("X-Clientvault-Client", event.AggregateID)
	}
	if p, err := event.ArchiveIngested(); err == nil {
		h.Set("X-Clientvault-Batch", p.BatchID)
	}
	return h
}

func (p *WebhookPublisher) sign(body []byte) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
