package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"morapack/internal/store"
)

// Publisher enqueues signed event notifications for the configured endpoint.
// With no URL it drops events.
type Publisher struct {
	Store  store.Store
	URL    string
	Secret string
}

func NewPublisher(s store.Store, url, secret string) *Publisher {
	return &Publisher{Store: s, URL: url, Secret: secret}
}

// Event is the JSON envelope posted to receivers.
type Event struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	TenantID string `json:"tenantId"`
	TS       string `json:"ts"`
	Data     any    `json:"data"`
}

// Emit enqueues one delivery and returns its id, or "" when disabled.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType string, data any) (string, error) {
	if p == nil || p.URL == "" {
		return "", nil
	}
	body, err := json.Marshal(Event{
		ID:       "evt_" + uuid.NewString(),
		Type:     eventType,
		TenantID: tenantID,
		TS:       time.Now().UTC().Format(time.RFC3339),
		Data:     data,
	})
	if err != nil {
		return "", fmt.Errorf("webhooks: encode %s: %w", eventType, err)
	}
	return p.Store.EnqueueWebhook(ctx, tenantID, eventType, p.URL, p.Secret, body)
}
