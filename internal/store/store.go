package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Plan reports
	SavePlan(ctx context.Context, p Plan) (Plan, error)
	GetPlan(ctx context.Context, tenantID, id string) (Plan, error)
	ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]Plan, string, error)

	// Run metrics, latest per tenant/scenario/algorithm
	SavePlanMetrics(ctx context.Context, tenantID, scenario, algo string, metrics map[string]any) error
	ListPlanMetrics(ctx context.Context, tenantID, scenario, algo string) ([]map[string]any, error)

	// Optimizer config per tenant
	GetOptimizerConfig(ctx context.Context, tenantID string) (OptimizerConfig, error)
	SaveOptimizerConfig(ctx context.Context, tenantID string, cfg OptimizerConfig) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)

	Ping(ctx context.Context) error
	Close() error
}

var ErrNotFound = errors.New("not found")

// Plan status values.
const (
	PlanRunning   = "running"
	PlanCompleted = "completed"
	PlanFailed    = "failed"
)

// Plan is the stored report of one planner run. Report carries the full
// itinerary document produced by the API layer.
type Plan struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenantId"`
	Scenario         string          `json:"scenario"`
	Algorithm        string          `json:"algorithm"`
	Status           string          `json:"status"`
	Error            string          `json:"error,omitempty"`
	Orders           int             `json:"orders"`
	Delivered        int             `json:"delivered"`
	PercentDelivered float64         `json:"percentDelivered"`
	Fitness          float64         `json:"fitness"`
	RuntimeMs        int64           `json:"runtimeMs"`
	Stop             string          `json:"stop,omitempty"`
	Report           json.RawMessage `json:"report,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// OptimizerConfig holds tenant overrides for planner runs. Zero fields fall
// back to the service defaults.
type OptimizerConfig struct {
	Algorithm       string `json:"algorithm,omitempty"`
	Population      int    `json:"population,omitempty"`
	TimeBudgetMs    int    `json:"timeBudgetMs,omitempty"`
	MaxIterations   int    `json:"maxIterations,omitempty"`
	NoImprovementMs int    `json:"noImprovementMs,omitempty"`
}

type WebhookDelivery struct {
	ID        string
	TenantID  string
	EventType string
	URL       string
	Secret    string
	Payload   []byte
	Status    string
	Attempts  int
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

// stamp assigns a time-ordered id to new plans and maintains timestamps.
func stamp(p Plan, now time.Time) (Plan, error) {
	if p.ID == "" {
		id, err := newID()
		if err != nil {
			return p, err
		}
		p.ID = id
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = PlanRunning
	}
	return p, nil
}
