package store

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Memory is a simple in-memory store used when no DATABASE_URL or BADGER_PATH is set.
type Memory struct {
	mu     sync.Mutex
	plans  map[string]Plan                          // id -> plan
	byTen  map[string][]string                      // tenant -> plan ids, creation order
	planMx map[string]map[string][]map[string]any   // tenant -> scenario -> items
	optCfg map[string]OptimizerConfig               // tenant -> config
	// Webhooks queue state
	deliveries         map[string]*memDelivery // id -> delivery state
	deliveriesByTenant map[string][]string     // tenant -> delivery ids
	dedup              map[string]string       // tenant|type|url|key -> delivery id
	dlq                []map[string]any        // dead-lettered deliveries

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		plans:              map[string]Plan{},
		byTen:              map[string][]string{},
		planMx:             map[string]map[string][]map[string]any{},
		optCfg:             map[string]OptimizerConfig{},
		deliveries:         map[string]*memDelivery{},
		deliveriesByTenant: map[string][]string{},
		dedup:              map[string]string{},
		now:                time.Now,
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) SavePlan(ctx context.Context, p Plan) (Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := stamp(p, m.now())
	if err != nil {
		return p, err
	}
	if old, ok := m.plans[p.ID]; ok {
		if old.TenantID != p.TenantID {
			return Plan{}, ErrNotFound
		}
		p.CreatedAt = old.CreatedAt
	} else {
		m.byTen[p.TenantID] = append(m.byTen[p.TenantID], p.ID)
	}
	m.plans[p.ID] = p
	return p, nil
}

func (m *Memory) GetPlan(ctx context.Context, tenantID, id string) (Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok || p.TenantID != tenantID {
		return Plan{}, ErrNotFound
	}
	return p, nil
}

// ListPlans pages by id; cursor is the last id of the previous page.
func (m *Memory) ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]Plan, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	ids := slices.Clone(m.byTen[tenantID])
	slices.Sort(ids)
	out := []Plan{}
	for _, id := range ids {
		if cursor != "" && id <= cursor {
			continue
		}
		p := m.plans[id]
		p.Report = nil
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) SavePlanMetrics(ctx context.Context, tenantID, scenario, algo string, metrics map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.planMx[tenantID] == nil {
		m.planMx[tenantID] = map[string][]map[string]any{}
	}
	item := map[string]any{}
	for k, v := range metrics {
		item[k] = v
	}
	item["algo"] = algo
	items := m.planMx[tenantID][scenario]
	found := false
	for i := range items {
		if items[i]["algo"] == algo {
			items[i] = item
			found = true
			break
		}
	}
	if !found {
		items = append(items, item)
	}
	m.planMx[tenantID][scenario] = items
	return nil
}

func (m *Memory) ListPlanMetrics(ctx context.Context, tenantID, scenario, algo string) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, it := range m.planMx[tenantID][scenario] {
		if algo == "" || it["algo"] == algo {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *Memory) GetOptimizerConfig(ctx context.Context, tenantID string) (OptimizerConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.optCfg[tenantID]
	if !ok {
		return OptimizerConfig{}, ErrNotFound
	}
	return cfg, nil
}

func (m *Memory) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg OptimizerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optCfg[tenantID] = cfg
	return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dk := tenantID + "|" + eventType + "|" + url + "|" + computeDedupKey(payload)
	if id, ok := m.dedup[dk]; ok {
		return id, nil
	}
	id, err := newID()
	if err != nil {
		return "", err
	}
	d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"}, NextAttemptAt: m.now()}
	m.deliveries[id] = d
	m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
	m.dedup[dk] = id
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	ids := make([]string, 0, len(m.deliveries))
	for id := range m.deliveries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := []WebhookDelivery{}
	for _, id := range ids {
		d := m.deliveries[id]
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := m.now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = "retry"
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = m.now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	m.dlq = append(m.dlq, map[string]any{"id": id, "tenantId": d.TenantID, "lastError": lastError, "responseCode": responseCode, "latencyMs": latencyMs})
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	ids := slices.Clone(m.deliveriesByTenant[tenantID])
	slices.Sort(ids)
	out := []map[string]any{}
	var last string
	for _, id := range ids {
		if cursor != "" && id <= cursor {
			continue
		}
		d := m.deliveries[id]
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, deliveryItem(d))
		last = id
		if len(out) == limit {
			break
		}
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func deliveryItem(d *memDelivery) map[string]any {
	item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
	if !d.NextAttemptAt.IsZero() && d.Status != "delivered" && d.Status != "failed" {
		item["nextAttemptAt"] = d.NextAttemptAt
	}
	if d.LastError != "" {
		item["lastError"] = d.LastError
	}
	if d.ResponseCode != 0 {
		item["responseCode"] = d.ResponseCode
	}
	return item
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }
