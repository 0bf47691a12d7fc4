package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Badger is an embedded store for single-node deployments. Records are JSON
// documents under prefixed keys; ids are time ordered so key order is
// creation order.
type Badger struct {
	db  *badger.DB
	now func() time.Time
}

// OpenBadger opens (or creates) a store at path. An empty path keeps
// everything in memory.
func OpenBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %q: %w", path, err)
	}
	return &Badger{db: db, now: time.Now}, nil
}

func (b *Badger) Close() error { return b.db.Close() }

func (b *Badger) Ping(ctx context.Context) error {
	if b.db.IsClosed() {
		return errors.New("badger: closed")
	}
	return nil
}

func planKey(tenantID, id string) []byte { return []byte("plan/" + tenantID + "/" + id) }
func metricsKey(tenantID, scenario, algo string) []byte {
	return []byte("metrics/" + tenantID + "/" + scenario + "/" + algo)
}
func optCfgKey(tenantID string) []byte { return []byte("optcfg/" + tenantID) }
func deliveryKey(id string) []byte     { return []byte("wh/" + id) }
func deliveryTenantKey(tenantID, id string) []byte {
	return []byte("whten/" + tenantID + "/" + id)
}
func dedupKey(tenantID, eventType, url, key string) []byte {
	return []byte("whdedup/" + tenantID + "|" + eventType + "|" + url + "|" + key)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error { return json.Unmarshal(val, v) })
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, val)
}

// scan visits values under prefix with keys strictly after prefix+after.
func scan(txn *badger.Txn, prefix []byte, after string, visit func(key, val []byte) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	start := prefix
	if after != "" {
		start = append(bytes.Clone(prefix), after...)
	}
	for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		k := item.KeyCopy(nil)
		if after != "" && bytes.Equal(k, start) {
			continue
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		more, err := visit(k, val)
		if err != nil || !more {
			return err
		}
	}
	return nil
}

func (b *Badger) SavePlan(ctx context.Context, p Plan) (Plan, error) {
	p, err := stamp(p, b.now().UTC())
	if err != nil {
		return p, err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		var old Plan
		switch err := getJSON(txn, planKey(p.TenantID, p.ID), &old); {
		case err == nil:
			p.CreatedAt = old.CreatedAt
			if len(p.Report) == 0 {
				p.Report = old.Report
			}
		case !errors.Is(err, ErrNotFound):
			return err
		}
		return setJSON(txn, planKey(p.TenantID, p.ID), p)
	})
	return p, err
}

func (b *Badger) GetPlan(ctx context.Context, tenantID, id string) (Plan, error) {
	var p Plan
	err := b.db.View(func(txn *badger.Txn) error { return getJSON(txn, planKey(tenantID, id), &p) })
	return p, err
}

func (b *Badger) ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]Plan, string, error) {
	limit = clampLimit(limit)
	out := []Plan{}
	err := b.db.View(func(txn *badger.Txn) error {
		return scan(txn, []byte("plan/"+tenantID+"/"), cursor, func(_, val []byte) (bool, error) {
			var p Plan
			if err := json.Unmarshal(val, &p); err != nil {
				return false, err
			}
			p.Report = nil
			out = append(out, p)
			return len(out) < limit, nil
		})
	})
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (b *Badger) SavePlanMetrics(ctx context.Context, tenantID, scenario, algo string, metrics map[string]any) error {
	item := map[string]any{}
	for k, v := range metrics {
		item[k] = v
	}
	item["algo"] = algo
	return b.db.Update(func(txn *badger.Txn) error { return setJSON(txn, metricsKey(tenantID, scenario, algo), item) })
}

func (b *Badger) ListPlanMetrics(ctx context.Context, tenantID, scenario, algo string) ([]map[string]any, error) {
	out := []map[string]any{}
	err := b.db.View(func(txn *badger.Txn) error {
		if algo != "" {
			var item map[string]any
			err := getJSON(txn, metricsKey(tenantID, scenario, algo), &item)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err == nil {
				out = append(out, item)
			}
			return err
		}
		return scan(txn, []byte("metrics/"+tenantID+"/"+scenario+"/"), "", func(_, val []byte) (bool, error) {
			var item map[string]any
			if err := json.Unmarshal(val, &item); err != nil {
				return false, err
			}
			out = append(out, item)
			return true, nil
		})
	})
	return out, err
}

func (b *Badger) GetOptimizerConfig(ctx context.Context, tenantID string) (OptimizerConfig, error) {
	var cfg OptimizerConfig
	err := b.db.View(func(txn *badger.Txn) error { return getJSON(txn, optCfgKey(tenantID), &cfg) })
	return cfg, err
}

func (b *Badger) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg OptimizerConfig) error {
	return b.db.Update(func(txn *badger.Txn) error { return setJSON(txn, optCfgKey(tenantID), cfg) })
}

// badgerDelivery is the stored form of a queued webhook.
type badgerDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time  `json:"nextAttemptAt"`
	LastError     string     `json:"lastError,omitempty"`
	ResponseCode  int        `json:"responseCode,omitempty"`
	LatencyMs     int        `json:"latencyMs,omitempty"`
	DeliveredAt   *time.Time `json:"deliveredAt,omitempty"`
}

func (b *Badger) EnqueueWebhook(ctx context.Context, tenantID, eventType, url, secret string, payload []byte) (string, error) {
	var id string
	err := b.db.Update(func(txn *badger.Txn) error {
		dk := dedupKey(tenantID, eventType, url, computeDedupKey(payload))
		if item, err := txn.Get(dk); err == nil {
			return item.Value(func(val []byte) error { id = string(val); return nil })
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		var err error
		if id, err = newID(); err != nil {
			return err
		}
		d := badgerDelivery{
			WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"},
			NextAttemptAt:   b.now(),
		}
		if err := setJSON(txn, deliveryKey(id), d); err != nil {
			return err
		}
		if err := txn.Set(deliveryTenantKey(tenantID, id), nil); err != nil {
			return err
		}
		return txn.Set(dk, []byte(id))
	})
	return id, err
}

func (b *Badger) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	now := b.now()
	out := []WebhookDelivery{}
	err := b.db.View(func(txn *badger.Txn) error {
		return scan(txn, []byte("wh/"), "", func(_, val []byte) (bool, error) {
			var d badgerDelivery
			if err := json.Unmarshal(val, &d); err != nil {
				return false, err
			}
			if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
				out = append(out, d.WebhookDelivery)
			}
			return limit <= 0 || len(out) < limit, nil
		})
	})
	return out, err
}

func (b *Badger) updateDelivery(id string, fn func(d *badgerDelivery)) error {
	return b.db.Update(func(txn *badger.Txn) error {
		var d badgerDelivery
		if err := getJSON(txn, deliveryKey(id), &d); err != nil {
			return err
		}
		fn(&d)
		return setJSON(txn, deliveryKey(id), d)
	})
}

func (b *Badger) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	now := b.now()
	return b.updateDelivery(id, func(d *badgerDelivery) {
		d.Attempts++
		d.ResponseCode = responseCode
		d.LatencyMs = latencyMs
		if success {
			d.Status = "delivered"
			d.DeliveredAt = &now
			return
		}
		d.Status = "retry"
		d.LastError = lastError
		d.NextAttemptAt = now.Add(time.Minute)
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		}
	})
}

func (b *Badger) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	return b.updateDelivery(id, func(d *badgerDelivery) {
		d.Attempts++
		d.Status = "failed"
		d.LastError = lastError
		d.ResponseCode = responseCode
		d.LatencyMs = latencyMs
	})
}

func (b *Badger) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	limit = clampLimit(limit)
	out := []map[string]any{}
	var last string
	prefix := []byte("whten/" + tenantID + "/")
	err := b.db.View(func(txn *badger.Txn) error {
		return scan(txn, prefix, cursor, func(key, _ []byte) (bool, error) {
			id := string(key[len(prefix):])
			var d badgerDelivery
			if err := getJSON(txn, deliveryKey(id), &d); err != nil {
				return false, err
			}
			if status != "" && d.Status != status {
				return true, nil
			}
			md := memDelivery{WebhookDelivery: d.WebhookDelivery, NextAttemptAt: d.NextAttemptAt, LastError: d.LastError, ResponseCode: d.ResponseCode}
			out = append(out, deliveryItem(&md))
			last = id
			return len(out) < limit, nil
		})
	})
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}
