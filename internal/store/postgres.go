package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
func (p *Postgres) Close() error                   { return p.db.Close() }

const planColumns = `id::text, tenant_id, scenario, algorithm, status, COALESCE(error,''), orders, delivered, percent_delivered, fitness, runtime_ms, COALESCE(stop,''), created_at, updated_at`

func (p *Postgres) SavePlan(ctx context.Context, pl Plan) (Plan, error) {
	pl, err := stamp(pl, time.Now().UTC())
	if err != nil {
		return pl, err
	}
	err = p.db.QueryRowContext(ctx, `INSERT INTO plans (id, tenant_id, scenario, algorithm, status, error, orders, delivered, percent_delivered, fitness, runtime_ms, stop, report, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        ON CONFLICT (id) DO UPDATE SET status=$5, error=$6, orders=$7, delivered=$8, percent_delivered=$9, fitness=$10, runtime_ms=$11, stop=$12, report=COALESCE($13, plans.report), updated_at=$15
        WHERE plans.tenant_id=$2
        RETURNING created_at`,
		pl.ID, pl.TenantID, pl.Scenario, pl.Algorithm, pl.Status, nullIfEmpty(pl.Error), pl.Orders, pl.Delivered, pl.PercentDelivered, pl.Fitness, pl.RuntimeMs, nullIfEmpty(pl.Stop), rawJSON(pl.Report), pl.CreatedAt, pl.UpdatedAt,
	).Scan(&pl.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Plan{}, ErrNotFound
	}
	return pl, err
}

func (p *Postgres) GetPlan(ctx context.Context, tenantID, id string) (Plan, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+planColumns+`, report FROM plans WHERE tenant_id=$1 AND id::text=$2`, tenantID, id)
	var pl Plan
	var report []byte
	if err := row.Scan(&pl.ID, &pl.TenantID, &pl.Scenario, &pl.Algorithm, &pl.Status, &pl.Error, &pl.Orders, &pl.Delivered, &pl.PercentDelivered, &pl.Fitness, &pl.RuntimeMs, &pl.Stop, &pl.CreatedAt, &pl.UpdatedAt, &report); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pl, ErrNotFound
		}
		return pl, err
	}
	if len(report) > 0 {
		pl.Report = json.RawMessage(report)
	}
	return pl, nil
}

func (p *Postgres) ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]Plan, string, error) {
	limit = clampLimit(limit)
	q := `SELECT ` + planColumns + ` FROM plans WHERE tenant_id=$1`
	args := []any{tenantID}
	if cursor != "" {
		q += ` AND id::text > $2 ORDER BY id LIMIT $3`
		args = append(args, cursor, limit)
	} else {
		q += ` ORDER BY id LIMIT $2`
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []Plan{}
	for rows.Next() {
		var pl Plan
		if err := rows.Scan(&pl.ID, &pl.TenantID, &pl.Scenario, &pl.Algorithm, &pl.Status, &pl.Error, &pl.Orders, &pl.Delivered, &pl.PercentDelivered, &pl.Fitness, &pl.RuntimeMs, &pl.Stop, &pl.CreatedAt, &pl.UpdatedAt); err != nil {
			return nil, "", err
		}
		out = append(out, pl)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) SavePlanMetrics(ctx context.Context, tenantID, scenario, algo string, metrics map[string]any) error {
	js, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO plan_metrics (tenant_id, scenario, algo, metrics) VALUES ($1,$2,$3,$4)
        ON CONFLICT (tenant_id, scenario, algo) DO UPDATE SET metrics=$4, created_at=now()`, tenantID, scenario, algo, string(js))
	return err
}

func (p *Postgres) ListPlanMetrics(ctx context.Context, tenantID, scenario, algo string) ([]map[string]any, error) {
	q := `SELECT algo, metrics FROM plan_metrics WHERE tenant_id=$1 AND scenario=$2`
	args := []any{tenantID, scenario}
	if algo != "" {
		q += ` AND algo=$3`
		args = append(args, algo)
	}
	rows, err := p.db.QueryContext(ctx, q+` ORDER BY algo`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		var a string
		var js []byte
		if err := rows.Scan(&a, &js); err != nil {
			return nil, err
		}
		item := map[string]any{}
		if err := json.Unmarshal(js, &item); err != nil {
			return nil, err
		}
		item["algo"] = a
		out = append(out, item)
	}
	return out, rows.Err()
}

func (p *Postgres) GetOptimizerConfig(ctx context.Context, tenantID string) (OptimizerConfig, error) {
	var cfg OptimizerConfig
	var js []byte
	if err := p.db.QueryRowContext(ctx, `SELECT config FROM optimizer_config WHERE tenant_id=$1`, tenantID).Scan(&js); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cfg, ErrNotFound
		}
		return cfg, err
	}
	err := json.Unmarshal(js, &cfg)
	return cfg, err
}

func (p *Postgres) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg OptimizerConfig) error {
	js, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO optimizer_config (tenant_id, config, updated_at) VALUES ($1, $2, now())
        ON CONFLICT (tenant_id) DO UPDATE SET config=$2, updated_at=now()`, tenantID, string(js))
	return err
}

// Webhook deliveries
func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, eventType, url, secret string, payload []byte) (string, error) {
	id, err := newID()
	if err != nil {
		return "", err
	}
	dk := computeDedupKey(payload)
	err = p.db.QueryRowContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now(),$7)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING
        RETURNING id::text`, id, tenantID, eventType, url, nullIfEmpty(secret), payload, dk).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		// duplicate: hand back the queued delivery
		err = p.db.QueryRowContext(ctx, `SELECT id::text FROM webhook_deliveries WHERE tenant_id=$1 AND event_type=$2 AND url=$3 AND dedup_key=$4`, tenantID, eventType, url, dk).Scan(&id)
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id::text=$1`, id, responseCode, latencyMs)
		return err
	}
	if nextAttemptAt == nil {
		t := time.Now().Add(time.Minute)
		nextAttemptAt = &t
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id::text=$1`,
		id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id::text=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs); err != nil {
		return err
	}
	// move to DLQ
	if _, err := tx.ExecContext(ctx, `INSERT INTO webhook_dlq (tenant_id, delivery_id, event_type, url, payload, attempts, last_error)
        SELECT tenant_id, id, event_type, url, payload, attempts, $2 FROM webhook_deliveries WHERE id::text=$1`, id, nullIfEmpty(lastError)); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	limit = clampLimit(limit)
	q := `SELECT id::text, event_type, status, attempts, next_attempt_at, COALESCE(last_error,''), url, COALESCE(response_code,0) FROM webhook_deliveries WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		q += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(` AND id::text > $%d`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, typ, st, lastErr, url string
		var attempts, code int
		var nextAt sql.NullTime
		if err := rows.Scan(&id, &typ, &st, &attempts, &nextAt, &lastErr, &url, &code); err != nil {
			return nil, "", err
		}
		m := map[string]any{"id": id, "eventType": typ, "status": st, "attempts": attempts, "url": url}
		if nextAt.Valid && st != "delivered" && st != "failed" {
			m["nextAttemptAt"] = nextAt.Time
		}
		if lastErr != "" {
			m["lastError"] = lastErr
		}
		if code != 0 {
			m["responseCode"] = code
		}
		out = append(out, m)
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func rawJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
