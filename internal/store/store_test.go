package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	bg, err := OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bg.Close() })
	return map[string]Store{"memory": NewMemory(), "badger": bg}
}

func TestPlanLifecycle(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p, err := s.SavePlan(ctx, Plan{TenantID: "t1", Scenario: "demo", Algorithm: "mpa", Orders: 24})
			require.NoError(t, err)
			require.NotEmpty(t, p.ID)
			assert.Equal(t, PlanRunning, p.Status)
			assert.False(t, p.CreatedAt.IsZero())

			p.Status = PlanCompleted
			p.Delivered = 20
			p.PercentDelivered = 83.33
			p.Report = json.RawMessage(`{"deliveries":[]}`)
			done, err := s.SavePlan(ctx, p)
			require.NoError(t, err)
			assert.Equal(t, p.CreatedAt.Unix(), done.CreatedAt.Unix())

			got, err := s.GetPlan(ctx, "t1", p.ID)
			require.NoError(t, err)
			assert.Equal(t, PlanCompleted, got.Status)
			assert.Equal(t, 20, got.Delivered)
			assert.JSONEq(t, `{"deliveries":[]}`, string(got.Report))

			_, err = s.GetPlan(ctx, "t2", p.ID)
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.GetPlan(ctx, "t1", "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestListPlansPaging(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var ids []string
			for i := 0; i < 5; i++ {
				p, err := s.SavePlan(ctx, Plan{TenantID: "t1", Algorithm: "greedy", Report: json.RawMessage(`{}`)})
				require.NoError(t, err)
				ids = append(ids, p.ID)
			}
			_, err := s.SavePlan(ctx, Plan{TenantID: "other", Algorithm: "mpa"})
			require.NoError(t, err)

			page1, next, err := s.ListPlans(ctx, "t1", "", 2)
			require.NoError(t, err)
			require.Len(t, page1, 2)
			assert.Equal(t, ids[0], page1[0].ID)
			assert.Equal(t, ids[1], next)
			assert.Empty(t, page1[0].Report, "list omits reports")

			var all []Plan
			all = append(all, page1...)
			for next != "" {
				var page []Plan
				page, next, err = s.ListPlans(ctx, "t1", next, 2)
				require.NoError(t, err)
				all = append(all, page...)
			}
			require.Len(t, all, 5)
			for i, p := range all {
				assert.Equal(t, ids[i], p.ID)
			}
		})
	}
}

func TestPlanMetricsUpsert(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.SavePlanMetrics(ctx, "t1", "demo", "mpa", map[string]any{"iterations": 10}))
			require.NoError(t, s.SavePlanMetrics(ctx, "t1", "demo", "mpa", map[string]any{"iterations": 12}))
			require.NoError(t, s.SavePlanMetrics(ctx, "t1", "demo", "greedy", map[string]any{"iterations": 0}))

			all, err := s.ListPlanMetrics(ctx, "t1", "demo", "")
			require.NoError(t, err)
			assert.Len(t, all, 2)

			mpa, err := s.ListPlanMetrics(ctx, "t1", "demo", "mpa")
			require.NoError(t, err)
			require.Len(t, mpa, 1)
			assert.EqualValues(t, 12, mpa[0]["iterations"])
			assert.Equal(t, "mpa", mpa[0]["algo"])

			none, err := s.ListPlanMetrics(ctx, "t1", "other", "")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestOptimizerConfig(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.GetOptimizerConfig(ctx, "t1")
			assert.ErrorIs(t, err, ErrNotFound)
			want := OptimizerConfig{Algorithm: "mpa", Population: 30, TimeBudgetMs: 5000}
			require.NoError(t, s.SaveOptimizerConfig(ctx, "t1", want))
			got, err := s.GetOptimizerConfig(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestWebhookQueue(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := s.EnqueueWebhook(ctx, "t1", "plan.completed", "http://hook", "k", []byte(`{"id":"evt_1"}`))
			require.NoError(t, err)
			dup, err := s.EnqueueWebhook(ctx, "t1", "plan.completed", "http://hook", "k", []byte(`{"id":"evt_1","retry":true}`))
			require.NoError(t, err)
			assert.Equal(t, id, dup, "same event id dedups")
			other, err := s.EnqueueWebhook(ctx, "t1", "plan.completed", "http://hook", "k", []byte(`{"id":"evt_2"}`))
			require.NoError(t, err)

			due, err := s.FetchDueWebhookDeliveries(ctx, 10)
			require.NoError(t, err)
			require.Len(t, due, 2)
			assert.Equal(t, "k", due[0].Secret)

			later := time.Now().Add(time.Hour)
			require.NoError(t, s.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 12))
			require.NoError(t, s.FailWebhookDelivery(ctx, other, "gone", 410, 3))
			due, err = s.FetchDueWebhookDeliveries(ctx, 10)
			require.NoError(t, err)
			assert.Empty(t, due)

			items, _, err := s.ListWebhookDeliveries(ctx, "t1", "", "", 10)
			require.NoError(t, err)
			require.Len(t, items, 2)
			assert.Equal(t, "retry", items[0]["status"])
			assert.Equal(t, "boom", items[0]["lastError"])
			failed, _, err := s.ListWebhookDeliveries(ctx, "t1", "failed", "", 10)
			require.NoError(t, err)
			require.Len(t, failed, 1)
			assert.Equal(t, other, failed[0]["id"])

			none, _, err := s.ListWebhookDeliveries(ctx, "t2", "", "", 10)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestMarkUnknownDelivery(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := s.MarkWebhookDelivery(context.Background(), "nope", true, nil, "", 200, 1)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	b, err := OpenBadger(dir)
	require.NoError(t, err)
	p, err := b.SavePlan(context.Background(), Plan{TenantID: "t1", Algorithm: "mpa"})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = OpenBadger(dir)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()
	got, err := b.GetPlan(context.Background(), "t1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.NoError(t, b.Ping(context.Background()))
}

func TestNewIDsAreOrdered(t *testing.T) {
	prev := ""
	for i := 0; i < 50; i++ {
		id, err := newID()
		require.NoError(t, err)
		assert.Greater(t, id, prev, fmt.Sprintf("id %d", i))
		prev = id
	}
}
