package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"morapack/internal/opt"
	"morapack/internal/scenario"
	"morapack/internal/store"
	"morapack/internal/teg"
)

// effectiveConfig is the tenant's optimizer config with service defaults
// filled in.
func (s *Server) effectiveConfig(ctx context.Context, tenant string) (store.OptimizerConfig, error) {
	tc, err := s.Store.GetOptimizerConfig(ctx, tenant)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return store.OptimizerConfig{}, err
	}
	return store.OptimizerConfig{
		Algorithm:       firstNonEmpty(tc.Algorithm, string(opt.MPA)),
		Population:      firstPositive(tc.Population, s.Cfg.Population),
		TimeBudgetMs:    firstPositive(tc.TimeBudgetMs, s.Cfg.TimeBudgetMs),
		MaxIterations:   tc.MaxIterations,
		NoImprovementMs: tc.NoImprovementMs,
	}, nil
}

func (s *Server) validateOptimizerConfig(c store.OptimizerConfig) error {
	if err := opt.Algorithm(c.Algorithm).Validate(); err != nil {
		return err
	}
	if c.Population != 0 && c.Population < opt.MinPopulation {
		return fmt.Errorf("population must be >= %d", opt.MinPopulation)
	}
	minBudget := int(opt.MinTimeBudget.Milliseconds())
	if c.TimeBudgetMs != 0 && (c.TimeBudgetMs < minBudget || c.TimeBudgetMs > s.Cfg.MaxTimeBudgetMs) {
		return fmt.Errorf("timeBudgetMs must be in [%d,%d]", minBudget, s.Cfg.MaxTimeBudgetMs)
	}
	if c.MaxIterations < 0 || c.NoImprovementMs < 0 {
		return fmt.Errorf("maxIterations and noImprovementMs must be >= 0")
	}
	return nil
}

// OptimizerConfigHandler handles GET /v1/optimizer/config
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr, ok := s.principal(w, r, anyRole)
	if !ok {
		return
	}
	cfg, err := s.effectiveConfig(r.Context(), pr.Tenant)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load config failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"config": cfg, "maxTimeBudgetMs": s.Cfg.MaxTimeBudgetMs})
}

// AdminOptimizerConfigHandler handles GET/PUT /v1/admin/optimizer/config
func (s *Server) AdminOptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	pr, ok := s.principal(w, r, admins)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.Store.GetOptimizerConfig(r.Context(), pr.Tenant)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusInternalServerError, "Load config failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"config": cfg})
	case http.MethodPut:
		var body struct {
			Config *store.OptimizerConfig `json:"config"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Config == nil {
			writeProblem(w, http.StatusBadRequest, "Missing config", "", r.URL.Path)
			return
		}
		if err := s.validateOptimizerConfig(*body.Config); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid config", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.SaveOptimizerConfig(r.Context(), pr.Tenant, *body.Config); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// PlanMetricsHandler handles GET /v1/admin/plan-metrics?scenario=&algo=&includeSnapshots=
func (s *Server) PlanMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr, ok := s.principal(w, r, admins)
	if !ok {
		return
	}
	q := r.URL.Query()
	scen := firstNonEmpty(q.Get("scenario"), scenario.DemoName)
	algo := q.Get("algo")
	withSnaps := strings.EqualFold(q.Get("includeSnapshots"), "true") || q.Get("includeSnapshots") == "1"

	// Prefer stored metrics; fall back to this process's latest runs
	stored, err := s.Store.ListPlanMetrics(r.Context(), pr.Tenant, scen, algo)
	items := make([]map[string]any, 0, len(stored))
	for _, it := range stored {
		cp := make(map[string]any, len(it)+1)
		for k, v := range it {
			cp[k] = v
		}
		items = append(items, cp)
	}
	mem := opt.GetMetrics(pr.Tenant, scen)
	if err != nil || len(items) == 0 {
		items = items[:0]
		for a, m := range mem {
			if algo != "" && string(a) != algo {
				continue
			}
			items = append(items, map[string]any{
				"algo":               string(a),
				"iterations":         m.Iterations,
				"decodes":            m.Decodes,
				"improvements":       m.Improvements,
				"eliteUpdates":       m.EliteUpdates,
				"phaseIterations":    m.PhaseIterations[:],
				"initialBestFitness": m.InitialBestFitness,
				"bestFitness":        m.BestFitness,
				"stop":               m.Stop,
			})
		}
	}
	if withSnaps {
		for i := range items {
			a, _ := items[i]["algo"].(string)
			if m, ok := mem[opt.Algorithm(a)]; ok && len(m.Snapshots) > 0 {
				items[i]["snapshots"] = m.Snapshots
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenario": scen, "items": items})
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr, ok := s.principal(w, r, admins)
	if !ok {
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), pr.Tenant, status, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// DemoScenarioHandler handles GET /v1/scenarios/demo
func (s *Server) DemoScenarioHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.principal(w, r, anyRole); !ok {
		return
	}
	net := scenario.DemoNetwork()
	g, err := teg.New(net)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Build graph failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":         scenario.DemoName,
		"network":      net,
		"horizonHours": teg.Horizon,
		"nodes":        g.NodeCount(),
		"instances":    len(g.Instances()),
		"deadlines": map[string]int{
			"sameContinent":  scenario.DeadlineSameContinent,
			"crossContinent": scenario.DeadlineCrossContinent,
		},
	})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
