package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"morapack/internal/metrics"
	"morapack/internal/network"
	"morapack/internal/opt"
	"morapack/internal/scenario"
	"morapack/internal/store"
	"morapack/internal/teg"
)

// planJob is a fully resolved run: network, orders and optimizer settings.
type planJob struct {
	tenant   string
	scenario string
	net      network.Network
	orders   []network.PackageOrder
	algo     opt.Algorithm
	cfg      opt.Config
}

// planReport is the document stored with a finished plan.
type planReport struct {
	Config     runConfig              `json:"config"`
	Deliveries []opt.Delivery         `json:"deliveries"`
	Backlog    []network.PackageOrder `json:"backlog"`
	Loads      []teg.Load             `json:"loads"`
	Metrics    opt.Metrics            `json:"metrics"`
}

type runConfig struct {
	Population      int   `json:"population"`
	TimeBudgetMs    int64 `json:"timeBudgetMs"`
	MaxIterations   int   `json:"maxIterations"`
	NoImprovementMs int64 `json:"noImprovementMs"`
	Seed            int64 `json:"seed"`
}

// resolve layers service defaults, the tenant's optimizer config and the
// request into a job, and validates the result before any search starts.
func (s *Server) resolve(ctx context.Context, tenant string, req planRequest) (planJob, error) {
	tc, err := s.Store.GetOptimizerConfig(ctx, tenant)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return planJob{}, err
	}
	job := planJob{tenant: tenant, scenario: req.Scenario}
	job.algo = opt.Algorithm(firstNonEmpty(req.Algorithm, tc.Algorithm, string(opt.MPA)))
	if err := job.algo.Validate(); err != nil {
		return planJob{}, err
	}
	budget := firstPositive(req.TimeBudgetMs, tc.TimeBudgetMs, s.Cfg.TimeBudgetMs)
	if budget > s.Cfg.MaxTimeBudgetMs {
		return planJob{}, fmt.Errorf("%w: time budget %dms exceeds %dms", opt.ErrInvalidConfig, budget, s.Cfg.MaxTimeBudgetMs)
	}
	job.cfg = opt.Config{
		Population:          firstPositive(req.Population, tc.Population, s.Cfg.Population),
		TimeBudget:          time.Duration(budget) * time.Millisecond,
		Seed:                req.Seed,
		MaxIterations:       firstPositive(req.MaxIterations, tc.MaxIterations),
		NoImprovementWindow: time.Duration(firstPositive(req.NoImprovementMs, tc.NoImprovementMs)) * time.Millisecond,
		Logf:                log.Printf,
	}
	if err := job.cfg.Validate(); err != nil && job.algo == opt.MPA {
		return planJob{}, err
	}

	if req.Network != nil {
		job.net = *req.Network
		if job.scenario == "" {
			job.scenario = "custom"
		}
	} else {
		job.net = scenario.DemoNetwork()
		job.scenario = scenario.DemoName
	}
	if err := job.net.Validate(); err != nil {
		return planJob{}, err
	}
	if len(req.Orders) > 0 {
		job.orders = req.Orders
		if err := job.net.ValidateOrders(job.orders); err != nil {
			return planJob{}, err
		}
	} else {
		n := firstPositive(req.OrderCount, defaultOrderCount)
		if job.orders, err = scenario.GenerateOrders(job.net, n, req.Seed); err != nil {
			return planJob{}, fmt.Errorf("%w: %v", network.ErrInvalidNetwork, err)
		}
	}
	return job, nil
}

// execute runs job on a fresh graph, stores the report and announces the
// outcome. It always returns the stored plan, failed or not.
func (s *Server) execute(ctx context.Context, job planJob, plan store.Plan) store.Plan {
	s.Broker.Publish(plan.ID, SSEEvent{Type: EventPlanStarted, Data: map[string]any{
		"planId": plan.ID, "algorithm": job.algo, "orders": len(job.orders), "scenario": job.scenario,
	}})
	cfg := job.cfg
	cfg.Observer = func(p opt.Progress) {
		s.Broker.Publish(plan.ID, SSEEvent{Type: EventPlanElite, Data: map[string]any{
			"planId":           plan.ID,
			"iteration":        p.Iteration,
			"elapsedMs":        p.Elapsed.Milliseconds(),
			"fitness":          p.Fitness,
			"percentDelivered": p.PercentDelivered,
			"phase":            p.Phase.String(),
		}})
	}

	res, err := s.run(ctx, job, cfg)
	if err != nil {
		plan.Status = store.PlanFailed
		plan.Error = err.Error()
	} else {
		plan = completePlan(plan, job, cfg, res)
	}

	// the request context may be gone; the report is still recorded
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	saved, serr := s.Store.SavePlan(sctx, plan)
	if serr != nil {
		log.Printf("api: save plan id=%s: %v", plan.ID, serr)
		saved = plan
	}
	if err == nil {
		s.recordRun(sctx, job, saved, res)
	}
	evt := finalEvent(saved)
	s.Broker.Publish(saved.ID, evt)
	if _, werr := s.Pub.Emit(sctx, job.tenant, evt.Type, evt.Data); werr != nil {
		log.Printf("api: webhook enqueue id=%s: %v", saved.ID, werr)
	}
	return saved
}

func (s *Server) run(ctx context.Context, job planJob, cfg opt.Config) (opt.Result, error) {
	g, err := teg.New(job.net)
	if err != nil {
		return opt.Result{}, err
	}
	return opt.Run(ctx, job.algo, g, job.orders, cfg)
}

func completePlan(plan store.Plan, job planJob, cfg opt.Config, res opt.Result) store.Plan {
	plan.Status = store.PlanCompleted
	plan.Algorithm = string(res.Algorithm)
	plan.Orders = len(job.orders)
	plan.Delivered = res.Best.Delivered()
	plan.PercentDelivered = res.Best.PercentDelivered
	plan.Fitness = res.Best.Fitness
	plan.RuntimeMs = res.RuntimeMs()
	plan.Stop = string(res.Metrics.Stop)
	rep := planReport{
		Config: runConfig{
			Population:      cfg.Population,
			TimeBudgetMs:    cfg.TimeBudget.Milliseconds(),
			MaxIterations:   cfg.MaxIterations,
			NoImprovementMs: cfg.NoImprovementWindow.Milliseconds(),
			Seed:            cfg.Seed,
		},
		Deliveries: res.Best.Deliveries,
		Backlog:    res.Best.Backlog,
		Loads:      res.Loads,
		Metrics:    res.Metrics,
	}
	if rep.Backlog == nil {
		rep.Backlog = []network.PackageOrder{}
	}
	if rep.Loads == nil {
		rep.Loads = []teg.Load{}
	}
	if b, err := json.Marshal(rep); err == nil {
		plan.Report = b
	}
	return plan
}

func (s *Server) recordRun(ctx context.Context, job planJob, p store.Plan, res opt.Result) {
	m := res.Metrics
	metrics.ObservePlan(p.Algorithm, string(m.Stop), res.Runtime.Seconds(), p.PercentDelivered, m.Decodes, m.EliteUpdates)
	opt.RecordMetrics(job.tenant, job.scenario, res.Algorithm, m)
	item := map[string]any{
		"planId":             p.ID,
		"iterations":         m.Iterations,
		"decodes":            m.Decodes,
		"improvements":       m.Improvements,
		"eliteUpdates":       m.EliteUpdates,
		"phaseIterations":    m.PhaseIterations[:],
		"initialBestFitness": m.InitialBestFitness,
		"bestFitness":        m.BestFitness,
		"stop":               m.Stop,
		"percentDelivered":   p.PercentDelivered,
		"runtimeMs":          p.RuntimeMs,
	}
	if err := s.Store.SavePlanMetrics(ctx, job.tenant, job.scenario, p.Algorithm, item); err != nil {
		log.Printf("api: save plan metrics id=%s: %v", p.ID, err)
	}
}

func finalEvent(p store.Plan) SSEEvent {
	data := map[string]any{
		"planId":           p.ID,
		"status":           p.Status,
		"algorithm":        p.Algorithm,
		"orders":           p.Orders,
		"delivered":        p.Delivered,
		"percentDelivered": p.PercentDelivered,
		"runtimeMs":        p.RuntimeMs,
		"stop":             p.Stop,
	}
	if p.Status == store.PlanFailed {
		data["error"] = p.Error
		return SSEEvent{Type: EventPlanFailed, Data: data}
	}
	return SSEEvent{Type: EventPlanCompleted, Data: data}
}

// PlansHandler handles POST/GET /v1/plans
func (s *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		pr, ok := s.principal(w, r, planners)
		if !ok {
			return
		}
		var req planRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validatePlanRequest(&req, s.Cfg.MaxTimeBudgetMs); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid plan request", err.Error(), r.URL.Path)
			return
		}
		job, err := s.resolve(r.Context(), pr.Tenant, req)
		if err != nil {
			status := http.StatusBadRequest
			if !errors.Is(err, opt.ErrInvalidConfig) && !errors.Is(err, network.ErrInvalidNetwork) {
				status = http.StatusInternalServerError
			}
			writeProblem(w, status, "Invalid plan request", err.Error(), r.URL.Path)
			return
		}
		plan, err := s.Store.SavePlan(r.Context(), store.Plan{
			TenantID: pr.Tenant, Scenario: job.scenario, Algorithm: string(job.algo), Orders: len(job.orders), Status: store.PlanRunning,
		})
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create plan failed", err.Error(), r.URL.Path)
			return
		}
		if req.Async {
			s.startAsync(job, plan)
			writeJSON(w, http.StatusAccepted, map[string]any{
				"id":     plan.ID,
				"status": plan.Status,
				"links": map[string]string{
					"self":   "/v1/plans/" + plan.ID,
					"events": "/v1/plans/" + plan.ID + "/events/stream",
				},
			})
			return
		}
		writeJSON(w, http.StatusOK, s.execute(r.Context(), job, plan))
	case http.MethodGet:
		pr, ok := s.principal(w, r, anyRole)
		if !ok {
			return
		}
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListPlans(r.Context(), pr.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List plans failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) startAsync(job planJob, plan store.Plan) {
	ctx, cancel := context.WithCancel(s.base)
	s.mu.Lock()
	s.runs[plan.ID] = cancel
	s.mu.Unlock()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.runs, plan.ID)
			s.mu.Unlock()
			cancel()
		}()
		s.execute(ctx, job, plan)
	}()
}

// cancelRun stops an in-flight async run; the search returns its elite so far.
func (s *Server) cancelRun(id string) bool {
	s.mu.Lock()
	cancel, ok := s.runs[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// PlanByIDHandler handles GET /v1/plans/{id}, GET /v1/plans/{id}/events/stream
// and POST /v1/plans/{id}/cancel
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	pr, ok := s.principal(w, r, anyRole)
	if !ok {
		return
	}
	switch {
	case len(parts) == 3 && parts[1] == "events" && parts[2] == "stream":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.streamPlanEvents(w, r, pr.Tenant, id)
	case len(parts) == 2 && parts[1] == "cancel":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !pr.CanPlan() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", r.URL.Path)
			return
		}
		p, err := s.Store.GetPlan(r.Context(), pr.Tenant, id)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Plan not found", err.Error(), r.URL.Path)
			return
		}
		if p.Status != store.PlanRunning || !s.cancelRun(id) {
			writeProblem(w, http.StatusConflict, "Plan not running", "status "+p.Status, r.URL.Path)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "canceled": true})
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p, err := s.Store.GetPlan(r.Context(), pr.Tenant, id)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Plan not found", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, p)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
