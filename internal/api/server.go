package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"morapack/internal/auth"
	"morapack/internal/config"
	"morapack/internal/store"
	"morapack/internal/webhooks"
)

type Server struct {
	Cfg    config.Config
	Store  store.Store
	Pub    *webhooks.Publisher
	Auth   *auth.Verifier
	Broker EventBroker

	limiter *tenantLimiter

	// in-flight async runs
	mu     sync.Mutex
	runs   map[string]context.CancelFunc
	wg     sync.WaitGroup
	base   context.Context
	cancel context.CancelFunc
}

// NewServer wires the store, broker and publisher selected by cfg.
// DATABASE_URL wins over BADGER_PATH; with neither the store is in memory.
func NewServer(cfg config.Config) (*Server, error) {
	s, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL)
		if err != nil {
			log.Printf("api: redis broker disabled: %v", err)
		} else {
			broker = rb
		}
	}
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		Cfg:     cfg,
		Store:   s,
		Pub:     webhooks.NewPublisher(s, cfg.WebhookURL, cfg.WebhookSecret),
		Auth:    auth.NewVerifier(cfg.AuthMode, cfg.AuthHMACSecret),
		Broker:  broker,
		limiter: newTenantLimiter(cfg.RateRPS, cfg.RateBurst),
		runs:    map[string]context.CancelFunc{},
		base:    base,
		cancel:  cancel,
	}, nil
}

func openStore(cfg config.Config) (store.Store, error) {
	switch {
	case strings.TrimSpace(cfg.DatabaseURL) != "":
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.DBMigrate {
			if err := sp.Migrate(context.Background()); err != nil {
				_ = sp.Close()
				return nil, fmt.Errorf("api: migrate: %w", err)
			}
		}
		return sp, nil
	case cfg.BadgerPath != "":
		return store.OpenBadger(cfg.BadgerPath)
	default:
		return store.NewMemory(), nil
	}
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Cfg.WebhookMaxAttempts)
}

// Shutdown cancels in-flight runs, waits for them to record their reports and
// closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if c, ok := s.Broker.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	return s.Store.Close()
}

// Routes returns the service mux wrapped in logging and metrics middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Plans
	mux.Handle("/v1/plans", s.rateLimit(http.HandlerFunc(s.PlansHandler)))
	mux.HandleFunc("/v1/plans/ws", s.PlanWSHandler)
	mux.HandleFunc("/v1/plans/", s.PlanByIDHandler) // includes /events/stream and /cancel
	mux.HandleFunc("/v1/scenarios/demo", s.DemoScenarioHandler)

	// Optimizer
	mux.HandleFunc("/v1/optimizer/config", s.OptimizerConfigHandler)
	mux.HandleFunc("/v1/admin/optimizer/config", s.AdminOptimizerConfigHandler)
	mux.HandleFunc("/v1/admin/plan-metrics", s.PlanMetricsHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)

	// Health
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/debug/info", s.DebugJSON)

	return logMiddleware(mux)
}
