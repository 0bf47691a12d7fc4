package api

import (
	"net/http"
	"time"

	"morapack/internal/buildinfo"
)

// DebugJSON reports build metadata and the non-secret service settings.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.principal(w, r, admins); !ok {
		return
	}
	s.mu.Lock()
	inflight := len(s.runs)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                       s.Cfg.Port,
			"AUTH_MODE":                  s.Cfg.AuthMode,
			"RATE_RPS":                   s.Cfg.RateRPS,
			"RATE_BURST":                 s.Cfg.RateBurst,
			"WEBHOOK_MAX_ATTEMPTS":       s.Cfg.WebhookMaxAttempts,
			"PLANNER_POPULATION":         s.Cfg.Population,
			"PLANNER_TIME_BUDGET_MS":     s.Cfg.TimeBudgetMs,
			"PLANNER_MAX_TIME_BUDGET_MS": s.Cfg.MaxTimeBudgetMs,
			"HAS_DATABASE_URL":           s.Cfg.DatabaseURL != "",
			"HAS_BADGER_PATH":            s.Cfg.BadgerPath != "",
			"HAS_REDIS_URL":              s.Cfg.RedisURL != "",
			"HAS_WEBHOOK_URL":            s.Cfg.WebhookURL != "",
		},
		"inflightRuns": inflight,
	})
}
