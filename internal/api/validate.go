package api

import (
	"fmt"

	"morapack/internal/network"
	"morapack/internal/opt"
	"morapack/internal/scenario"
)

const (
	defaultOrderCount = 24
	maxOrderCount     = 5000
)

// planRequest is the body of POST /v1/plans.
type planRequest struct {
	Scenario        string                 `json:"scenario,omitempty"`
	Network         *network.Network       `json:"network,omitempty"`
	Orders          []network.PackageOrder `json:"orders,omitempty"`
	OrderCount      int                    `json:"orderCount,omitempty"`
	Seed            int64                  `json:"seed,omitempty"`
	Algorithm       string                 `json:"algorithm,omitempty"`
	Population      int                    `json:"population,omitempty"`
	TimeBudgetMs    int                    `json:"timeBudgetMs,omitempty"`
	MaxIterations   int                    `json:"maxIterations,omitempty"`
	NoImprovementMs int                    `json:"noImprovementMs,omitempty"`
	Async           bool                   `json:"async,omitempty"`
}

func validatePlanRequest(req *planRequest, maxBudgetMs int) error {
	if err := opt.Algorithm(req.Algorithm).Validate(); err != nil {
		return err
	}
	if req.Network == nil && req.Scenario != "" && req.Scenario != scenario.DemoName {
		return fmt.Errorf("unknown scenario %q (send a network or use %q)", req.Scenario, scenario.DemoName)
	}
	if req.OrderCount < 0 || req.OrderCount > maxOrderCount {
		return fmt.Errorf("orderCount must be in [0,%d]", maxOrderCount)
	}
	if len(req.Orders) > maxOrderCount {
		return fmt.Errorf("at most %d orders per plan", maxOrderCount)
	}
	if req.Population < 0 {
		return fmt.Errorf("population must be >= 0")
	}
	if req.TimeBudgetMs < 0 || req.TimeBudgetMs > maxBudgetMs {
		return fmt.Errorf("timeBudgetMs must be in [0,%d]", maxBudgetMs)
	}
	if req.MaxIterations < 0 {
		return fmt.Errorf("maxIterations must be >= 0")
	}
	if req.NoImprovementMs < 0 {
		return fmt.Errorf("noImprovementMs must be >= 0")
	}
	return nil
}
