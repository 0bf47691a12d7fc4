package opt

import (
	"fmt"

	"morapack/internal/network"
	"morapack/internal/teg"
)

// SolveGreedy decodes a single earliest-deadline-first ordering. It is the
// baseline the search is compared against.
func SolveGreedy(g *teg.Graph, orders []network.PackageOrder, cfg Config) (Result, error) {
	cfg = cfg.withDefaults()
	dec, err := NewDecoder(g, orders)
	if err != nil {
		return Result{}, err
	}
	t0 := cfg.clock()
	prio := deadlinePriorities(orders)
	sol := dec.Decode(prio)
	took := cfg.clock().Sub(t0)
	res := Result{
		Algorithm:  Greedy,
		Best:       sol,
		Priorities: prio,
		Runtime:    took,
		Metrics: Metrics{
			Decodes:            1,
			InitialBestFitness: sol.Fitness,
			BestFitness:        sol.Fitness,
			Stop:               StopSinglePass,
		},
		Loads: g.Loads(),
	}
	if cfg.Logf != nil {
		cfg.Logf("opt: algo=%s orders=%d best_fitness=%.0f percent=%.2f dur=%dms",
			res.Algorithm, len(orders), sol.Fitness, sol.PercentDelivered, res.RuntimeMs())
	}
	return res, nil
}

// deadlinePriorities maps earlier deadlines to higher priorities in [0,1].
func deadlinePriorities(orders []network.PackageOrder) []float64 {
	prio := make([]float64, len(orders))
	for i, o := range orders {
		prio[i] = 1 - float64(o.Deadline)/float64(network.HorizonHours)
	}
	return prio
}

func (a Algorithm) Validate() error {
	switch a {
	case MPA, Greedy, "":
		return nil
	}
	return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, a)
}
