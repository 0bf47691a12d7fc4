package opt

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"morapack/internal/network"
	"morapack/internal/teg"
)

// ErrInvalidConfig is returned for run configurations the optimizer refuses.
var ErrInvalidConfig = errors.New("invalid optimizer config")

const (
	DefaultPopulation = 40
	MinPopulation     = 4
	DefaultTimeBudget = 45 * time.Second
	MinTimeBudget     = time.Second
	minStagnation     = 2 * time.Second
)

type Algorithm string

const (
	MPA    Algorithm = "mpa"
	Greedy Algorithm = "greedy"
)

// Config controls one optimizer run.
type Config struct {
	Population int
	TimeBudget time.Duration
	Seed       int64
	// MaxIterations caps search iterations; 0 means unbounded.
	MaxIterations int
	// NoImprovementWindow stops the run once the elite has not improved for
	// this long. Zero selects max(2s, 30% of TimeBudget).
	NoImprovementWindow time.Duration
	// Observer, if set, is called after every elite improvement.
	Observer func(Progress)
	// Logf, if set, receives one summary line per run.
	Logf func(format string, args ...any)

	clock func() time.Time
}

// DefaultConfig returns the configuration used by the weekly experiment.
func DefaultConfig() Config {
	return Config{Population: DefaultPopulation, TimeBudget: DefaultTimeBudget}
}

func (c Config) withDefaults() Config {
	if c.Population == 0 {
		c.Population = DefaultPopulation
	}
	if c.NoImprovementWindow == 0 {
		c.NoImprovementWindow = max(minStagnation, c.TimeBudget*3/10)
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	return c
}

// Validate reports configuration errors before any search starts.
func (c Config) Validate() error {
	if c.Population < MinPopulation {
		return fmt.Errorf("%w: population %d must be >= %d", ErrInvalidConfig, c.Population, MinPopulation)
	}
	if c.TimeBudget < MinTimeBudget {
		return fmt.Errorf("%w: time budget %s must be >= %s", ErrInvalidConfig, c.TimeBudget, MinTimeBudget)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("%w: maxIterations must be >= 0", ErrInvalidConfig)
	}
	if c.NoImprovementWindow < 0 {
		return fmt.Errorf("%w: no-improvement window must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Phase is the search regime selected by elapsed fraction of the budget.
type Phase int

const (
	Explore Phase = iota
	Transition
	Exploit
)

func (p Phase) String() string {
	switch p {
	case Explore:
		return "explore"
	case Transition:
		return "transition"
	default:
		return "exploit"
	}
}

func phaseAt(progress float64) Phase {
	switch {
	case progress < 1.0/3.0:
		return Explore
	case progress < 2.0/3.0:
		return Transition
	default:
		return Exploit
	}
}

// perturb applies the phase's move to x in place.
func perturb(x, elite []float64, phase Phase, rng *rand.Rand) {
	switch phase {
	case Explore:
		brownianMove(x, rng, 0.10)
	case Transition:
		brownianMove(x, rng, 0.05)
		levyJump(x, rng, 0.02)
	default:
		pullToward(x, elite)
		levyJump(x, rng, 0.01)
	}
}

type StopReason string

const (
	StopTimeLimit     StopReason = "time_limit"
	StopMaxIterations StopReason = "max_iterations"
	StopStagnation    StopReason = "no_improvement"
	StopCanceled      StopReason = "canceled"
	StopSinglePass    StopReason = "single_pass"
)

// Progress describes an elite improvement.
type Progress struct {
	Iteration        int
	Elapsed          time.Duration
	Fitness          float64
	PercentDelivered float64
	Phase            Phase
}

type EliteSnapshot struct {
	Iteration int     `json:"iteration"`
	ElapsedMs int64   `json:"elapsedMs"`
	Fitness   float64 `json:"fitness"`
	Phase     string  `json:"phase"`
}

type Metrics struct {
	Iterations         int             `json:"iterations"`
	Decodes            int             `json:"decodes"`
	Improvements       int             `json:"improvements"`
	EliteUpdates       int             `json:"eliteUpdates"`
	PhaseIterations    [3]int          `json:"phaseIterations"`
	InitialBestFitness float64         `json:"initialBestFitness"`
	BestFitness        float64         `json:"bestFitness"`
	Stop               StopReason      `json:"stop"`
	Snapshots          []EliteSnapshot `json:"snapshots,omitempty"`
}

// Result is the best plan found by a run. Loads describe the flight usage
// of Best; the graph is left holding that plan's reservations until the next
// run on it resets capacities.
type Result struct {
	Algorithm  Algorithm
	Best       Solution
	Priorities []float64
	Runtime    time.Duration
	Metrics    Metrics
	Loads      []teg.Load
}

func (r Result) RuntimeMs() int64 { return r.Runtime.Milliseconds() }

// Run dispatches to the requested algorithm.
func Run(ctx context.Context, algo Algorithm, g *teg.Graph, orders []network.PackageOrder, cfg Config) (Result, error) {
	switch algo {
	case MPA, "":
		return Solve(ctx, g, orders, cfg)
	case Greedy:
		return SolveGreedy(g, orders, cfg)
	default:
		return Result{}, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, algo)
	}
}

// Solve runs the marine-predators search over order priorities. The graph
// is reset to full capacity before every decode. The run ends on
// the time budget, the iteration cap, the no-improvement window or ctx.
func Solve(ctx context.Context, g *teg.Graph, orders []network.PackageOrder, cfg Config) (Result, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	dec, err := NewDecoder(g, orders)
	if err != nil {
		return Result{}, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	now := cfg.clock
	t0 := now()

	n := len(orders)
	pop := make([][]float64, cfg.Population)
	fit := make([]Solution, cfg.Population)
	for p := range pop {
		pop[p] = make([]float64, n)
		for i := range pop[p] {
			pop[p][i] = rng.Float64()
		}
	}
	var m Metrics
	eliteIdx := 0
	for p := range pop {
		fit[p] = dec.Decode(pop[p])
		m.Decodes++
		if fit[p].Fitness > fit[eliteIdx].Fitness {
			eliteIdx = p
		}
	}
	elite := slices.Clone(pop[eliteIdx])
	best := fit[eliteIdx]
	m.InitialBestFitness = best.Fitness
	lastImprove := t0

	for {
		t := now()
		elapsed := t.Sub(t0)
		if ctx.Err() != nil {
			m.Stop = StopCanceled
			break
		}
		if elapsed >= cfg.TimeBudget {
			m.Stop = StopTimeLimit
			break
		}
		if cfg.MaxIterations > 0 && m.Iterations >= cfg.MaxIterations {
			m.Stop = StopMaxIterations
			break
		}
		if t.Sub(lastImprove) >= cfg.NoImprovementWindow {
			m.Stop = StopStagnation
			break
		}
		m.Iterations++
		phase := phaseAt(float64(elapsed) / float64(cfg.TimeBudget))
		m.PhaseIterations[phase]++

		for p := range pop {
			cand := slices.Clone(pop[p])
			perturb(cand, elite, phase, rng)
			clamp01(cand)
			s := dec.Decode(cand)
			m.Decodes++
			if s.Fitness <= fit[p].Fitness {
				continue
			}
			pop[p], fit[p] = cand, s
			m.Improvements++
			if s.Fitness > best.Fitness {
				best = s
				copy(elite, cand)
				lastImprove = now()
				m.EliteUpdates++
				pr := Progress{Iteration: m.Iterations, Elapsed: lastImprove.Sub(t0), Fitness: s.Fitness, PercentDelivered: s.PercentDelivered, Phase: phase}
				m.Snapshots = append(m.Snapshots, EliteSnapshot{Iteration: pr.Iteration, ElapsedMs: pr.Elapsed.Milliseconds(), Fitness: pr.Fitness, Phase: phase.String()})
				if cfg.Observer != nil {
					cfg.Observer(pr)
				}
			}
		}
	}
	took := now().Sub(t0)

	// leave the graph loaded with the elite plan
	final := dec.Decode(elite)
	m.BestFitness = final.Fitness
	res := Result{
		Algorithm:  MPA,
		Best:       final,
		Priorities: elite,
		Runtime:    took,
		Metrics:    m,
		Loads:      g.Loads(),
	}
	if cfg.Logf != nil {
		cfg.Logf("opt: algo=%s orders=%d iterations=%d decodes=%d best_fitness=%.0f percent=%.2f stop=%s dur=%dms",
			res.Algorithm, n, m.Iterations, m.Decodes, m.BestFitness, final.PercentDelivered, m.Stop, res.RuntimeMs())
	}
	return res, nil
}
