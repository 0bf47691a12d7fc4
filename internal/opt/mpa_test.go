package opt

import (
	"context"
	"errors"
	"testing"
	"time"

	"morapack/internal/network"
	"morapack/internal/teg"
)

// contested builds a network with one seat per daily departure where a
// loose order routed before a tight one steals the only departure the tight
// order can use.
func contested(t *testing.T) (*teg.Graph, []network.PackageOrder) {
	t.Helper()
	g, err := teg.New(network.Network{
		Airports: []network.Airport{{Code: "A"}, {Code: "B"}, {Code: "C"}},
		Flights: []network.Flight{
			{ID: "A-B", Origin: "A", Destination: "B", DurationHours: 12, Seats: 1, PerDay: 1},
			{ID: "A-C", Origin: "A", Destination: "C", DurationHours: 12, Seats: 1, PerDay: 1},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	orders := []network.PackageOrder{
		{ID: "loose-b", Origin: "A", Destination: "B", Deadline: 40, Size: 1},
		{ID: "tight-b", Origin: "A", Destination: "B", Deadline: 20, Size: 1},
		{ID: "loose-c", Origin: "A", Destination: "C", Deadline: 40, Size: 1},
		{ID: "tight-c", Origin: "A", Destination: "C", Deadline: 20, Size: 1},
	}
	return g, orders
}

func longBudget(seed int64, iters int) Config {
	return Config{Population: 6, TimeBudget: time.Hour, Seed: seed, MaxIterations: iters}
}

func TestConfigValidate(t *testing.T) {
	bad := []Config{
		{Population: 3, TimeBudget: time.Second},
		{Population: 4, TimeBudget: 999 * time.Millisecond},
		{Population: 4, TimeBudget: time.Second, MaxIterations: -1},
	}
	for _, c := range bad {
		if err := c.withDefaults().Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%+v: expected ErrInvalidConfig, got %v", c, err)
		}
	}
	c := Config{TimeBudget: 10 * time.Second}.withDefaults()
	if c.Population != DefaultPopulation {
		t.Fatalf("default population: %d", c.Population)
	}
	if c.NoImprovementWindow != 3*time.Second {
		t.Fatalf("window for 10s budget should be 3s, got %s", c.NoImprovementWindow)
	}
	if w := (Config{TimeBudget: time.Second}).withDefaults().NoImprovementWindow; w != 2*time.Second {
		t.Fatalf("window floor is 2s, got %s", w)
	}
}

func TestSolveRejectsBadConfigBeforeSearch(t *testing.T) {
	g, orders := contested(t)
	called := false
	cfg := Config{Population: 2, TimeBudget: time.Second, Observer: func(Progress) { called = true }}
	if _, err := Solve(context.Background(), g, orders, cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if called {
		t.Fatal("observer must not run for rejected config")
	}
}

func TestSolveDeterministicForSeed(t *testing.T) {
	g1, orders := contested(t)
	g2, _ := contested(t)
	a, err := Solve(context.Background(), g1, orders, longBudget(42, 15))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Solve(context.Background(), g2, orders, longBudget(42, 15))
	if err != nil {
		t.Fatal(err)
	}
	if a.Best.Fitness != b.Best.Fitness || a.Metrics.Decodes != b.Metrics.Decodes || a.Metrics.EliteUpdates != b.Metrics.EliteUpdates {
		t.Fatalf("same seed diverged: %+v vs %+v", a.Metrics, b.Metrics)
	}
	for i := range a.Priorities {
		if a.Priorities[i] != b.Priorities[i] {
			t.Fatalf("priority %d differs", i)
		}
	}
	if a.Metrics.Stop != StopMaxIterations || a.Metrics.Iterations != 15 {
		t.Fatalf("stop=%s iterations=%d", a.Metrics.Stop, a.Metrics.Iterations)
	}
	if a.Metrics.PhaseIterations[Explore] != 15 {
		t.Fatalf("hour budget keeps every iteration in explore: %v", a.Metrics.PhaseIterations)
	}
	// population init plus one decode per individual per iteration plus the final re-decode
	if want := 6 + 6*15 + 1; a.Metrics.Decodes != want {
		t.Fatalf("decodes=%d want %d", a.Metrics.Decodes, want)
	}
}

func TestSolvePlanConsistency(t *testing.T) {
	g, orders := contested(t)
	var seen []float64
	cfg := longBudget(7, 30)
	cfg.Observer = func(p Progress) { seen = append(seen, p.Fitness) }
	res, err := Solve(context.Background(), g, orders, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Best.Total() != len(orders) {
		t.Fatalf("delivered+backlog=%d want %d", res.Best.Total(), len(orders))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("elite fitness must strictly increase at each report: %v", seen)
		}
	}
	if res.Metrics.BestFitness < res.Metrics.InitialBestFitness {
		t.Fatal("elite fitness decreased")
	}
	if len(res.Metrics.Snapshots) != res.Metrics.EliteUpdates || len(seen) != res.Metrics.EliteUpdates {
		t.Fatalf("snapshots=%d observer=%d updates=%d", len(res.Metrics.Snapshots), len(seen), res.Metrics.EliteUpdates)
	}
	// capacity never negative nor above seats, and graph holds the elite plan
	used := 0
	for _, fi := range g.Instances() {
		if fi.Remaining() < 0 || fi.Remaining() > fi.Flight.Seats {
			t.Fatalf("instance %d capacity %d out of range", fi.ID, fi.Remaining())
		}
		used += fi.Used()
	}
	legs := 0
	for _, d := range res.Best.Deliveries {
		legs += len(d.Legs)
	}
	if used != legs {
		t.Fatalf("graph holds %d reserved units, elite plan uses %d legs", used, legs)
	}
	// re-decoding the elite against a fresh network reproduces it
	g2, _ := contested(t)
	dec, err := NewDecoder(g2, orders)
	if err != nil {
		t.Fatal(err)
	}
	if again := dec.Decode(res.Priorities); again.Fitness != res.Best.Fitness {
		t.Fatalf("re-decode fitness %v != %v", again.Fitness, res.Best.Fitness)
	}
}

func TestSolveBeatsOrMatchesGreedy(t *testing.T) {
	g, orders := contested(t)
	greedy, err := SolveGreedy(g, orders, Config{})
	if err != nil {
		t.Fatal(err)
	}
	g2, _ := contested(t)
	mpa, err := Solve(context.Background(), g2, orders, longBudget(3, 20))
	if err != nil {
		t.Fatal(err)
	}
	// tight orders first is optimal and earliest-deadline-first finds it
	if greedy.Best.Delivered() != 4 {
		t.Fatalf("greedy should deliver all 4, got %d", greedy.Best.Delivered())
	}
	// each pair delivers at least one; the elite gets at least one pair right
	if mpa.Best.Delivered() < 3 {
		t.Fatalf("search should deliver at least 3, got %d", mpa.Best.Delivered())
	}
	if greedy.Metrics.Stop != StopSinglePass || greedy.Metrics.Decodes != 1 {
		t.Fatalf("greedy metrics: %+v", greedy.Metrics)
	}
}

func TestSolveStopsOnStagnation(t *testing.T) {
	g, orders := contested(t)
	// one order that every individual delivers: no strict improvement is possible
	orders = orders[:1]
	clk := time.Unix(0, 0)
	cfg := Config{Population: 4, TimeBudget: time.Hour, NoImprovementWindow: 2 * time.Second}
	cfg.clock = func() time.Time {
		clk = clk.Add(100 * time.Millisecond)
		return clk
	}
	res, err := Solve(context.Background(), g, orders, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Metrics.Stop != StopStagnation {
		t.Fatalf("stop=%s", res.Metrics.Stop)
	}
	if res.Metrics.EliteUpdates != 0 || res.Best.Delivered() != 1 {
		t.Fatalf("unexpected result: %+v", res.Metrics)
	}
}

func TestSolveStopsOnTimeLimit(t *testing.T) {
	g, orders := contested(t)
	clk := time.Unix(0, 0)
	cfg := Config{Population: 4, TimeBudget: time.Second, NoImprovementWindow: time.Hour}
	cfg.clock = func() time.Time {
		clk = clk.Add(50 * time.Millisecond)
		return clk
	}
	res, err := Solve(context.Background(), g, orders, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Metrics.Stop != StopTimeLimit {
		t.Fatalf("stop=%s", res.Metrics.Stop)
	}
	ph := res.Metrics.PhaseIterations
	if ph[Explore] == 0 || ph[Transition] == 0 || ph[Exploit] == 0 {
		t.Fatalf("a full budget should visit every phase: %v", ph)
	}
}

func TestSolveHonorsCanceledContext(t *testing.T) {
	g, orders := contested(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Solve(ctx, g, orders, longBudget(1, 0))
	if err != nil {
		t.Fatal(err)
	}
	if res.Metrics.Stop != StopCanceled || res.Metrics.Iterations != 0 {
		t.Fatalf("metrics: %+v", res.Metrics)
	}
}

func TestRunDispatch(t *testing.T) {
	g, orders := contested(t)
	res, err := Run(context.Background(), Greedy, g, orders, Config{})
	if err != nil || res.Algorithm != Greedy {
		t.Fatalf("greedy run: %v %v", res.Algorithm, err)
	}
	if _, err := Run(context.Background(), "annealing", g, orders, Config{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("unknown algorithm: %v", err)
	}
}

func TestMetricsStore(t *testing.T) {
	RecordMetrics("t1", "demo", MPA, Metrics{Iterations: 3})
	RecordMetrics("t1", "demo", Greedy, Metrics{Decodes: 1})
	RecordMetrics("t2", "demo", MPA, Metrics{Iterations: 9})
	got := GetMetrics("t1", "demo")
	if len(got) != 2 || got[MPA].Iterations != 3 || got[Greedy].Decodes != 1 {
		t.Fatalf("metrics: %+v", got)
	}
}

func TestRunsOnReusedGraphAreIndependent(t *testing.T) {
	g, orders := contested(t)
	first, err := SolveGreedy(g, orders, Config{})
	if err != nil {
		t.Fatal(err)
	}
	again, err := SolveGreedy(g, orders, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if again.Best.Delivered() != first.Best.Delivered() || again.Best.Fitness != first.Best.Fitness {
		t.Fatalf("second greedy run on the same graph: delivered %d vs %d", again.Best.Delivered(), first.Best.Delivered())
	}
	mpa, err := Solve(context.Background(), g, orders, longBudget(3, 5))
	if err != nil {
		t.Fatal(err)
	}
	fresh, _ := contested(t)
	want, err := Solve(context.Background(), fresh, orders, longBudget(3, 5))
	if err != nil {
		t.Fatal(err)
	}
	if mpa.Best.Fitness != want.Best.Fitness || mpa.Metrics.Decodes != want.Metrics.Decodes {
		t.Fatalf("search on reused graph %v differs from fresh graph %v", mpa.Best.Fitness, want.Best.Fitness)
	}
	used := 0
	for _, l := range mpa.Loads {
		used += l.Used
	}
	legs := 0
	for _, d := range mpa.Best.Deliveries {
		legs += len(d.Legs)
	}
	if used != legs {
		t.Fatalf("loads %d do not match elite legs %d", used, legs)
	}
}
