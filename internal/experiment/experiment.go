// Package experiment runs repeated weekly planning replicas and reports
// per-replica KPIs as CSV.
package experiment

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"

	"morapack/internal/network"
	"morapack/internal/opt"
	"morapack/internal/scenario"
	"morapack/internal/teg"
)

// BaseSeed is the seed of replica 0; replica i uses BaseSeed+i.
const BaseSeed = 12345

// Header is the CSV header row.
var Header = []string{"replica", "runtime_ms", "percent_delivered"}

// KPI is the outcome of one replica.
type KPI struct {
	Replica          int
	RuntimeMs        int64
	PercentDelivered float64
}

func (k KPI) record() []string {
	return []string{
		strconv.Itoa(k.Replica),
		strconv.FormatInt(k.RuntimeMs, 10),
		strconv.FormatFloat(k.PercentDelivered, 'f', 2, 64),
	}
}

type Options struct {
	Orders     int
	Replicas   int
	TimeLimit  time.Duration
	Population int
	Algorithm  opt.Algorithm
	// Network defaults to the demo network.
	Network *network.Network
	// FixedOrders, when non-empty, is planned by every replica instead of
	// Orders generated ones; the replica seed then only varies the search.
	FixedOrders []network.PackageOrder
	Logf    func(format string, args ...any)
}

// Defaults are the weekly study settings: 24 orders, 30 replicas, 45s each.
func Defaults() Options {
	return Options{Orders: 24, Replicas: 30, TimeLimit: 45 * time.Second, Population: opt.DefaultPopulation, Algorithm: opt.MPA}
}

// RunWeekly builds a fresh graph, generates orders from seed unless
// FixedOrders is set, and plans them.
func RunWeekly(ctx context.Context, o Options, seed int64) (KPI, opt.Result, error) {
	net := scenario.DemoNetwork()
	if o.Network != nil {
		net = *o.Network
	}
	g, err := teg.New(net)
	if err != nil {
		return KPI{}, opt.Result{}, err
	}
	orders := o.FixedOrders
	if len(orders) > 0 {
		if err := net.ValidateOrders(orders); err != nil {
			return KPI{}, opt.Result{}, fmt.Errorf("experiment: %w", err)
		}
	} else {
		if orders, err = scenario.GenerateOrders(net, o.Orders, seed); err != nil {
			return KPI{}, opt.Result{}, err
		}
	}
	cfg := opt.Config{Population: o.Population, TimeBudget: o.TimeLimit, Seed: seed, Logf: o.Logf}
	res, err := opt.Run(ctx, o.Algorithm, g, orders, cfg)
	if err != nil {
		return KPI{}, opt.Result{}, fmt.Errorf("experiment: seed %d: %w", seed, err)
	}
	return KPI{RuntimeMs: res.RuntimeMs(), PercentDelivered: res.Best.PercentDelivered}, res, nil
}

// Run executes o.Replicas replicas, writing the header and one CSV row per
// replica to out as soon as it finishes.
func Run(ctx context.Context, o Options, out io.Writer) ([]KPI, error) {
	if o.Replicas < 0 {
		return nil, fmt.Errorf("experiment: replicas %d must be >= 0", o.Replicas)
	}
	w := csv.NewWriter(out)
	if err := w.Write(Header); err != nil {
		return nil, err
	}
	w.Flush()
	kpis := make([]KPI, 0, o.Replicas)
	for i := 0; i < o.Replicas; i++ {
		if err := ctx.Err(); err != nil {
			return kpis, err
		}
		k, _, err := RunWeekly(ctx, o, BaseSeed+int64(i))
		if err != nil {
			return kpis, err
		}
		k.Replica = i
		kpis = append(kpis, k)
		if err := w.Write(k.record()); err != nil {
			return kpis, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return kpis, err
		}
	}
	return kpis, nil
}

// Summary aggregates replica KPIs.
type Summary struct {
	Replicas      int     `json:"replicas"`
	MeanPercent   float64 `json:"meanPercent"`
	StdDevPercent float64 `json:"stdDevPercent"`
	MedianPercent float64 `json:"medianPercent"`
	MinPercent    float64 `json:"minPercent"`
	MaxPercent    float64 `json:"maxPercent"`
	MeanRuntimeMs float64 `json:"meanRuntimeMs"`
}

func Summarize(kpis []KPI) Summary {
	s := Summary{Replicas: len(kpis)}
	if len(kpis) == 0 {
		return s
	}
	pct := make([]float64, len(kpis))
	rt := make([]float64, len(kpis))
	for i, k := range kpis {
		pct[i] = k.PercentDelivered
		rt[i] = float64(k.RuntimeMs)
	}
	s.MeanPercent = stat.Mean(pct, nil)
	if len(pct) > 1 {
		s.StdDevPercent = stat.StdDev(pct, nil)
	}
	s.MeanRuntimeMs = stat.Mean(rt, nil)
	slices.Sort(pct)
	s.MedianPercent = stat.Quantile(0.5, stat.Empirical, pct, nil)
	s.MinPercent, s.MaxPercent = pct[0], pct[len(pct)-1]
	return s
}
