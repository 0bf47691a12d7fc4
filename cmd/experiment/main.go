// Command experiment runs weekly planning replicas on the demo network (or a
// YAML fixture) and prints one CSV row per replica.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"morapack/internal/experiment"
	"morapack/internal/opt"
	"morapack/internal/scenario"
)

func main() {
	d := experiment.Defaults()
	orders := flag.Int("orders", d.Orders, "orders per replica")
	replicas := flag.Int("replicas", d.Replicas, "number of replicas")
	limitMs := flag.Int("time-limit-ms", int(d.TimeLimit.Milliseconds()), "search budget per replica in ms")
	pop := flag.Int("population", d.Population, "population size")
	algo := flag.String("algo", string(d.Algorithm), "mpa or greedy")
	fixture := flag.String("network", "", "YAML fixture with the network to plan on; its orders, if any, replace generated ones")
	verbose := flag.Bool("v", false, "log one line per run")
	flag.Parse()

	o := experiment.Options{
		Orders:     *orders,
		Replicas:   *replicas,
		TimeLimit:  time.Duration(*limitMs) * time.Millisecond,
		Population: *pop,
		Algorithm:  opt.Algorithm(*algo),
	}
	if err := o.Algorithm.Validate(); err != nil {
		log.Fatalf("experiment: %v", err)
	}
	if *fixture != "" {
		f, err := scenario.LoadFile(*fixture)
		if err != nil {
			log.Fatalf("experiment: %v", err)
		}
		o.Network = &f.Network
		o.FixedOrders = f.Orders
		log.Printf("experiment: network=%s airports=%d flights=%d orders=%d", f.Name, len(f.Network.Airports), len(f.Network.Flights), len(f.Orders))
	}
	if *verbose {
		o.Logf = log.Printf
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	kpis, err := experiment.Run(ctx, o, os.Stdout)
	if err != nil {
		log.Printf("experiment: stopped after %d replicas: %v", len(kpis), err)
	}
	s := experiment.Summarize(kpis)
	log.Printf("experiment: replicas=%d mean_percent=%.2f stddev=%.2f median=%.2f min=%.2f max=%.2f mean_runtime_ms=%.0f",
		s.Replicas, s.MeanPercent, s.StdDevPercent, s.MedianPercent, s.MinPercent, s.MaxPercent, s.MeanRuntimeMs)
	if err != nil {
		os.Exit(1)
	}
}
