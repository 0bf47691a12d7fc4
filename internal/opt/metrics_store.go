package opt

import "sync"

type runKey struct {
	Tenant   string
	Scenario string
	Algo     Algorithm
}

var (
	mu      sync.Mutex
	lastRun = map[runKey]Metrics{}
)

// RecordMetrics keeps the metrics of the latest run per tenant, scenario and algorithm.
func RecordMetrics(tenant, scenario string, algo Algorithm, m Metrics) {
	mu.Lock()
	lastRun[runKey{Tenant: tenant, Scenario: scenario, Algo: algo}] = m
	mu.Unlock()
}

// GetMetrics returns the latest metrics per algorithm for a tenant and scenario.
func GetMetrics(tenant, scenario string) map[Algorithm]Metrics {
	mu.Lock()
	defer mu.Unlock()
	out := map[Algorithm]Metrics{}
	for k, v := range lastRun {
		if k.Tenant == tenant && k.Scenario == scenario {
			out[k.Algo] = v
		}
	}
	return out
}
