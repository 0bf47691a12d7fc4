package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservePlan(t *testing.T) {
	RegisterDefault()
	RegisterDefault() // idempotent

	before := testutil.ToFloat64(PlanRuns.WithLabelValues("mpa", "time_limit"))
	ObservePlan("mpa", "time_limit", 1.5, 87.5, 120, 3)
	if got := testutil.ToFloat64(PlanRuns.WithLabelValues("mpa", "time_limit")); got != before+1 {
		t.Fatalf("runs: got %v want %v", got, before+1)
	}
	if got := testutil.ToFloat64(Decodes.WithLabelValues("mpa")); got < 120 {
		t.Fatalf("decodes: %v", got)
	}
	if n := testutil.CollectAndCount(PercentDelivered); n < 1 {
		t.Fatalf("percent histogram not collected")
	}
}
