package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.ObserveAIRequest("json", "ok", time.Second)
	m.ObservePhase("analyze", "ok", time.Second)
	m.IncRunOutcome("complete")
	m.FeedClientConnected()
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have no registry")
	}
}

func TestMetricsCountAndExpose(t *testing.T) {
	m := NewMetrics()
	m.IncRunOutcome("complete")
	m.IncRunOutcome("complete")
	m.IncRunOutcome("error")
	m.ObservePhase("design", "ok", 2*time.Second)

	if got := testutil.ToFloat64(m.runOutcomes.WithLabelValues("complete")); got != 2 {
		t.Fatalf("runs_total{complete}: want=2 got=%v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, "learnworld_worldgen_runs_total") {
		t.Fatalf("exposition missing runs_total:\n%s", body)
	}
	if !strings.Contains(body, `learnworld_worldgen_phase_duration_seconds_count{outcome="ok",phase="design"} 1`) {
		t.Fatalf("exposition missing phase histogram sample")
	}
}
