package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.DumpsDetected.Inc()
	prom.Metrics.OrdersPlaced.Inc()
	prom.Metrics.OrdersFailed.Inc()
	prom.Metrics.CyclesCompleted.Inc()
	prom.Metrics.RoundsExpired.Inc()
	prom.Metrics.WSReconnects.Inc()

	assertCounter(t, prom.dumpsDetected, 1)
	assertCounter(t, prom.ordersPlaced, 1)
	assertCounter(t, prom.ordersFailed, 1)
	assertCounter(t, prom.cyclesCompleted, 1)
	assertCounter(t, prom.roundsExpired, 1)
	assertCounter(t, prom.wsReconnects, 1)
}

func assertCounter(t *testing.T, counter prometheus.Counter, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(counter); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
