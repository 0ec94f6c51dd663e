package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "poly_dump_hedge"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry        *prometheus.Registry
	dumpsDetected   prometheus.Counter
	ordersPlaced    prometheus.Counter
	ordersFailed    prometheus.Counter
	cyclesCompleted prometheus.Counter
	roundsExpired   prometheus.Counter
	wsReconnects    prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	dumpsDetected := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "dumps_detected_total",
		Help:      "Total number of dump signals raised by the detector.",
	})
	ordersPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_placed_total",
		Help:      "Total number of orders submitted.",
	})
	ordersFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_failed_total",
		Help:      "Total number of order submission failures.",
	})
	cyclesCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "cycles_completed_total",
		Help:      "Total number of trade cycles fully hedged.",
	})
	roundsExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "rounds_expired_total",
		Help:      "Total number of rounds that ended with an unhedged position.",
	})
	wsReconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "ws_reconnects_total",
		Help:      "Total number of market feed reconnects.",
	})

	registry.MustRegister(dumpsDetected, ordersPlaced, ordersFailed, cyclesCompleted, roundsExpired, wsReconnects)

	m := &Metrics{
		DumpsDetected:   promCounter{dumpsDetected},
		OrdersPlaced:    promCounter{ordersPlaced},
		OrdersFailed:    promCounter{ordersFailed},
		CyclesCompleted: promCounter{cyclesCompleted},
		RoundsExpired:   promCounter{roundsExpired},
		WSReconnects:    promCounter{wsReconnects},
	}

	return &Prometheus{
		Metrics:         m,
		registry:        registry,
		dumpsDetected:   dumpsDetected,
		ordersPlaced:    ordersPlaced,
		ordersFailed:    ordersFailed,
		cyclesCompleted: cyclesCompleted,
		roundsExpired:   roundsExpired,
		wsReconnects:    wsReconnects,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
