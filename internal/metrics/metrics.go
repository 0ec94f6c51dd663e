package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	DumpsDetected   Counter
	OrdersPlaced    Counter
	OrdersFailed    Counter
	CyclesCompleted Counter
	RoundsExpired   Counter
	WSReconnects    Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		DumpsDetected:   n,
		OrdersPlaced:    n,
		OrdersFailed:    n,
		CyclesCompleted: n,
		RoundsExpired:   n,
		WSReconnects:    n,
	}
}
