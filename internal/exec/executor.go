package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"poly-dump-hedge/internal/market"
	"poly-dump-hedge/internal/state"

	"go.uber.org/zap"
)

type OrderStatus string

const (
	StatusFilled   OrderStatus = "filled"
	StatusPartial  OrderStatus = "partial"
	StatusPending  OrderStatus = "pending"
	StatusRejected OrderStatus = "rejected"
)

// Order is a single-leg buy request.
type Order struct {
	Side          market.Side
	TokenID       string
	Shares        int
	LimitPrice    float64
	ClientOrderID string
}

// Result is the execution outcome the engine consumes. A rejected order is a
// valid result, not an error; errors mean the submission itself failed.
type Result struct {
	Status    OrderStatus `json:"status"`
	OrderID   string      `json:"order_id"`
	AvgPrice  float64     `json:"avg_price"`
	TotalCost float64     `json:"total_cost"`
	Err       string      `json:"error,omitempty"`
}

func (r Result) Filled() bool {
	return r.Status == StatusFilled || r.Status == StatusPartial
}

// Trader is the engine-facing contract: Executor for live trading, DryRun for
// simulation.
type Trader interface {
	Buy(ctx context.Context, order Order) (Result, error)
}

// Submitter is the transport that actually posts a buy to the exchange.
type Submitter interface {
	SubmitBuy(ctx context.Context, order Order) (Result, error)
}

const (
	submitAttempts = 3
	submitBackoff  = 500 * time.Millisecond
)

// Executor wraps the CLOB transport with a bounded fixed-backoff retry around
// the network submission and an idempotency cache keyed by client order id.
// Replaying a leg after a crash returns the original result instead of
// committing capital twice. Strategy decisions are never retried here.
type Executor struct {
	client Submitter
	store  state.Store
	log    *zap.Logger

	mu    sync.Mutex
	cache map[string]Result
}

func New(client Submitter, store state.Store, log *zap.Logger) *Executor {
	return &Executor{
		client: client,
		store:  store,
		log:    log,
		cache:  make(map[string]Result),
	}
}

func (e *Executor) Buy(ctx context.Context, order Order) (Result, error) {
	if order.ClientOrderID == "" {
		return e.submitWithRetry(ctx, order)
	}
	key := "order:" + order.ClientOrderID
	if cached, ok := e.lookup(ctx, key); ok {
		return cached, nil
	}
	result, err := e.submitWithRetry(ctx, order)
	if err != nil {
		return Result{}, err
	}
	e.remember(ctx, key, result)
	return result, nil
}

func (e *Executor) lookup(ctx context.Context, key string) (Result, bool) {
	e.mu.Lock()
	if cached, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return cached, true
	}
	e.mu.Unlock()
	if e.store == nil {
		return Result{}, false
	}
	raw, ok, err := e.store.Get(ctx, key)
	if err != nil || !ok {
		return Result{}, false
	}
	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return Result{}, false
	}
	e.mu.Lock()
	e.cache[key] = result
	e.mu.Unlock()
	return result, true
}

func (e *Executor) remember(ctx context.Context, key string, result Result) {
	e.mu.Lock()
	e.cache[key] = result
	e.mu.Unlock()
	if e.store == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := e.store.Set(ctx, key, string(payload)); err != nil && e.log != nil {
		e.log.Warn("failed to persist order result", zap.Error(err))
	}
}

// submitWithRetry retries transport failures only. An exchange response, even
// a rejection, ends the loop immediately.
func (e *Executor) submitWithRetry(ctx context.Context, order Order) (Result, error) {
	var lastErr error
	for attempt := 1; attempt <= submitAttempts; attempt++ {
		result, err := e.client.SubmitBuy(ctx, order)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if e.log != nil {
			e.log.Warn("order submission failed",
				zap.Int("attempt", attempt),
				zap.String("token", order.TokenID),
				zap.Error(err),
			)
		}
		if attempt == submitAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(submitBackoff):
		}
	}
	return Result{}, fmt.Errorf("buy submission failed after %d attempts: %w", submitAttempts, lastErr)
}

// DryRun simulates an immediate full fill at the requested price without any
// network call.
type DryRun struct {
	log *zap.Logger

	mu  sync.Mutex
	seq int
}

func NewDryRun(log *zap.Logger) *DryRun {
	return &DryRun{log: log}
}

func (d *DryRun) Buy(ctx context.Context, order Order) (Result, error) {
	d.mu.Lock()
	d.seq++
	seq := d.seq
	d.mu.Unlock()
	result := Result{
		Status:    StatusFilled,
		OrderID:   fmt.Sprintf("dry-%d", seq),
		AvgPrice:  order.LimitPrice,
		TotalCost: order.LimitPrice * float64(order.Shares),
	}
	if d.log != nil {
		d.log.Info("dry-run fill",
			zap.String("side", string(order.Side)),
			zap.String("token", order.TokenID),
			zap.Int("shares", order.Shares),
			zap.Float64("price", order.LimitPrice),
		)
	}
	return result, nil
}
