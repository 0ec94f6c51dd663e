package exec

import (
	"context"
	"errors"
	"testing"

	"poly-dump-hedge/internal/market"

	"go.uber.org/zap"
)

type fakeSubmitter struct {
	calls   int
	failFor int
	result  Result
}

func (f *fakeSubmitter) SubmitBuy(ctx context.Context, order Order) (Result, error) {
	f.calls++
	if f.calls <= f.failFor {
		return Result{}, errors.New("connection reset")
	}
	return f.result, nil
}

func testOrder(cloid string) Order {
	return Order{
		Side:          market.SideUp,
		TokenID:       "token-up",
		Shares:        100,
		LimitPrice:    0.50,
		ClientOrderID: cloid,
	}
}

func TestExecutorRetriesTransportFailures(t *testing.T) {
	client := &fakeSubmitter{failFor: 2, result: Result{Status: StatusFilled, OrderID: "o1", AvgPrice: 0.5, TotalCost: 50}}
	e := New(client, nil, zap.NewNop())
	result, err := e.Buy(context.Background(), testOrder(""))
	if err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if client.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", client.calls)
	}
	if result.OrderID != "o1" || !result.Filled() {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestExecutorGivesUpAfterBudget(t *testing.T) {
	client := &fakeSubmitter{failFor: 10}
	e := New(client, nil, zap.NewNop())
	if _, err := e.Buy(context.Background(), testOrder("")); err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if client.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", client.calls)
	}
}

func TestExecutorDoesNotRetryRejection(t *testing.T) {
	client := &fakeSubmitter{result: Result{Status: StatusRejected, Err: "insufficient balance"}}
	e := New(client, nil, zap.NewNop())
	result, err := e.Buy(context.Background(), testOrder(""))
	if err != nil {
		t.Fatalf("rejection is a result, not an error: %v", err)
	}
	if result.Status != StatusRejected {
		t.Fatalf("expected rejected result, got %+v", result)
	}
	if client.calls != 1 {
		t.Fatalf("expected a single attempt for a rejection, got %d", client.calls)
	}
}

func TestExecutorIdempotentByClientOrderID(t *testing.T) {
	client := &fakeSubmitter{result: Result{Status: StatusFilled, OrderID: "o1", AvgPrice: 0.5, TotalCost: 50}}
	e := New(client, nil, zap.NewNop())
	first, err := e.Buy(context.Background(), testOrder("leg1-abc"))
	if err != nil {
		t.Fatalf("first buy failed: %v", err)
	}
	second, err := e.Buy(context.Background(), testOrder("leg1-abc"))
	if err != nil {
		t.Fatalf("replayed buy failed: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("expected a single submission for a replayed client order id, got %d", client.calls)
	}
	if first.OrderID != second.OrderID {
		t.Fatalf("expected identical results, got %q vs %q", first.OrderID, second.OrderID)
	}
}

func TestDryRunFillsImmediately(t *testing.T) {
	d := NewDryRun(zap.NewNop())
	result, err := d.Buy(context.Background(), testOrder(""))
	if err != nil {
		t.Fatalf("dry run must not fail: %v", err)
	}
	if result.Status != StatusFilled {
		t.Fatalf("expected filled, got %s", result.Status)
	}
	if result.AvgPrice != 0.50 || result.TotalCost != 50 {
		t.Fatalf("expected fill at requested price, got %+v", result)
	}
	if result.OrderID == "" {
		t.Fatalf("expected synthetic order id")
	}
}
