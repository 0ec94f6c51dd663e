package alerts

import (
	"context"
	"fmt"
	"time"

	"poly-dump-hedge/internal/strategy"

	"go.uber.org/zap"
)

// Sender delivers one operator-facing message.
type Sender interface {
	Send(ctx context.Context, message string) error
}

const sendTimeout = 10 * time.Second

// Notifier formats trading events into operator messages and sends each one on
// its own goroutine. A failed or slow delivery is logged and dropped; nothing
// in the trading path ever waits on it.
type Notifier struct {
	sender Sender
	log    *zap.Logger
}

func NewNotifier(sender Sender, log *zap.Logger) *Notifier {
	return &Notifier{sender: sender, log: log}
}

func (n *Notifier) DumpDetected(sig strategy.DumpSignal) {
	n.dispatch(fmt.Sprintf(
		"📉 Dump detected\nRound: %s\nSide: %s\nAsk: %.3f (was %.3f, -%.1f%%)",
		sig.RoundSlug, sig.Side, sig.Price, sig.ReferencePrice, sig.DropPct*100,
	))
}

func (n *Notifier) OrderFailed(roundSlug, leg string, err error) {
	n.dispatch(fmt.Sprintf("⚠️ Order failed\nRound: %s\nLeg: %s\nReason: %v", roundSlug, leg, err))
}

func (n *Notifier) CycleCompleted(cycle strategy.TradeCycle) {
	gross, net := 0.0, 0.0
	if cycle.Profit != nil {
		gross = *cycle.Profit
	}
	if cycle.GuaranteedProfit != nil {
		net = *cycle.GuaranteedProfit
	}
	n.dispatch(fmt.Sprintf(
		"✅ Hedge complete\nRound: %s\nLeg1: %s %d @ %.3f\nLeg2: %s %d @ %.3f\nProfit: %.2f gross / %.2f net",
		cycle.RoundSlug,
		cycle.Leg1.Side, cycle.Leg1.Shares, cycle.Leg1.Price,
		cycle.Leg2.Side, cycle.Leg2.Shares, cycle.Leg2.Price,
		gross, net,
	))
}

func (n *Notifier) RoundExpired(cycle strategy.TradeCycle, loss float64) {
	msg := fmt.Sprintf("⏰ Round expired unhedged\nRound: %s", cycle.RoundSlug)
	if cycle.Leg1 != nil {
		msg += fmt.Sprintf("\nOpen leg: %s %d @ %.3f\nWorst-case loss: %.2f",
			cycle.Leg1.Side, cycle.Leg1.Shares, cycle.Leg1.Price, loss)
	}
	n.dispatch(msg)
}

func (n *Notifier) SystemError(component string, err error) {
	n.dispatch(fmt.Sprintf("🚨 Error in %s: %v", component, err))
}

func (n *Notifier) Info(message string) {
	n.dispatch(message)
}

func (n *Notifier) dispatch(message string) {
	if n == nil || n.sender == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := n.sender.Send(ctx, message); err != nil && n.log != nil {
			n.log.Warn("alert delivery failed", zap.Error(err))
		}
	}()
}
