package app

import (
	"context"
	"errors"
	"time"

	"poly-dump-hedge/internal/events"
	"poly-dump-hedge/internal/exec"
	"poly-dump-hedge/internal/market"
	"poly-dump-hedge/internal/strategy"

	"go.uber.org/zap"
)

// tick runs the strategy once. Round maintenance happens even while paused so
// an expiring round is always recorded; trading actions respect the pause flag
// and the feed state.
func (a *App) tick(ctx context.Context) {
	a.maintainRound(ctx)
	if a.isPaused() {
		return
	}
	if !a.feedUp() {
		return
	}
	switch a.machine.Status() {
	case strategy.StatusIdle, strategy.StatusCompleted, strategy.StatusRoundExpired:
		if a.tracker.Active() {
			a.machine.StartNewCycle(a.tracker.Slug())
		}
	case strategy.StatusWatching:
		a.checkForDump(ctx)
	case strategy.StatusLeg1Filled:
		a.checkForHedge(ctx)
	}
}

// maintainRound refreshes discovery on its own cadence, or immediately when
// the tracked round has run out.
func (a *App) maintainRound(ctx context.Context) {
	now := time.Now()
	due := a.lastRoundCheck.IsZero() || now.Sub(a.lastRoundCheck) >= a.cfg.Market.RoundCheckInterval
	if !due && a.tracker.Active() {
		return
	}
	a.lastRoundCheck = now
	if change := a.tracker.Refresh(ctx); !change.Empty() {
		a.applyRoundChange(ctx, change)
	}
}

func (a *App) applyRoundChange(ctx context.Context, change market.RoundChange) {
	if change.Ended != nil {
		a.handleRoundEnd(*change.Ended)
	}
	if change.Started != nil {
		a.handleRoundStart(ctx, *change.Started)
	}
}

func (a *App) handleRoundEnd(ended market.RoundInfo) {
	a.bus.Publish(events.TypeRoundEnded, ended)
	a.log.Info("round ended", zap.String("round", ended.Slug))
	if !a.machine.OnRoundExpired() {
		return
	}
	cycle, ok := a.machine.Cycle()
	if !ok {
		return
	}
	a.bus.Publish(events.TypeCycleExpired, cycle)
	if cycle.Leg1 == nil {
		// Nothing was bought, so nothing expired with the round. No loss
		// alert, no expiry count.
		a.log.Info("watch-only cycle closed with round", zap.String("cycle_id", cycle.ID))
		return
	}
	a.metrics.RoundsExpired.Inc()
	loss := -cycle.Leg1.TotalCost
	a.notifier.RoundExpired(cycle, loss)
	a.log.Warn("cycle expired with round",
		zap.String("cycle_id", cycle.ID),
		zap.String("round", cycle.RoundSlug),
		zap.Float64("worst_case_loss", loss),
	)
}

func (a *App) handleRoundStart(ctx context.Context, started market.RoundInfo) {
	// A round boundary abandons whatever the previous round left behind,
	// including a cycle parked in ERROR. The persisted record stays in the
	// store; only the machine comes back to IDLE so the next tick can open
	// a fresh cycle.
	if status := a.machine.Status(); status != strategy.StatusIdle {
		a.log.Info("clearing previous cycle at round boundary",
			zap.String("status", string(status)),
			zap.String("round", started.Slug),
		)
		a.machine.Reset()
	}
	start := started.Start
	if start.IsZero() {
		start = time.Now()
	}
	a.detector.SetRoundStart(start)
	if err := a.feed.SetRound(ctx, started); err != nil {
		a.log.Warn("feed resubscribe failed", zap.String("round", started.Slug), zap.Error(err))
	}
	a.bus.Publish(events.TypeRoundStarted, started)
	a.log.Info("round started",
		zap.String("round", started.Slug),
		zap.Time("end", started.End),
		zap.Bool("fallback", a.tracker.UsingFallback()),
	)
}

func (a *App) checkForDump(ctx context.Context) {
	slug := a.tracker.Slug()
	if slug == "" {
		return
	}
	sig := a.detector.Detect(a.buffer, slug)
	if sig == nil {
		return
	}
	// One entry per side per round, even if the order below fails.
	a.detector.LockSide(sig.Side)
	if !a.machine.OnDumpDetected(*sig) {
		return
	}
	a.metrics.DumpsDetected.Inc()
	a.bus.Publish(events.TypeDumpDetected, *sig)
	a.notifier.DumpDetected(*sig)
	a.submitLeg1(ctx, *sig)
}

func (a *App) submitLeg1(ctx context.Context, sig strategy.DumpSignal) {
	cycle, ok := a.machine.Cycle()
	if !ok {
		return
	}
	order := exec.Order{
		Side:          sig.Side,
		TokenID:       a.tracker.TokenID(sig.Side),
		Shares:        a.cfg.Strategy.Shares,
		LimitPrice:    sig.Price,
		ClientOrderID: cycle.ID + "-leg1",
	}
	result, err := a.trader.Buy(ctx, order)
	if err == nil && !result.Filled() {
		err = errors.New("leg 1 not filled: " + result.Err)
	}
	if err != nil {
		a.failCycle("leg1", err)
		return
	}
	a.metrics.OrdersPlaced.Inc()
	leg := strategy.LegInfo{
		OrderID:   result.OrderID,
		Side:      sig.Side,
		Shares:    order.Shares,
		Price:     result.AvgPrice,
		TotalCost: result.TotalCost,
		FilledAt:  time.Now(),
	}
	if a.machine.OnLeg1Filled(leg) {
		a.bus.Publish(events.TypeLegFilled, leg)
		a.log.Info("leg 1 filled",
			zap.String("cycle_id", cycle.ID),
			zap.String("side", string(leg.Side)),
			zap.Float64("price", leg.Price),
			zap.Float64("cost", leg.TotalCost),
		)
	}
}

func (a *App) checkForHedge(ctx context.Context) {
	latest, ok := a.buffer.Latest()
	if !ok || latest.RoundSlug != a.tracker.Slug() {
		return
	}
	cycle, ok := a.machine.Cycle()
	if !ok || cycle.Leg1 == nil {
		return
	}
	decision := a.calc.Evaluate(*cycle.Leg1, latest)
	if decision.OppositePrice <= 0 || !decision.ShouldHedge {
		return
	}
	if !a.machine.OnLeg2Started() {
		return
	}
	a.submitLeg2(ctx, cycle, decision)
}

func (a *App) submitLeg2(ctx context.Context, cycle strategy.TradeCycle, decision strategy.HedgeDecision) {
	side := cycle.Leg1.Side.Opposite()
	order := exec.Order{
		Side:          side,
		TokenID:       a.tracker.TokenID(side),
		Shares:        cycle.Leg1.Shares,
		LimitPrice:    decision.OppositePrice,
		ClientOrderID: cycle.ID + "-leg2",
	}
	result, err := a.trader.Buy(ctx, order)
	if err == nil && !result.Filled() {
		err = errors.New("leg 2 not filled: " + result.Err)
	}
	if err != nil {
		a.failCycle("leg2", err)
		return
	}
	a.metrics.OrdersPlaced.Inc()
	leg := strategy.LegInfo{
		OrderID:   result.OrderID,
		Side:      side,
		Shares:    order.Shares,
		Price:     result.AvgPrice,
		TotalCost: result.TotalCost,
		FilledAt:  time.Now(),
	}
	profit := a.calc.GuaranteedProfit(cycle.Leg1.Price, leg.Price, leg.Shares)
	if a.machine.OnLeg2Filled(leg, profit) {
		a.bus.Publish(events.TypeLegFilled, leg)
	}
}

func (a *App) failCycle(legName string, err error) {
	a.metrics.OrdersFailed.Inc()
	a.log.Error("order submission failed",
		zap.String("leg", legName),
		zap.Error(err),
	)
	a.notifier.OrderFailed(a.tracker.Slug(), legName, err)
	if a.machine.OnError(err) {
		if cycle, ok := a.machine.Cycle(); ok {
			a.bus.Publish(events.TypeCycleError, cycle)
		}
	}
}
