package strategy

import (
	"math"
	"testing"
	"time"

	"poly-dump-hedge/internal/market"

	"go.uber.org/zap"
)

func pushSequence(buf *market.Buffer, asks []float64, side market.Side) {
	base := time.Now().Add(-time.Duration(len(asks)) * time.Second)
	for i, ask := range asks {
		snap := market.PriceSnapshot{
			Timestamp: base.Add(time.Duration(i+1) * time.Second),
			Up:        market.Quote{Ask: 0.5},
			Down:      market.Quote{Ask: 0.5},
		}
		if side == market.SideUp {
			snap.Up.Ask = ask
		} else {
			snap.Down.Ask = ask
		}
		buf.Push(snap)
	}
}

func newTestDetector() *Detector {
	return NewDetector(0.15, 2, 5*time.Second, zap.NewNop())
}

func TestDetectUpDump(t *testing.T) {
	d := newTestDetector()
	d.SetRoundStart(time.Now().Add(-30 * time.Second))
	buf := market.NewBuffer(50)
	pushSequence(buf, []float64{0.60, 0.55, 0.50}, market.SideUp)

	sig := d.Detect(buf, "btc-1h-0900")
	if sig == nil {
		t.Fatalf("expected dump signal")
	}
	if sig.Side != market.SideUp {
		t.Fatalf("expected UP signal, got %s", sig.Side)
	}
	if math.Abs(sig.DropPct-0.1667) > 0.001 {
		t.Fatalf("expected drop pct ~0.1667, got %v", sig.DropPct)
	}
	if sig.Price != 0.50 || sig.ReferencePrice != 0.60 {
		t.Fatalf("expected trigger 0.50 reference 0.60, got %v / %v", sig.Price, sig.ReferencePrice)
	}
	if sig.RoundSlug != "btc-1h-0900" {
		t.Fatalf("expected round slug carried, got %q", sig.RoundSlug)
	}
}

func TestDetectLockedSideSuppressed(t *testing.T) {
	d := newTestDetector()
	d.SetRoundStart(time.Now().Add(-30 * time.Second))
	d.LockSide(market.SideUp)
	buf := market.NewBuffer(50)
	pushSequence(buf, []float64{0.60, 0.55, 0.50}, market.SideUp)
	if sig := d.Detect(buf, "r"); sig != nil {
		t.Fatalf("expected nil for locked side, got %+v", sig)
	}
}

func TestDetectLocksResetOnNewRound(t *testing.T) {
	d := newTestDetector()
	d.SetRoundStart(time.Now().Add(-30 * time.Second))
	d.LockSide(market.SideUp)
	d.SetRoundStart(time.Now())
	if d.SideLocked(market.SideUp) {
		t.Fatalf("expected lock cleared on round start")
	}
}

func TestDetectRequiresRoundStart(t *testing.T) {
	d := newTestDetector()
	buf := market.NewBuffer(50)
	pushSequence(buf, []float64{0.60, 0.50}, market.SideUp)
	if sig := d.Detect(buf, "r"); sig != nil {
		t.Fatalf("expected nil before round start is set")
	}
}

func TestDetectRequiresTwoSamples(t *testing.T) {
	d := newTestDetector()
	d.SetRoundStart(time.Now())
	buf := market.NewBuffer(50)
	pushSequence(buf, []float64{0.60}, market.SideUp)
	if sig := d.Detect(buf, "r"); sig != nil {
		t.Fatalf("expected nil with fewer than two samples")
	}
}

func TestDetectWindowElapsed(t *testing.T) {
	d := newTestDetector()
	d.SetRoundStart(time.Now().Add(-3 * time.Minute))
	buf := market.NewBuffer(50)
	pushSequence(buf, []float64{0.60, 0.50}, market.SideUp)
	if sig := d.Detect(buf, "r"); sig != nil {
		t.Fatalf("expected nil past the monitoring window")
	}
}

func TestDetectSkipsZeroFirstAsk(t *testing.T) {
	d := newTestDetector()
	d.SetRoundStart(time.Now())
	buf := market.NewBuffer(50)
	base := time.Now().Add(-2 * time.Second)
	buf.Push(market.PriceSnapshot{Timestamp: base, Up: market.Quote{Ask: 0}, Down: market.Quote{Ask: 0.5}})
	buf.Push(market.PriceSnapshot{Timestamp: base.Add(time.Second), Up: market.Quote{Ask: 0}, Down: market.Quote{Ask: 0.5}})
	if sig := d.Detect(buf, "r"); sig != nil {
		t.Fatalf("expected nil when first ask is zero")
	}
}

func TestDetectUpEvaluatedBeforeDown(t *testing.T) {
	d := newTestDetector()
	d.SetRoundStart(time.Now())
	buf := market.NewBuffer(50)
	base := time.Now().Add(-2 * time.Second)
	buf.Push(market.PriceSnapshot{Timestamp: base, Up: market.Quote{Ask: 0.60}, Down: market.Quote{Ask: 0.60}})
	buf.Push(market.PriceSnapshot{Timestamp: base.Add(time.Second), Up: market.Quote{Ask: 0.40}, Down: market.Quote{Ask: 0.40}})
	sig := d.Detect(buf, "r")
	if sig == nil || sig.Side != market.SideUp {
		t.Fatalf("expected UP to win when both sides fire, got %+v", sig)
	}
}

func TestUpdateConfigValidation(t *testing.T) {
	d := newTestDetector()
	if err := d.UpdateConfig(0.005, 2); err == nil {
		t.Fatalf("expected error for low threshold")
	}
	if err := d.UpdateConfig(0.35, 2); err == nil {
		t.Fatalf("expected error for high threshold")
	}
	if err := d.UpdateConfig(0.10, 0); err == nil {
		t.Fatalf("expected error for short window")
	}
	if err := d.UpdateConfig(0.10, 16); err == nil {
		t.Fatalf("expected error for long window")
	}
	threshold, window := d.Config()
	if threshold != 0.15 || window != 2*time.Minute {
		t.Fatalf("failed update must not mutate config, got %v %v", threshold, window)
	}
	if err := d.UpdateConfig(0.20, 5); err != nil {
		t.Fatalf("expected valid update to pass: %v", err)
	}
	threshold, window = d.Config()
	if threshold != 0.20 || window != 5*time.Minute {
		t.Fatalf("expected updated config, got %v %v", threshold, window)
	}
}
