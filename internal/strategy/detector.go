package strategy

import (
	"fmt"
	"sync"
	"time"

	"poly-dump-hedge/internal/market"

	"go.uber.org/zap"
)

// detectSides fixes the evaluation order: UP before DOWN, first match wins.
var detectSides = [2]market.Side{market.SideUp, market.SideDown}

// Detector watches the rolling buffer for a sharp one-sided ask collapse
// inside a short sub-window. It fires at most once per side per round; the
// engine locks the acted-on side and the locks reset on the round boundary.
type Detector struct {
	log *zap.Logger
	now func() time.Time

	mu            sync.Mutex
	dropThreshold float64
	window        time.Duration
	subWindow     time.Duration
	roundStart    time.Time
	locked        map[market.Side]bool
}

func NewDetector(dropThreshold float64, windowMin int, subWindow time.Duration, log *zap.Logger) *Detector {
	return &Detector{
		log:           log,
		now:           time.Now,
		dropThreshold: dropThreshold,
		window:        time.Duration(windowMin) * time.Minute,
		subWindow:     subWindow,
		locked:        make(map[market.Side]bool),
	}
}

// SetRoundStart records the new round's start time and clears both side
// locks. Called exactly once per round boundary, before any Detect.
func (d *Detector) SetRoundStart(ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roundStart = ts
	d.locked = make(map[market.Side]bool)
}

// LockSide suppresses detection for a side until the next SetRoundStart.
func (d *Detector) LockSide(side market.Side) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locked[side] = true
}

func (d *Detector) SideLocked(side market.Side) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked[side]
}

// Detect returns a dump signal when an unlocked side collapsed by at least the
// configured fraction between the first and last sample of the sub-window.
// It fails closed: no round start, an elapsed monitoring window, or fewer than
// two samples all yield nil.
func (d *Detector) Detect(buf *market.Buffer, roundSlug string) *DumpSignal {
	d.mu.Lock()
	threshold := d.dropThreshold
	window := d.window
	subWindow := d.subWindow
	roundStart := d.roundStart
	locked := map[market.Side]bool{
		market.SideUp:   d.locked[market.SideUp],
		market.SideDown: d.locked[market.SideDown],
	}
	d.mu.Unlock()

	if roundStart.IsZero() {
		return nil
	}
	now := d.now()
	if now.Sub(roundStart) > window {
		return nil
	}
	samples := buf.Recent(subWindow)
	if len(samples) < 2 {
		return nil
	}
	first := samples[0]
	last := samples[len(samples)-1]
	for _, side := range detectSides {
		if locked[side] {
			continue
		}
		firstAsk := first.Ask(side)
		if firstAsk <= 0 {
			continue
		}
		drop := (firstAsk - last.Ask(side)) / firstAsk
		if drop < threshold {
			continue
		}
		if d.log != nil {
			d.log.Info("dump detected",
				zap.String("side", string(side)),
				zap.Float64("drop_pct", drop),
				zap.Float64("first_ask", firstAsk),
				zap.Float64("last_ask", last.Ask(side)),
				zap.String("round", roundSlug),
			)
		}
		return &DumpSignal{
			Side:           side,
			DropPct:        drop,
			Price:          last.Ask(side),
			ReferencePrice: firstAsk,
			Timestamp:      now,
			RoundSlug:      roundSlug,
		}
	}
	return nil
}

// UpdateConfig swaps the detection thresholds. Out-of-range values fail the
// call without touching the active configuration.
func (d *Detector) UpdateConfig(dropThreshold float64, windowMin int) error {
	if dropThreshold < 0.01 || dropThreshold > 0.30 {
		return fmt.Errorf("drop threshold must be within [0.01, 0.30], got %v", dropThreshold)
	}
	if windowMin < 1 || windowMin > 15 {
		return fmt.Errorf("monitor window must be within [1, 15] minutes, got %d", windowMin)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropThreshold = dropThreshold
	d.window = time.Duration(windowMin) * time.Minute
	return nil
}

// Config returns the active threshold and window for status reporting.
func (d *Detector) Config() (float64, time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropThreshold, d.window
}
