package market

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNoActiveRound is returned by a Discoverer when the series currently has
// no live round.
var ErrNoActiveRound = errors.New("no active round")

// Discoverer resolves the currently live round of a recurring series. The
// Gamma REST client implements it; tests swap in a fake.
type Discoverer interface {
	ActiveRound(ctx context.Context, seriesSlug string) (RoundInfo, error)
}

// RoundChange reports boundary transitions observed during a refresh. Started
// and Ended may both be set when one round rolls directly into the next.
type RoundChange struct {
	Started *RoundInfo
	Ended   *RoundInfo
}

func (c RoundChange) Empty() bool {
	return c.Started == nil && c.Ended == nil
}

// Tracker owns the active RoundInfo. The engine is the only writer (via
// Refresh); everything else reads.
type Tracker struct {
	discoverer Discoverer
	seriesSlug string
	fallback   RoundInfo
	log        *zap.Logger
	now        func() time.Time

	mu            sync.RWMutex
	current       RoundInfo
	haveRound     bool
	usingFallback bool
	endReported   bool
}

func NewTracker(discoverer Discoverer, seriesSlug string, fallback RoundInfo, log *zap.Logger) *Tracker {
	return &Tracker{
		discoverer: discoverer,
		seriesSlug: seriesSlug,
		fallback:   fallback,
		log:        log,
		now:        time.Now,
	}
}

// Refresh re-discovers the active round and reports any boundary crossed since
// the previous call. Discovery failures fall back to the static round when one
// is configured; they never clear an already-tracked round.
func (t *Tracker) Refresh(ctx context.Context) RoundChange {
	next, fromFallback, ok := t.discover(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	var change RoundChange
	now := t.now()

	if ok && (!t.haveRound || next.Slug != t.current.Slug) {
		if t.haveRound && !t.endReported {
			ended := t.current
			change.Ended = &ended
		}
		t.current = next
		t.haveRound = true
		t.usingFallback = fromFallback
		t.endReported = false
		started := next
		change.Started = &started
		return change
	}

	if t.haveRound && !t.endReported && !t.current.Active(now) {
		ended := t.current
		change.Ended = &ended
		t.endReported = true
	}
	return change
}

func (t *Tracker) discover(ctx context.Context) (RoundInfo, bool, bool) {
	if t.discoverer != nil && t.seriesSlug != "" {
		round, err := t.discoverer.ActiveRound(ctx, t.seriesSlug)
		if err == nil && round.Slug != "" {
			return round, false, true
		}
		if err != nil && !errors.Is(err, ErrNoActiveRound) && t.log != nil {
			t.log.Warn("round discovery failed", zap.Error(err))
		}
	}
	if t.fallback.Slug != "" && t.fallback.Active(t.now()) {
		return t.fallback, true, true
	}
	return RoundInfo{}, false, false
}

func (t *Tracker) Current() (RoundInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current, t.haveRound
}

func (t *Tracker) Slug() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.haveRound {
		return ""
	}
	return t.current.Slug
}

func (t *Tracker) TokenID(side Side) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.haveRound {
		return ""
	}
	return t.current.TokenID(side)
}

func (t *Tracker) SecondsRemaining() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.haveRound {
		return 0
	}
	return t.current.SecondsRemaining(t.now())
}

// Active reports whether the tracked round is still inside its time bounds.
func (t *Tracker) Active() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.haveRound && t.current.Active(t.now())
}

func (t *Tracker) UsingFallback() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.usingFallback
}
