package market

import (
	"testing"
	"time"
)

func snapAt(ts time.Time, upAsk float64) PriceSnapshot {
	return PriceSnapshot{Timestamp: ts, Up: Quote{Ask: upAsk}, Down: Quote{Ask: 1 - upAsk}}
}

func TestBufferEvictsOldest(t *testing.T) {
	b := NewBuffer(3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		b.Push(snapAt(base.Add(time.Duration(i)*time.Second), 0.5))
	}
	if b.Len() != 3 {
		t.Fatalf("expected len 3, got %d", b.Len())
	}
	latest, ok := b.Latest()
	if !ok {
		t.Fatalf("expected latest snapshot")
	}
	if !latest.Timestamp.Equal(base.Add(4 * time.Second)) {
		t.Fatalf("expected newest snapshot retained, got %v", latest.Timestamp)
	}
}

func TestBufferRecentReturnsAscendingSuffix(t *testing.T) {
	b := NewBuffer(10)
	base := time.Now()
	b.now = func() time.Time { return base }
	for i := 0; i < 6; i++ {
		b.Push(snapAt(base.Add(time.Duration(i-5)*time.Second), 0.5))
	}
	recent := b.Recent(3 * time.Second)
	if len(recent) != 4 {
		t.Fatalf("expected 4 snapshots within window, got %d", len(recent))
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].Timestamp.Before(recent[i-1].Timestamp) {
			t.Fatalf("expected ascending timestamps")
		}
	}
	if recent[0].Timestamp.Before(base.Add(-3 * time.Second)) {
		t.Fatalf("expected all snapshots within window")
	}
}

func TestBufferRecentEmptyWhenStale(t *testing.T) {
	b := NewBuffer(5)
	base := time.Now()
	b.now = func() time.Time { return base }
	b.Push(snapAt(base.Add(-time.Minute), 0.5))
	if got := b.Recent(5 * time.Second); len(got) != 0 {
		t.Fatalf("expected no recent snapshots, got %d", len(got))
	}
	empty := NewBuffer(5)
	if got := empty.Recent(5 * time.Second); len(got) != 0 {
		t.Fatalf("expected empty result from empty buffer")
	}
}

func TestBufferRecentSurvivesOutOfOrderPush(t *testing.T) {
	b := NewBuffer(5)
	base := time.Now()
	b.now = func() time.Time { return base }
	b.Push(snapAt(base.Add(-2*time.Second), 0.5))
	b.Push(snapAt(base.Add(-10*time.Second), 0.5))
	b.Push(snapAt(base.Add(-1*time.Second), 0.5))
	recent := b.Recent(5 * time.Second)
	if len(recent) != 1 {
		t.Fatalf("expected suffix to stop at out-of-order entry, got %d", len(recent))
	}
}

func TestSideOpposite(t *testing.T) {
	if SideUp.Opposite() != SideDown || SideDown.Opposite() != SideUp {
		t.Fatalf("side opposite mapping broken")
	}
}
