package market

import (
	"sync"
	"time"
)

// Buffer is a fixed-capacity ring of price snapshots. Pushes evict the oldest
// entry once the capacity is reached; reads return copies, so the feed can keep
// pushing while the strategy tick inspects a consistent slice.
type Buffer struct {
	mu    sync.Mutex
	items []PriceSnapshot
	head  int
	size  int
	now   func() time.Time
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{
		items: make([]PriceSnapshot, capacity),
		now:   time.Now,
	}
}

func (b *Buffer) Push(snap PriceSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := (b.head + b.size) % len(b.items)
	b.items[idx] = snap
	if b.size < len(b.items) {
		b.size++
		return
	}
	b.head = (b.head + 1) % len(b.items)
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Latest returns the most recently pushed snapshot.
func (b *Buffer) Latest() (PriceSnapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size == 0 {
		return PriceSnapshot{}, false
	}
	idx := (b.head + b.size - 1) % len(b.items)
	return b.items[idx], true
}

// Recent returns, oldest first, the contiguous suffix of stored snapshots whose
// timestamp is at or after now-window. The backward scan stops at the first
// older entry, so a violated ordering assumption still yields a correctly
// bounded suffix instead of a crash.
func (b *Buffer) Recent(window time.Duration) []PriceSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size == 0 {
		return nil
	}
	cutoff := b.now().Add(-window)
	count := 0
	for i := b.size - 1; i >= 0; i-- {
		idx := (b.head + i) % len(b.items)
		if b.items[idx].Timestamp.Before(cutoff) {
			break
		}
		count++
	}
	if count == 0 {
		return nil
	}
	out := make([]PriceSnapshot, 0, count)
	for i := b.size - count; i < b.size; i++ {
		idx := (b.head + i) % len(b.items)
		out = append(out, b.items[idx])
	}
	return out
}
