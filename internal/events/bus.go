package events

import (
	"sync"
	"time"
)

// Type enumerates the domain events published for external consumers.
type Type string

const (
	TypeConnection     Type = "connection"
	TypePriceUpdate    Type = "price_update"
	TypeRoundStarted   Type = "round_started"
	TypeRoundEnded     Type = "round_ended"
	TypeDumpDetected   Type = "dump_detected"
	TypeLegFilled      Type = "leg_filled"
	TypeCycleCompleted Type = "cycle_completed"
	TypeCycleExpired   Type = "cycle_expired"
	TypeCycleError     Type = "cycle_error"
)

type Event struct {
	Type    Type
	At      time.Time
	Payload any
}

// Bus is an explicit publish/subscribe channel constructed once and handed to
// every component that needs it. Publishing never blocks: a subscriber that
// falls behind loses events rather than stalling the engine.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	depth  int
}

func NewBus(depth int) *Bus {
	if depth <= 0 {
		depth = 64
	}
	return &Bus{subs: make(map[int]chan Event), depth: depth}
}

// Subscribe returns a receive channel and an unsubscribe function. The channel
// is closed on unsubscribe.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.depth)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

func (b *Bus) Publish(typ Type, payload any) {
	evt := Event{Type: typ, At: time.Now(), Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub <- evt:
		default:
		}
	}
}

func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
