package clob

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"poly-dump-hedge/internal/clob/ws"
	"poly-dump-hedge/internal/market"

	"go.uber.org/zap"
)

// Feed turns raw market-channel messages into PriceSnapshots for the active
// round. It keeps a small per-token level book so best bid/ask survive
// incremental price_change updates between full book events.
type Feed struct {
	ws         *ws.Client
	log        *zap.Logger
	now        func() time.Time
	onSnapshot func(market.PriceSnapshot)

	mu        sync.Mutex
	round     market.RoundInfo
	haveRound bool
	books     map[string]*levelBook
}

type levelBook struct {
	bids map[string]float64
	asks map[string]float64
}

func newLevelBook() *levelBook {
	return &levelBook{bids: make(map[string]float64), asks: make(map[string]float64)}
}

func NewFeed(wsClient *ws.Client, log *zap.Logger) *Feed {
	return &Feed{
		ws:    wsClient,
		log:   log,
		now:   time.Now,
		books: make(map[string]*levelBook),
	}
}

// OnSnapshot registers the snapshot consumer. Must be set before Run.
func (f *Feed) OnSnapshot(fn func(market.PriceSnapshot)) {
	f.onSnapshot = fn
}

// OnStateChange is forwarded to the underlying connection.
func (f *Feed) OnStateChange(fn func(connected bool)) {
	f.ws.OnStateChange(fn)
}

// SetRound switches the feed to a new round's token pair, clearing stale
// books and resubscribing. Called on every round boundary and after a
// reconnect.
func (f *Feed) SetRound(ctx context.Context, round market.RoundInfo) error {
	f.mu.Lock()
	f.round = round
	f.haveRound = round.Slug != ""
	f.books = make(map[string]*levelBook)
	f.mu.Unlock()
	if !f.haveRound {
		return nil
	}
	return f.ws.Subscribe(ctx, []string{round.UpToken, round.DownToken})
}

func (f *Feed) Run(ctx context.Context) error {
	return f.ws.Run(ctx, f.handleMessage)
}

type bookEvent struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Bids      []wireLevel `json:"bids"`
	Asks      []wireLevel `json:"asks"`
	Changes   []wireLevel `json:"changes"`
}

type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
	Side  string `json:"side"`
}

// handleMessage accepts both single events and the batched array form the
// market channel uses.
func (f *Feed) handleMessage(raw json.RawMessage) {
	var batch []bookEvent
	if err := json.Unmarshal(raw, &batch); err != nil {
		var single bookEvent
		if err := json.Unmarshal(raw, &single); err != nil {
			return
		}
		batch = []bookEvent{single}
	}
	updated := false
	for _, evt := range batch {
		if f.applyEvent(evt) {
			updated = true
		}
	}
	if updated {
		f.emitSnapshot()
	}
}

func (f *Feed) applyEvent(evt bookEvent) bool {
	if evt.AssetID == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.haveRound || (evt.AssetID != f.round.UpToken && evt.AssetID != f.round.DownToken) {
		return false
	}
	switch evt.EventType {
	case "book":
		book := newLevelBook()
		for _, lvl := range evt.Bids {
			setLevel(book.bids, lvl.Price, lvl.Size)
		}
		for _, lvl := range evt.Asks {
			setLevel(book.asks, lvl.Price, lvl.Size)
		}
		f.books[evt.AssetID] = book
		return true
	case "price_change":
		book, ok := f.books[evt.AssetID]
		if !ok {
			book = newLevelBook()
			f.books[evt.AssetID] = book
		}
		for _, change := range evt.Changes {
			if change.Side == "BUY" {
				setLevel(book.bids, change.Price, change.Size)
			} else {
				setLevel(book.asks, change.Price, change.Size)
			}
		}
		return true
	default:
		return false
	}
}

func setLevel(levels map[string]float64, price, size string) {
	sz, err := strconv.ParseFloat(size, 64)
	if err != nil {
		return
	}
	if sz <= 0 {
		delete(levels, price)
		return
	}
	levels[price] = sz
}

// emitSnapshot publishes a combined two-sided snapshot once both token books
// are known.
func (f *Feed) emitSnapshot() {
	f.mu.Lock()
	if !f.haveRound {
		f.mu.Unlock()
		return
	}
	upBook, upOK := f.books[f.round.UpToken]
	downBook, downOK := f.books[f.round.DownToken]
	if !upOK || !downOK {
		f.mu.Unlock()
		return
	}
	now := f.now()
	snap := market.PriceSnapshot{
		Timestamp:   now,
		RoundSlug:   f.round.Slug,
		Up:          quoteFrom(upBook),
		Down:        quoteFrom(downBook),
		SecondsLeft: f.round.SecondsRemaining(now),
	}
	f.mu.Unlock()
	if f.onSnapshot != nil {
		f.onSnapshot(snap)
	}
}

func quoteFrom(book *levelBook) market.Quote {
	return market.Quote{
		Bid: bestPrice(book.bids, true),
		Ask: bestPrice(book.asks, false),
	}
}

func bestPrice(levels map[string]float64, highest bool) float64 {
	best := 0.0
	found := false
	for raw := range levels {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if !found || (highest && price > best) || (!highest && price < best) {
			best = price
			found = true
		}
	}
	if !found {
		return 0
	}
	return best
}
