package clob

import (
	"encoding/json"
	"testing"
	"time"

	"poly-dump-hedge/internal/market"

	"go.uber.org/zap"
)

func newTestFeed() (*Feed, *[]market.PriceSnapshot) {
	f := NewFeed(nil, zap.NewNop())
	f.round = market.RoundInfo{
		Slug:      "btc-1h-0900",
		UpToken:   "tok-up",
		DownToken: "tok-down",
		End:       time.Now().Add(time.Hour),
	}
	f.haveRound = true
	var snaps []market.PriceSnapshot
	f.OnSnapshot(func(s market.PriceSnapshot) { snaps = append(snaps, s) })
	return f, &snaps
}

func bookMessage(assetID, bid, ask string) json.RawMessage {
	return json.RawMessage(`[{
		"event_type": "book",
		"asset_id": "` + assetID + `",
		"bids": [{"price": "` + bid + `", "size": "100"}],
		"asks": [{"price": "` + ask + `", "size": "100"}]
	}]`)
}

func TestFeedEmitsSnapshotWhenBothBooksKnown(t *testing.T) {
	f, snaps := newTestFeed()
	f.handleMessage(bookMessage("tok-up", "0.58", "0.60"))
	if len(*snaps) != 0 {
		t.Fatalf("expected no snapshot with one-sided book")
	}
	f.handleMessage(bookMessage("tok-down", "0.38", "0.40"))
	if len(*snaps) != 1 {
		t.Fatalf("expected snapshot once both books known, got %d", len(*snaps))
	}
	snap := (*snaps)[0]
	if snap.Up.Ask != 0.60 || snap.Up.Bid != 0.58 {
		t.Fatalf("unexpected up quote: %+v", snap.Up)
	}
	if snap.Down.Ask != 0.40 || snap.Down.Bid != 0.38 {
		t.Fatalf("unexpected down quote: %+v", snap.Down)
	}
	if snap.RoundSlug != "btc-1h-0900" {
		t.Fatalf("expected round slug on snapshot, got %q", snap.RoundSlug)
	}
	if snap.SecondsLeft <= 0 {
		t.Fatalf("expected positive seconds remaining")
	}
}

func TestFeedAppliesPriceChanges(t *testing.T) {
	f, snaps := newTestFeed()
	f.handleMessage(bookMessage("tok-up", "0.58", "0.60"))
	f.handleMessage(bookMessage("tok-down", "0.38", "0.40"))

	change := json.RawMessage(`{
		"event_type": "price_change",
		"asset_id": "tok-up",
		"changes": [
			{"price": "0.60", "side": "SELL", "size": "0"},
			{"price": "0.55", "side": "SELL", "size": "50"}
		]
	}`)
	f.handleMessage(change)
	last := (*snaps)[len(*snaps)-1]
	if last.Up.Ask != 0.55 {
		t.Fatalf("expected best ask repriced to 0.55, got %v", last.Up.Ask)
	}
}

func TestFeedIgnoresForeignAssets(t *testing.T) {
	f, snaps := newTestFeed()
	f.handleMessage(bookMessage("other-token", "0.10", "0.20"))
	if len(*snaps) != 0 {
		t.Fatalf("expected foreign asset ignored")
	}
}

func TestFeedIgnoresMalformedMessages(t *testing.T) {
	f, snaps := newTestFeed()
	f.handleMessage(json.RawMessage(`not json`))
	f.handleMessage(json.RawMessage(`{"event_type":"unknown"}`))
	if len(*snaps) != 0 {
		t.Fatalf("expected malformed input dropped")
	}
}
