package market

import "time"

// Side identifies one of the two complementary outcome tokens of a round.
type Side string

const (
	SideUp   Side = "UP"
	SideDown Side = "DOWN"
)

func (s Side) Opposite() Side {
	if s == SideUp {
		return SideDown
	}
	return SideUp
}

func (s Side) Valid() bool {
	return s == SideUp || s == SideDown
}

// Quote is the best bid/ask for one token.
type Quote struct {
	Bid float64
	Ask float64
}

// PriceSnapshot is one observation of both sides of the active round. It is
// immutable once created; only the price feed produces them.
type PriceSnapshot struct {
	Timestamp   time.Time
	RoundSlug   string
	Up          Quote
	Down        Quote
	SecondsLeft float64
}

func (p PriceSnapshot) Ask(side Side) float64 {
	if side == SideUp {
		return p.Up.Ask
	}
	return p.Down.Ask
}

func (p PriceSnapshot) Bid(side Side) float64 {
	if side == SideUp {
		return p.Up.Bid
	}
	return p.Down.Bid
}

// RoundInfo describes one time-bounded market round. The tracker replaces it
// wholesale on every round transition; nothing mutates it field by field.
type RoundInfo struct {
	Slug      string
	UpToken   string
	DownToken string
	Start     time.Time
	End       time.Time
}

func (r RoundInfo) TokenID(side Side) string {
	if side == SideUp {
		return r.UpToken
	}
	return r.DownToken
}

func (r RoundInfo) Active(now time.Time) bool {
	if r.Slug == "" || r.End.IsZero() {
		return false
	}
	return now.Before(r.End)
}

func (r RoundInfo) SecondsRemaining(now time.Time) float64 {
	if r.End.IsZero() {
		return 0
	}
	left := r.End.Sub(now).Seconds()
	if left < 0 {
		return 0
	}
	return left
}
