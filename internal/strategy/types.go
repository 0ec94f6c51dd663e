package strategy

import (
	"time"

	"poly-dump-hedge/internal/market"
)

// CycleStatus is the phase of one round's trade cycle.
type CycleStatus string

const (
	StatusIdle         CycleStatus = "IDLE"
	StatusWatching     CycleStatus = "WATCHING"
	StatusLeg1Pending  CycleStatus = "LEG1_PENDING"
	StatusLeg1Filled   CycleStatus = "LEG1_FILLED"
	StatusLeg2Pending  CycleStatus = "LEG2_PENDING"
	StatusCompleted    CycleStatus = "COMPLETED"
	StatusRoundExpired CycleStatus = "ROUND_EXPIRED"
	StatusError        CycleStatus = "ERROR"
)

// Terminal statuses stay put until the machine is reset or a new cycle starts.
func (s CycleStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRoundExpired || s == StatusError
}

// DumpSignal is a one-shot detection of a sharp one-sided ask collapse.
type DumpSignal struct {
	Side           market.Side `json:"side"`
	DropPct        float64     `json:"drop_pct"`
	Price          float64     `json:"price"`
	ReferencePrice float64     `json:"reference_price"`
	Timestamp      time.Time   `json:"timestamp"`
	RoundSlug      string      `json:"round_slug"`
}

// LegInfo records one filled purchase. Immutable once created.
type LegInfo struct {
	OrderID   string      `json:"order_id"`
	Side      market.Side `json:"side"`
	Shares    int         `json:"shares"`
	Price     float64     `json:"price"`
	TotalCost float64     `json:"total_cost"`
	FilledAt  time.Time   `json:"filled_at"`
}

// TradeCycle is the full record of one round's trade, owned exclusively by the
// state machine and upserted into the store at every checkpoint.
type TradeCycle struct {
	ID               string      `json:"id"`
	RoundSlug        string      `json:"round_slug"`
	Status           CycleStatus `json:"status"`
	Leg1             *LegInfo    `json:"leg1,omitempty"`
	Leg2             *LegInfo    `json:"leg2,omitempty"`
	Profit           *float64    `json:"profit,omitempty"`
	GuaranteedProfit *float64    `json:"guaranteed_profit,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	Error            string      `json:"error,omitempty"`
}

// Clone returns a deep copy so checkpoint consumers never alias live state.
func (c *TradeCycle) Clone() TradeCycle {
	out := *c
	if c.Leg1 != nil {
		leg := *c.Leg1
		out.Leg1 = &leg
	}
	if c.Leg2 != nil {
		leg := *c.Leg2
		out.Leg2 = &leg
	}
	if c.Profit != nil {
		v := *c.Profit
		out.Profit = &v
	}
	if c.GuaranteedProfit != nil {
		v := *c.GuaranteedProfit
		out.GuaranteedProfit = &v
	}
	return out
}
