package strategy

import "poly-dump-hedge/internal/market"

// Calculator holds the two hedge parameters. All methods are pure; the engine
// calls them every tick without synchronization.
type Calculator struct {
	SumTarget float64
	FeeRate   float64
}

func NewCalculator(sumTarget, feeRate float64) Calculator {
	return Calculator{SumTarget: sumTarget, FeeRate: feeRate}
}

// ShouldHedge reports whether buying the opposite side at oppositePrice locks
// the combined cost at or below the target. The boundary is inclusive.
func (c Calculator) ShouldHedge(leg1Price, oppositePrice float64) bool {
	return leg1Price+oppositePrice <= c.SumTarget
}

// MaxLeg2Price is the highest opposite-side price that still satisfies the
// sum target for a given leg-1 entry.
func (c Calculator) MaxLeg2Price(leg1Price float64) float64 {
	return c.SumTarget - leg1Price
}

type ProfitBreakdown struct {
	Gross float64
	Fees  float64
	Net   float64
}

// GuaranteedProfit computes settlement profit for a completed hedge. The fee
// term applies the rate to the combined notional of both legs and doubles it,
// one charge per leg. Gross may be negative and is never clamped.
func (c Calculator) GuaranteedProfit(leg1Price, leg2Price float64, shares int) ProfitBreakdown {
	n := float64(shares)
	gross := n * (1 - leg1Price - leg2Price)
	fees := (leg1Price + leg2Price) * n * c.FeeRate * 2
	return ProfitBreakdown{Gross: gross, Fees: fees, Net: gross - fees}
}

// HedgeDecision is the per-tick evaluation of whether leg 2 should fire.
type HedgeDecision struct {
	ShouldHedge     bool
	CurrentSum      float64
	OppositePrice   float64
	PotentialProfit float64
}

// Evaluate reads the opposite-side best ask from the snapshot and prices the
// hedge against the filled first leg.
func (c Calculator) Evaluate(leg1 LegInfo, snap market.PriceSnapshot) HedgeDecision {
	opposite := snap.Ask(leg1.Side.Opposite())
	sum := leg1.Price + opposite
	profit := c.GuaranteedProfit(leg1.Price, opposite, leg1.Shares)
	return HedgeDecision{
		ShouldHedge:     c.ShouldHedge(leg1.Price, opposite),
		CurrentSum:      sum,
		OppositePrice:   opposite,
		PotentialProfit: profit.Net,
	}
}
