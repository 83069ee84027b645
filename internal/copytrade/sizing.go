package copytrade

import (
	"math"

	"github.com/polyecho/echobot/internal/domain"
)

const (
	defaultMinBuyUSD  = 1.00
	defaultMinSellUSD = 0.50

	// rawUnitThreshold separates human token counts from raw 6-decimal
	// on-chain units. No real position reaches a million whole tokens.
	rawUnitThreshold = 1_000_000
)

// Sizer computes follower copy sizes from leader trade events. Zero-value
// floors fall back to the venue minimums of $1.00 per buy and $0.50 per
// sell.
type Sizer struct {
	minBuyUSD  float64
	minSellUSD float64
}

// NewSizer creates a Sizer with the given floors.
func NewSizer(minBuyUSD, minSellUSD float64) Sizer {
	if minBuyUSD <= 0 {
		minBuyUSD = defaultMinBuyUSD
	}
	if minSellUSD <= 0 {
		minSellUSD = defaultMinSellUSD
	}
	return Sizer{minBuyUSD: minBuyUSD, minSellUSD: minSellUSD}
}

// convertUnits normalizes a token amount that may arrive in raw 6-decimal
// on-chain units.
func convertUnits(v float64) float64 {
	if v > rawUnitThreshold {
		return v / 1e6
	}
	return v
}

// floorCents rounds a dollar amount down to whole cents. Rounding down keeps
// the copy inside the allocated budget.
func floorCents(v float64) float64 {
	return math.Floor(v*100) / 100
}

// leaderTradeUSD reconstructs the leader's USD notional for a buy. The
// event's taking_amount is the venue's own figure and wins when present;
// otherwise amount x price approximates it.
func leaderTradeUSD(ev domain.TradeEvent) float64 {
	if ev.TakingAmount > 0 {
		return convertUnits(ev.TakingAmount)
	}
	if ev.Price > 0 {
		return convertUnits(ev.Amount) * ev.Price
	}
	return 0
}

// BuySize computes the follower's copy amount in USD for a leader buy. A
// zero return with a non-empty reason is a business-rule skip, not an error.
//
// Proportional mode mirrors the fraction of bankroll the leader risked onto
// the follower's allocated budget. When the leader's balance is unknown the
// sizing degrades to min(leader notional, budget). Fixed mode copies a flat
// amount capped by the follower's balance.
func (s Sizer) BuySize(ev domain.TradeEvent, alloc domain.CopyTradingAllocation, leaderBalance float64, leaderBalanceKnown bool, followerBalance float64) (float64, string) {
	tradeUSD := leaderTradeUSD(ev)
	if tradeUSD <= 0 {
		return 0, "leader notional unavailable"
	}

	var usd float64
	switch alloc.Mode {
	case domain.AllocationModeFixed:
		usd = math.Min(alloc.FixedAmount, followerBalance)
	default:
		budget := effectiveBudget(alloc, followerBalance)
		if budget <= 0 {
			return 0, "no allocated budget"
		}
		if leaderBalanceKnown && leaderBalance > 0 {
			usd = tradeUSD / leaderBalance * budget
		} else {
			usd = math.Min(tradeUSD, budget)
		}
	}

	usd = floorCents(usd)
	if usd < s.minBuyUSD {
		return 0, "below minimum buy amount"
	}
	return usd, ""
}

// SellSize computes the follower's tokens to sell for a leader sell. The
// leader's pre-sell position is reconstructed as current holding plus the
// tokens just sold, and the fraction sold is applied to the follower's own
// aggregate holding. The returned usdEstimate exists for the floor check and
// logging; the order itself is placed in token units.
func (s Sizer) SellSize(ev domain.TradeEvent, leaderCurrent, followerTokens, currentPrice float64) (tokens, usdEstimate float64, reason string) {
	tokensSold := convertUnits(ev.Amount)
	if tokensSold <= 0 {
		return 0, 0, "leader sold zero tokens"
	}
	if followerTokens <= 0 {
		return 0, 0, "no follower position"
	}

	preSell := convertUnits(leaderCurrent) + tokensSold
	fraction := tokensSold / preSell
	if fraction > 1 {
		fraction = 1
	}

	tokens = followerTokens * fraction
	usdEstimate = tokens * currentPrice
	if usdEstimate < s.minSellUSD {
		return 0, 0, "below minimum sell amount"
	}
	return tokens, usdEstimate, ""
}

// effectiveBudget derives the follower's allocated budget. A stored budget
// wins; otherwise it is derived from the live balance per the allocation
// type.
func effectiveBudget(alloc domain.CopyTradingAllocation, followerBalance float64) float64 {
	if alloc.AllocatedBudget > 0 {
		return alloc.AllocatedBudget
	}
	switch alloc.AllocationType {
	case domain.AllocationTypePercentage:
		return followerBalance * alloc.AllocationValue / 100
	case domain.AllocationTypeFixedAmount:
		return math.Min(alloc.AllocationValue, followerBalance)
	default:
		return 0
	}
}
