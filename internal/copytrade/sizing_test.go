package copytrade

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polyecho/echobot/internal/domain"
)

func proportionalAlloc(budget float64) domain.CopyTradingAllocation {
	return domain.CopyTradingAllocation{
		ID:              "a1",
		UserID:          "u1",
		Mode:            domain.AllocationModeProportional,
		AllocatedBudget: budget,
	}
}

func TestBuySizeProportional(t *testing.T) {
	s := NewSizer(0, 0)

	// Leader risked 10% of a $1000 bankroll; the follower mirrors 10% of a
	// $50 budget.
	ev := domain.TradeEvent{TxType: domain.TradeSideBuy, TakingAmount: 100}
	usd, reason := s.BuySize(ev, proportionalAlloc(50), 1000, true, 500)
	assert.Empty(t, reason)
	assert.InDelta(t, 5.00, usd, 1e-9)
}

func TestBuySizeProportionalDegradesWithoutLeaderBalance(t *testing.T) {
	s := NewSizer(0, 0)

	ev := domain.TradeEvent{TxType: domain.TradeSideBuy, TakingAmount: 75}
	usd, reason := s.BuySize(ev, proportionalAlloc(50), 0, false, 500)
	assert.Empty(t, reason)
	assert.InDelta(t, 50.00, usd, 1e-9, "unknown leader balance caps the copy at the budget")

	usd, reason = s.BuySize(ev, proportionalAlloc(200), 0, false, 500)
	assert.Empty(t, reason)
	assert.InDelta(t, 75.00, usd, 1e-9, "or at the leader's notional when smaller")
}

func TestBuySizeNotionalFallback(t *testing.T) {
	s := NewSizer(0, 0)

	// No taking_amount: reconstruct from amount x price, converting raw
	// 6-decimal units.
	ev := domain.TradeEvent{TxType: domain.TradeSideBuy, Amount: 200_000_000, Price: 0.50}
	usd, reason := s.BuySize(ev, proportionalAlloc(100), 1000, true, 500)
	assert.Empty(t, reason)
	assert.InDelta(t, 10.00, usd, 1e-9, "200 tokens at $0.50 is a $100 trade, 10% of bankroll")
}

func TestBuySizeFixedMode(t *testing.T) {
	s := NewSizer(0, 0)
	alloc := domain.CopyTradingAllocation{Mode: domain.AllocationModeFixed, FixedAmount: 25}

	ev := domain.TradeEvent{TxType: domain.TradeSideBuy, TakingAmount: 500}
	usd, reason := s.BuySize(ev, alloc, 1000, true, 100)
	assert.Empty(t, reason)
	assert.InDelta(t, 25.00, usd, 1e-9)

	usd, reason = s.BuySize(ev, alloc, 1000, true, 10)
	assert.Empty(t, reason)
	assert.InDelta(t, 10.00, usd, 1e-9, "fixed amount capped by follower balance")
}

func TestBuySizeFloor(t *testing.T) {
	s := NewSizer(0, 0)

	ev := domain.TradeEvent{TxType: domain.TradeSideBuy, TakingAmount: 10}
	usd, reason := s.BuySize(ev, proportionalAlloc(50), 1000, true, 500)
	assert.Zero(t, usd)
	assert.Equal(t, "below minimum buy amount", reason, "a $0.50 computed copy is dropped")
}

func TestBuySizeRoundsDownToCents(t *testing.T) {
	s := NewSizer(0, 0)

	ev := domain.TradeEvent{TxType: domain.TradeSideBuy, TakingAmount: 33.333}
	usd, reason := s.BuySize(ev, proportionalAlloc(100), 1000, true, 500)
	assert.Empty(t, reason)
	assert.InDelta(t, 3.33, usd, 1e-9)
}

func TestSellSizeFraction(t *testing.T) {
	s := NewSizer(0, 0)

	// Leader sold 50 of a 200-token pre-sell position (25%); follower holds
	// 80 tokens and sells 20.
	ev := domain.TradeEvent{TxType: domain.TradeSideSell, Amount: 50}
	tokens, usd, reason := s.SellSize(ev, 150, 80, 0.40)
	assert.Empty(t, reason)
	assert.InDelta(t, 20.0, tokens, 1e-9)
	assert.InDelta(t, 8.0, usd, 1e-9)
}

func TestSellSizeFullExitWhenLeaderFlat(t *testing.T) {
	s := NewSizer(0, 0)

	// Leader holding is zero after the sell: the whole position went.
	ev := domain.TradeEvent{TxType: domain.TradeSideSell, Amount: 120}
	tokens, _, reason := s.SellSize(ev, 0, 40, 0.50)
	assert.Empty(t, reason)
	assert.InDelta(t, 40.0, tokens, 1e-9)
}

func TestSellSizeFloor(t *testing.T) {
	s := NewSizer(0, 0)

	// $0.30 equivalent is rejected, $0.51 is accepted.
	ev := domain.TradeEvent{TxType: domain.TradeSideSell, Amount: 100}
	tokens, usd, reason := s.SellSize(ev, 0, 1, 0.30)
	assert.Zero(t, tokens)
	assert.Zero(t, usd)
	assert.Equal(t, "below minimum sell amount", reason)

	tokens, usd, reason = s.SellSize(ev, 0, 1, 0.51)
	assert.Empty(t, reason)
	assert.InDelta(t, 1.0, tokens, 1e-9)
	assert.InDelta(t, 0.51, usd, 1e-9)
}

func TestSellSizeRawUnitConversion(t *testing.T) {
	s := NewSizer(0, 0)

	// 50_000_000 raw units is 50 tokens.
	ev := domain.TradeEvent{TxType: domain.TradeSideSell, Amount: 50_000_000}
	tokens, _, reason := s.SellSize(ev, 50, 80, 0.40)
	assert.Empty(t, reason)
	assert.InDelta(t, 40.0, tokens, 1e-9, "leader sold half the pre-sell position")
}

func TestSellSizeNoFollowerPosition(t *testing.T) {
	s := NewSizer(0, 0)

	ev := domain.TradeEvent{TxType: domain.TradeSideSell, Amount: 10}
	tokens, _, reason := s.SellSize(ev, 90, 0, 0.50)
	assert.Zero(t, tokens)
	assert.Equal(t, "no follower position", reason)
}
