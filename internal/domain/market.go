package domain

import "time"

// MarketSource identifies which ingestion path last wrote a market's prices.
// WebSocket data always wins over polled data on conflicting writes.
type MarketSource string

const (
	MarketSourceWS   MarketSource = "ws"
	MarketSourcePoll MarketSource = "poll"
)

// Market is the canonical tradable instrument. Outcomes, ClobTokenIDs and
// OutcomePrices share one index space: position i in each slice describes the
// same outcome.
type Market struct {
	ID             string
	ConditionID    string // on-chain hash identifier, unique
	Title          string
	Outcomes       []string
	ClobTokenIDs   []string
	OutcomePrices  []float64
	LastMidPrice   float64
	LastTradePrice float64
	Source         MarketSource
	Volume         float64
	IsResolved     bool
	ResolvedOutcome string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsBinary reports whether the market has exactly two outcomes.
func (m *Market) IsBinary() bool {
	return len(m.Outcomes) == 2
}

// TokenIndex returns the outcome index for a clob token ID, or -1 if the
// token does not belong to this market.
func (m *Market) TokenIndex(tokenID string) int {
	for i, tok := range m.ClobTokenIDs {
		if tok == tokenID {
			return i
		}
	}
	return -1
}

// TokenToOutcomeIndex builds a token-ID-to-outcome-index map for price
// extraction.
func (m *Market) TokenToOutcomeIndex() map[string]int {
	out := make(map[string]int, len(m.ClobTokenIDs))
	for i, tok := range m.ClobTokenIDs {
		if tok != "" {
			out[tok] = i
		}
	}
	return out
}

// PriceAt returns the stored price for an outcome index, or 0 when the
// vector does not cover it.
func (m *Market) PriceAt(idx int) float64 {
	if idx < 0 || idx >= len(m.OutcomePrices) {
		return 0
	}
	return m.OutcomePrices[idx]
}

// PriceTick is one historical price observation for one outcome.
type PriceTick struct {
	MarketID     string
	OutcomeIndex int
	Price        float64
	Source       MarketSource
	Timestamp    time.Time
}
