package domain

import "time"

// PositionStatus tracks whether a position is active or closed.
type PositionStatus string

const (
	PositionStatusActive PositionStatus = "active"
	PositionStatusClosed PositionStatus = "closed"
)

// Position is a user's stake in one market outcome. PositionID carries the
// clob token ID, which is the ground-truth outcome identifier; Outcome is the
// human label and may need normalization against the market's outcome list.
//
// Multiple active rows may exist for the same (UserID, PositionID) from
// successive buys; they are aggregated by summation when sizing a sell.
type Position struct {
	ID              string
	UserID          string
	MarketID        string
	Outcome         string
	PositionID      string // clob token ID
	Amount          float64
	EntryPrice      float64
	CurrentPrice    float64
	PnLAmount       float64
	PnLPercentage   float64
	TakeProfitPrice *float64
	StopLossPrice   *float64
	Status          PositionStatus
	OpenedAt        time.Time
	ClosedAt        *time.Time
	UpdatedAt       time.Time
}

// HasExitRules reports whether either a take-profit or stop-loss is set.
func (p *Position) HasExitRules() bool {
	return p.TakeProfitPrice != nil || p.StopLossPrice != nil
}
