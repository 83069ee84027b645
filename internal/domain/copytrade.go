package domain

import "time"

// CopyTradeStatus is the outcome of a single copy attempt.
type CopyTradeStatus string

const (
	CopyTradeExecuted CopyTradeStatus = "executed"
	CopyTradeSkipped  CopyTradeStatus = "skipped"
	CopyTradeFailed   CopyTradeStatus = "failed"
)

// CopyTrade is one journal row per copy attempt: executed orders, business
// rule skips (below floor, no position) and technical failures alike.
type CopyTrade struct {
	ID            string
	TxID          string // leader trade event tx id
	LeaderAddress string
	UserID        string // follower
	MarketID      string
	TokenID       string
	Outcome       string
	Side          OrderSide
	AmountUSD     float64
	Tokens        float64
	Price         float64
	Status        CopyTradeStatus
	Reason        string
	OrderID       string
	CreatedAt     time.Time
}
