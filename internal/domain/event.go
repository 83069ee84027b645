package domain

import "time"

// TradeSide is the direction of a trade event.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// TradeEvent is a leader trade delivered over the copy_trade:* pub/sub
// channels. Delivery is at-least-once; TxID drives deduplication.
type TradeEvent struct {
	TxID         string    `json:"tx_id"`
	UserAddress  string    `json:"user_address"`
	TxType       TradeSide `json:"tx_type"`
	MarketID     string    `json:"market_id,omitempty"`
	Outcome      string    `json:"outcome,omitempty"`
	OutcomeIndex *int      `json:"outcome_index,omitempty"`
	PositionID   string    `json:"position_id,omitempty"` // clob token ID, when known
	Amount       float64   `json:"amount"`                // token units, possibly raw 6-decimal
	Price        float64   `json:"price,omitempty"`
	TakingAmount float64   `json:"taking_amount,omitempty"` // USD notional, when known
	Timestamp    int64     `json:"timestamp,omitempty"`
}

// StreamEvent is the tagged union of decoded WebSocket market-feed messages.
// Payloads are decoded into one of these at the boundary so the pricing
// pipeline never touches raw JSON.
type StreamEvent interface {
	streamEvent()
}

// PriceQuote is one asset's quote inside a price-change message. HasBBO
// reports whether BestBid/BestAsk were present; otherwise Price carries the
// legacy scalar price field.
type PriceQuote struct {
	AssetID string
	BestBid float64
	BestAsk float64
	HasBBO  bool
	Price   float64
}

// PriceChangeEvent carries one or more per-asset quotes for a market.
// Market is the identifier the venue attached to the frame: it may be a
// condition ID, a numeric market ID, or empty.
type PriceChangeEvent struct {
	Market    string
	Changes   []PriceQuote
	Timestamp time.Time
}

// PriceLevel is a single bid or ask level.
type PriceLevel struct {
	Price float64
	Size  float64
}

// BookEvent is a full orderbook snapshot for one asset.
type BookEvent struct {
	AssetID   string
	Market    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	BestBid   float64
	BestAsk   float64
	MidPrice  float64
	Timestamp time.Time
}

// LastTradeEvent is the most recent trade print for one asset.
type LastTradeEvent struct {
	AssetID   string
	Market    string
	Price     float64
	Size      float64
	Timestamp time.Time
}

func (PriceChangeEvent) streamEvent() {}
func (BookEvent) streamEvent()        {}
func (LastTradeEvent) streamEvent()   {}
