package domain

// OrderSide is the direction of an outbound order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// MarketOrder is a request to the trade execution service. BUY orders are
// denominated in USD (AmountUSD); SELL orders are denominated in token units
// (Tokens) to avoid double conversion error, with AmountUSD carried only as
// an estimate for logging and minimum checks.
type MarketOrder struct {
	UserID    string
	MarketID  string
	Outcome   string
	TokenID   string
	Side      OrderSide
	AmountUSD float64
	Tokens    float64
}

// OrderResult is the trade execution service's response.
type OrderResult struct {
	Success     bool
	OrderID     string
	Price       float64
	Tokens      float64
	USDReceived float64
	Err         string
}
