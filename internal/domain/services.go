package domain

import "context"

// MarketFetcher retrieves market metadata from the upstream market API,
// used for on-demand fetch-and-insert when a market is unknown locally.
type MarketFetcher interface {
	FetchMarket(ctx context.Context, id string) (Market, error)
}

// TradeExecutor submits market orders to the execution venue.
type TradeExecutor interface {
	ExecuteMarketOrder(ctx context.Context, order MarketOrder) (OrderResult, error)
}

// BalanceProvider reads wallet balances and holdings from the venue's data
// API. WalletPosition returns the token count a wallet currently holds for
// one clob token ID.
type BalanceProvider interface {
	WalletBalance(ctx context.Context, address string) (float64, error)
	UserBalance(ctx context.Context, userID string) (float64, error)
	WalletPosition(ctx context.Context, address, tokenID string) (float64, error)
}

// NotificationQueue accepts fire-and-forget user notifications. Enqueue
// failures are swallowed by implementations; delivery is best effort and
// must never fail the operation that produced the notification.
type NotificationQueue interface {
	QueueNotification(ctx context.Context, userID, title, message string)
}
