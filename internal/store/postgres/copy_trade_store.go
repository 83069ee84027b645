package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyecho/echobot/internal/domain"
)

// CopyTradeStore implements domain.CopyTradeStore using PostgreSQL. The
// journal is append-only; old rows are exported to blob storage and pruned by
// the archiver.
type CopyTradeStore struct {
	pool *pgxpool.Pool
}

// NewCopyTradeStore creates a new CopyTradeStore backed by the given connection pool.
func NewCopyTradeStore(pool *pgxpool.Pool) *CopyTradeStore {
	return &CopyTradeStore{pool: pool}
}

const copyTradeCols = `id, tx_id, leader_address, user_id, market_id, token_id,
	outcome, side, amount_usd, tokens, price, status, reason, order_id, created_at`

// Insert appends a journal row.
func (s *CopyTradeStore) Insert(ctx context.Context, ct domain.CopyTrade) error {
	const query = `
		INSERT INTO copy_trades (
			id, tx_id, leader_address, user_id, market_id, token_id,
			outcome, side, amount_usd, tokens, price, status, reason, order_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13, $14, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		ct.ID, ct.TxID, ct.LeaderAddress, ct.UserID, ct.MarketID, ct.TokenID,
		ct.Outcome, string(ct.Side), ct.AmountUSD, ct.Tokens, ct.Price,
		string(ct.Status), ct.Reason, ct.OrderID,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert copy trade %s: %w", ct.ID, err)
	}
	return nil
}

// ListBefore returns journal rows older than the cutoff, oldest first.
func (s *CopyTradeStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.CopyTrade, error) {
	query := `SELECT ` + copyTradeCols + ` FROM copy_trades WHERE created_at < $1 ORDER BY created_at`
	args := []any{cutoff}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list copy trades before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var trades []domain.CopyTrade
	for rows.Next() {
		ct, err := scanCopyTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan copy trade: %w", err)
		}
		trades = append(trades, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: copy trade rows: %w", err)
	}
	return trades, nil
}

// DeleteBefore removes journal rows older than the cutoff and reports how
// many were deleted.
func (s *CopyTradeStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM copy_trades WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete copy trades before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanCopyTrade(row pgx.Row) (domain.CopyTrade, error) {
	var ct domain.CopyTrade
	var side, status string
	err := row.Scan(
		&ct.ID, &ct.TxID, &ct.LeaderAddress, &ct.UserID, &ct.MarketID, &ct.TokenID,
		&ct.Outcome, &side, &ct.AmountUSD, &ct.Tokens, &ct.Price,
		&status, &ct.Reason, &ct.OrderID, &ct.CreatedAt,
	)
	if err != nil {
		return domain.CopyTrade{}, err
	}
	ct.Side = domain.OrderSide(side)
	ct.Status = domain.CopyTradeStatus(status)
	return ct, nil
}

// Compile-time interface check.
var _ domain.CopyTradeStore = (*CopyTradeStore)(nil)
