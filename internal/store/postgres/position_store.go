package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyecho/echobot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionCols = `id, user_id, market_id, outcome, position_id,
	amount, entry_price, current_price, pnl_amount, pnl_percentage,
	take_profit_price, stop_loss_price, status, opened_at, closed_at, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var status string
	err := row.Scan(
		&p.ID, &p.UserID, &p.MarketID, &p.Outcome, &p.PositionID,
		&p.Amount, &p.EntryPrice, &p.CurrentPrice, &p.PnLAmount, &p.PnLPercentage,
		&p.TakeProfitPrice, &p.StopLossPrice, &status, &p.OpenedAt, &p.ClosedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)
	return p, nil
}

// Create inserts a new position row.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, user_id, market_id, outcome, position_id,
			amount, entry_price, current_price, pnl_amount, pnl_percentage,
			take_profit_price, stop_loss_price, status, opened_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, NOW(), NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.UserID, p.MarketID, p.Outcome, p.PositionID,
		p.Amount, p.EntryPrice, p.CurrentPrice, p.PnLAmount, p.PnLPercentage,
		p.TakeProfitPrice, p.StopLossPrice, string(p.Status),
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a position by its primary key.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListActiveByMarket returns all active positions on a market.
func (s *PositionStore) ListActiveByMarket(ctx context.Context, marketID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions WHERE market_id = $1 AND status = 'active'`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for market %s: %w", marketID, err)
	}
	defer rows.Close()

	return collectPositions(rows)
}

// ListActiveByUserToken returns active rows for one user and clob token.
func (s *PositionStore) ListActiveByUserToken(ctx context.Context, userID, tokenID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions
		 WHERE user_id = $1 AND position_id = $2 AND status = 'active'
		 ORDER BY opened_at`,
		userID, tokenID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for user %s token %s: %w", userID, tokenID, err)
	}
	defer rows.Close()

	return collectPositions(rows)
}

func collectPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: position rows: %w", err)
	}
	return positions, nil
}

// UpdatePriceBatch writes current price and PnL for many positions in one
// round trip.
func (s *PositionStore) UpdatePriceBatch(ctx context.Context, positions []domain.Position) error {
	if len(positions) == 0 {
		return nil
	}

	const query = `
		UPDATE positions
		SET current_price = $2, pnl_amount = $3, pnl_percentage = $4, updated_at = NOW()
		WHERE id = $1`

	batch := &pgx.Batch{}
	for _, p := range positions {
		batch.Queue(query, p.ID, p.CurrentPrice, p.PnLAmount, p.PnLPercentage)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range positions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: update position batch item %d: %w", i, err)
		}
	}
	return nil
}

// SetExitRules stores take-profit and stop-loss trigger prices. Passing nil
// clears the corresponding rule.
func (s *PositionStore) SetExitRules(ctx context.Context, id string, takeProfit, stopLoss *float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE positions
		SET take_profit_price = $2, stop_loss_price = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'active'`,
		id, takeProfit, stopLoss,
	)
	if err != nil {
		return fmt.Errorf("postgres: set exit rules %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ReduceAmount subtracts sold tokens from a position and closes it when the
// remainder is exhausted. The amount never goes below zero.
func (s *PositionStore) ReduceAmount(ctx context.Context, id string, tokens float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE positions
		SET amount = GREATEST(amount - $2, 0),
		    status = CASE WHEN amount - $2 <= 0 THEN 'closed' ELSE status END,
		    closed_at = CASE WHEN amount - $2 <= 0 THEN NOW() ELSE closed_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'active'`,
		id, tokens,
	)
	if err != nil {
		return fmt.Errorf("postgres: reduce position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Close marks a position closed.
func (s *PositionStore) Close(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE positions
		SET status = 'closed', closed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'active'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
