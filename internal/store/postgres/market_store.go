package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyecho/echobot/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, condition_id, title, outcomes, clob_token_ids,
	outcome_prices, last_mid_price, last_trade_price, source, volume,
	is_resolved, resolved_outcome, created_at, updated_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var source string
	err := row.Scan(
		&m.ID, &m.ConditionID, &m.Title, &m.Outcomes, &m.ClobTokenIDs,
		&m.OutcomePrices, &m.LastMidPrice, &m.LastTradePrice, &source, &m.Volume,
		&m.IsResolved, &m.ResolvedOutcome, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Source = domain.MarketSource(source)
	return m, nil
}

// Upsert inserts or updates a single market.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, condition_id, title, outcomes, clob_token_ids,
			outcome_prices, last_mid_price, last_trade_price, source, volume,
			is_resolved, resolved_outcome, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, COALESCE(NULLIF($13, '0001-01-01 00:00:00+00'::timestamptz), NOW()), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			condition_id     = EXCLUDED.condition_id,
			title            = EXCLUDED.title,
			outcomes         = EXCLUDED.outcomes,
			clob_token_ids   = EXCLUDED.clob_token_ids,
			outcome_prices   = EXCLUDED.outcome_prices,
			last_mid_price   = EXCLUDED.last_mid_price,
			last_trade_price = EXCLUDED.last_trade_price,
			source           = EXCLUDED.source,
			volume           = EXCLUDED.volume,
			is_resolved      = EXCLUDED.is_resolved,
			resolved_outcome = EXCLUDED.resolved_outcome,
			updated_at       = NOW()`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.ConditionID, m.Title, m.Outcomes, m.ClobTokenIDs,
		m.OutcomePrices, m.LastMidPrice, m.LastTradePrice, string(m.Source), m.Volume,
		m.IsResolved, m.ResolvedOutcome, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// GetByConditionID retrieves a market by its on-chain condition ID.
func (s *MarketStore) GetByConditionID(ctx context.Context, conditionID string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE condition_id = $1`, conditionID)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by condition %s: %w", conditionID, err)
	}
	return m, nil
}

// GetByTokenID retrieves a market by any of its clob token IDs.
func (s *MarketStore) GetByTokenID(ctx context.Context, tokenID string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE $1 = ANY(clob_token_ids)`, tokenID)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by token %s: %w", tokenID, err)
	}
	return m, nil
}

// UpdatePrices writes a validated outcome price vector. The update only
// touches existing rows; a missing market is reported as ErrNotFound so the
// caller can decide whether to fetch it.
func (s *MarketStore) UpdatePrices(ctx context.Context, id string, prices []float64, source domain.MarketSource) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE markets
		SET outcome_prices = $2, source = $3, updated_at = NOW()
		WHERE id = $1 AND NOT is_resolved`,
		id, prices, string(source),
	)
	if err != nil {
		return fmt.Errorf("postgres: update prices %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateMidPrice writes the latest best-bid/best-ask midpoint.
func (s *MarketStore) UpdateMidPrice(ctx context.Context, id string, mid float64, source domain.MarketSource) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE markets
		SET last_mid_price = $2, source = $3, updated_at = NOW()
		WHERE id = $1 AND NOT is_resolved`,
		id, mid, string(source),
	)
	if err != nil {
		return fmt.Errorf("postgres: update mid price %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateLastTradePrice writes the latest trade print.
func (s *MarketStore) UpdateLastTradePrice(ctx context.Context, id string, price float64, source domain.MarketSource) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE markets
		SET last_trade_price = $2, source = $3, updated_at = NOW()
		WHERE id = $1 AND NOT is_resolved`,
		id, price, string(source),
	)
	if err != nil {
		return fmt.Errorf("postgres: update last trade price %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkResolved flags a market as resolved with its winning outcome. Resolved
// markets stop accepting price writes.
func (s *MarketStore) MarkResolved(ctx context.Context, id string, resolvedOutcome string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE markets
		SET is_resolved = TRUE, resolved_outcome = $2, updated_at = NOW()
		WHERE id = $1`,
		id, resolvedOutcome,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark resolved %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListActive returns unresolved markets, most recently updated first.
func (s *MarketStore) ListActive(ctx context.Context, limit int) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE NOT is_resolved ORDER BY updated_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan active market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active markets rows: %w", err)
	}
	return markets, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
