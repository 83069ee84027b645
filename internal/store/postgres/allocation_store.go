package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyecho/echobot/internal/domain"
)

// AllocationStore implements domain.AllocationStore using PostgreSQL.
type AllocationStore struct {
	pool *pgxpool.Pool
}

// NewAllocationStore creates a new AllocationStore backed by the given connection pool.
func NewAllocationStore(pool *pgxpool.Pool) *AllocationStore {
	return &AllocationStore{pool: pool}
}

const allocationCols = `id, user_id, leader_address_id, mode, allocation_type,
	allocation_value, fixed_amount, allocated_budget, is_active,
	total_copied_trades, total_invested, created_at, updated_at`

func scanAllocation(row pgx.Row) (domain.CopyTradingAllocation, error) {
	var a domain.CopyTradingAllocation
	var mode, allocType string
	err := row.Scan(
		&a.ID, &a.UserID, &a.LeaderAddressID, &mode, &allocType,
		&a.AllocationValue, &a.FixedAmount, &a.AllocatedBudget, &a.IsActive,
		&a.TotalCopiedTrades, &a.TotalInvested, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.CopyTradingAllocation{}, err
	}
	a.Mode = domain.AllocationMode(mode)
	a.AllocationType = domain.AllocationType(allocType)
	return a, nil
}

// Create inserts a new allocation row.
func (s *AllocationStore) Create(ctx context.Context, a domain.CopyTradingAllocation) error {
	const query = `
		INSERT INTO copy_trading_allocations (
			id, user_id, leader_address_id, mode, allocation_type,
			allocation_value, fixed_amount, allocated_budget, is_active,
			total_copied_trades, total_invested, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, NOW(), NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.UserID, a.LeaderAddressID, string(a.Mode), string(a.AllocationType),
		a.AllocationValue, a.FixedAmount, a.AllocatedBudget, a.IsActive,
		a.TotalCopiedTrades, a.TotalInvested,
	)
	if err != nil {
		return fmt.Errorf("postgres: create allocation %s: %w", a.ID, err)
	}
	return nil
}

// GetByID retrieves an allocation by its primary key.
func (s *AllocationStore) GetByID(ctx context.Context, id string) (domain.CopyTradingAllocation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+allocationCols+` FROM copy_trading_allocations WHERE id = $1`, id)
	a, err := scanAllocation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CopyTradingAllocation{}, domain.ErrNotFound
		}
		return domain.CopyTradingAllocation{}, fmt.Errorf("postgres: get allocation %s: %w", id, err)
	}
	return a, nil
}

// ListActiveByLeader returns every active allocation following a watched address.
func (s *AllocationStore) ListActiveByLeader(ctx context.Context, leaderAddressID string) ([]domain.CopyTradingAllocation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+allocationCols+` FROM copy_trading_allocations
		 WHERE leader_address_id = $1 AND is_active
		 ORDER BY created_at`,
		leaderAddressID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list allocations for leader %s: %w", leaderAddressID, err)
	}
	defer rows.Close()

	var allocations []domain.CopyTradingAllocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan allocation: %w", err)
		}
		allocations = append(allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: allocation rows: %w", err)
	}
	return allocations, nil
}

// RecordCopy increments the copy counters after a successful execution.
func (s *AllocationStore) RecordCopy(ctx context.Context, id string, investedUSD float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE copy_trading_allocations
		SET total_copied_trades = total_copied_trades + 1,
		    total_invested = total_invested + $2,
		    updated_at = NOW()
		WHERE id = $1`,
		id, investedUSD,
	)
	if err != nil {
		return fmt.Errorf("postgres: record copy %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateBudget refreshes the derived allocated budget.
func (s *AllocationStore) UpdateBudget(ctx context.Context, id string, budget float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE copy_trading_allocations
		SET allocated_budget = $2, updated_at = NOW()
		WHERE id = $1`,
		id, budget,
	)
	if err != nil {
		return fmt.Errorf("postgres: update budget %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetActive toggles an allocation.
func (s *AllocationStore) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE copy_trading_allocations
		SET is_active = $2, updated_at = NOW()
		WHERE id = $1`,
		id, active,
	)
	if err != nil {
		return fmt.Errorf("postgres: set allocation active %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.AllocationStore = (*AllocationStore)(nil)
