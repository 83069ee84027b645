package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyecho/echobot/internal/domain"
)

// WatchedAddressStore implements domain.WatchedAddressStore using PostgreSQL.
type WatchedAddressStore struct {
	pool *pgxpool.Pool
}

// NewWatchedAddressStore creates a new WatchedAddressStore backed by the given
// connection pool.
func NewWatchedAddressStore(pool *pgxpool.Pool) *WatchedAddressStore {
	return &WatchedAddressStore{pool: pool}
}

const watchedAddressCols = `id, address, type, label, is_active, created_at`

func scanWatchedAddress(row pgx.Row) (domain.WatchedAddress, error) {
	var w domain.WatchedAddress
	var addrType string
	err := row.Scan(&w.ID, &w.Address, &addrType, &w.Label, &w.IsActive, &w.CreatedAt)
	if err != nil {
		return domain.WatchedAddress{}, err
	}
	w.Type = domain.AddressType(addrType)
	return w, nil
}

// Create inserts a new watched address.
func (s *WatchedAddressStore) Create(ctx context.Context, w domain.WatchedAddress) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO watched_addresses (id, address, type, label, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		w.ID, w.Address, string(w.Type), w.Label, w.IsActive,
	)
	if err != nil {
		return fmt.Errorf("postgres: create watched address %s: %w", w.Address, err)
	}
	return nil
}

// GetActiveByAddress returns the active watched address matching the
// checksummed address.
func (s *WatchedAddressStore) GetActiveByAddress(ctx context.Context, address string) (domain.WatchedAddress, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+watchedAddressCols+` FROM watched_addresses
		 WHERE address = $1 AND is_active`,
		address)
	w, err := scanWatchedAddress(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WatchedAddress{}, domain.ErrNotFound
		}
		return domain.WatchedAddress{}, fmt.Errorf("postgres: get watched address %s: %w", address, err)
	}
	return w, nil
}

// ListActive returns active watched addresses of the given type.
func (s *WatchedAddressStore) ListActive(ctx context.Context, addrType domain.AddressType) ([]domain.WatchedAddress, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+watchedAddressCols+` FROM watched_addresses
		 WHERE type = $1 AND is_active
		 ORDER BY created_at`,
		string(addrType))
	if err != nil {
		return nil, fmt.Errorf("postgres: list watched addresses: %w", err)
	}
	defer rows.Close()

	var addresses []domain.WatchedAddress
	for rows.Next() {
		w, err := scanWatchedAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan watched address: %w", err)
		}
		addresses = append(addresses, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: watched address rows: %w", err)
	}
	return addresses, nil
}

// Compile-time interface check.
var _ domain.WatchedAddressStore = (*WatchedAddressStore)(nil)
