package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyecho/echobot/internal/domain"
)

// fakeMarketStore serves markets from maps.
type fakeMarketStore struct {
	byID        map[string]domain.Market
	byCondition map[string]domain.Market
	byToken     map[string]domain.Market
	upserts     []domain.Market
}

func (f *fakeMarketStore) Upsert(ctx context.Context, m domain.Market) error {
	f.upserts = append(f.upserts, m)
	if f.byID == nil {
		f.byID = make(map[string]domain.Market)
	}
	f.byID[m.ID] = m
	return nil
}
func (f *fakeMarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	if m, ok := f.byID[id]; ok {
		return m, nil
	}
	return domain.Market{}, domain.ErrNotFound
}
func (f *fakeMarketStore) GetByConditionID(ctx context.Context, cid string) (domain.Market, error) {
	if m, ok := f.byCondition[cid]; ok {
		return m, nil
	}
	return domain.Market{}, domain.ErrNotFound
}
func (f *fakeMarketStore) GetByTokenID(ctx context.Context, tok string) (domain.Market, error) {
	if m, ok := f.byToken[tok]; ok {
		return m, nil
	}
	return domain.Market{}, domain.ErrNotFound
}
func (f *fakeMarketStore) UpdatePrices(ctx context.Context, id string, prices []float64, source domain.MarketSource) error {
	return nil
}
func (f *fakeMarketStore) UpdateMidPrice(ctx context.Context, id string, mid float64, source domain.MarketSource) error {
	return nil
}
func (f *fakeMarketStore) UpdateLastTradePrice(ctx context.Context, id string, price float64, source domain.MarketSource) error {
	return nil
}
func (f *fakeMarketStore) MarkResolved(ctx context.Context, id, outcome string) error { return nil }
func (f *fakeMarketStore) ListActive(ctx context.Context, limit int) ([]domain.Market, error) {
	return nil, nil
}

// fakeMarketCache is a pass-through miss cache recording sets.
type fakeMarketCache struct {
	sets []string
}

func (f *fakeMarketCache) Set(ctx context.Context, m domain.Market) error {
	f.sets = append(f.sets, m.ID)
	return nil
}
func (f *fakeMarketCache) Get(ctx context.Context, id string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (f *fakeMarketCache) GetByToken(ctx context.Context, tok string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (f *fakeMarketCache) GetByCondition(ctx context.Context, cid string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (f *fakeMarketCache) Invalidate(ctx context.Context, id string) error { return nil }

type fakeFetcher struct {
	markets map[string]domain.Market
	err     error
	calls   int
}

func (f *fakeFetcher) FetchMarket(ctx context.Context, id string) (domain.Market, error) {
	f.calls++
	if f.err != nil {
		return domain.Market{}, f.err
	}
	if m, ok := f.markets[id]; ok {
		return m, nil
	}
	return domain.Market{}, domain.ErrNotFound
}

func newMarketService(store *fakeMarketStore, fetcher *fakeFetcher) *MarketService {
	return NewMarketService(store, &fakeMarketCache{}, fetcher, time.Minute, time.Minute, testLogger())
}

func TestResolveMarketIdentifierNumeric(t *testing.T) {
	svc := newMarketService(&fakeMarketStore{}, &fakeFetcher{})

	id, err := svc.ResolveMarketIdentifier(context.Background(), "516710")
	require.NoError(t, err)
	assert.Equal(t, "516710", id, "numeric identifiers are already market IDs")
}

func TestResolveMarketIdentifierConditionID(t *testing.T) {
	cond := "0xdd22472e552920b8438158ea7238bfadfa4f736aa4cee91a6b86c39ead110917"
	store := &fakeMarketStore{
		byCondition: map[string]domain.Market{cond: {ID: "516710", ConditionID: cond}},
	}
	svc := newMarketService(store, &fakeFetcher{})

	id, err := svc.ResolveMarketIdentifier(context.Background(), cond)
	require.NoError(t, err)
	assert.Equal(t, "516710", id)

	// Second resolution of the same identifier hits the in-memory cache.
	store.byCondition = nil
	id, err = svc.ResolveMarketIdentifier(context.Background(), cond)
	require.NoError(t, err)
	assert.Equal(t, "516710", id)
	assert.Equal(t, int64(1), svc.Stats().CacheHits)
}

func TestResolveMarketIdentifierUnknown(t *testing.T) {
	svc := newMarketService(&fakeMarketStore{}, &fakeFetcher{})

	_, err := svc.ResolveMarketIdentifier(context.Background(), "0xdeadbeef00000000000000000000000000000000")
	assert.ErrorIs(t, err, domain.ErrMarketUnresolved)

	_, err = svc.ResolveMarketIdentifier(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrMarketUnresolved)
}

func TestResolveByToken(t *testing.T) {
	store := &fakeMarketStore{
		byToken: map[string]domain.Market{"222": {ID: "516710"}},
	}
	svc := newMarketService(store, &fakeFetcher{})

	m, err := svc.ResolveByToken(context.Background(), "222")
	require.NoError(t, err)
	assert.Equal(t, "516710", m.ID)

	_, err = svc.ResolveByToken(context.Background(), "999")
	assert.ErrorIs(t, err, domain.ErrMarketUnresolved)
}

func TestGetOrFetchMarketInsertsUnknown(t *testing.T) {
	store := &fakeMarketStore{}
	fetcher := &fakeFetcher{
		markets: map[string]domain.Market{"42": {ID: "42", Title: "New market"}},
	}
	svc := newMarketService(store, fetcher)

	m, err := svc.GetOrFetchMarket(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "New market", m.Title)
	require.Len(t, store.upserts, 1, "fetched market is inserted locally")

	stats := svc.Stats()
	assert.Equal(t, int64(1), stats.FetchAttempts)
	assert.Equal(t, int64(1), stats.FetchSuccesses)
}

func TestGetOrFetchMarketFailureCacheSuppressesRetries(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("upstream 500")}
	svc := newMarketService(&fakeMarketStore{}, fetcher)
	ctx := context.Background()

	_, err := svc.GetOrFetchMarket(ctx, "42")
	require.Error(t, err)

	// Retries within the failure TTL never reach the upstream API.
	_, _ = svc.GetOrFetchMarket(ctx, "42")
	_, _ = svc.GetOrFetchMarket(ctx, "42")
	assert.Equal(t, 1, fetcher.calls, "failure cache suppresses hot-loop retries")
}
