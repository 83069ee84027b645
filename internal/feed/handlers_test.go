package feed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyecho/echobot/internal/domain"
	"github.com/polyecho/echobot/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type priceWrite struct {
	marketID string
	prices   []float64
	source   domain.MarketSource
}

// recMarketStore records price writes and serves markets from a map.
type recMarketStore struct {
	byID   map[string]domain.Market
	writes []priceWrite
	mids   []float64
	trades []float64
}

func (s *recMarketStore) Upsert(ctx context.Context, m domain.Market) error {
	if s.byID == nil {
		s.byID = make(map[string]domain.Market)
	}
	s.byID[m.ID] = m
	return nil
}
func (s *recMarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	if m, ok := s.byID[id]; ok {
		return m, nil
	}
	return domain.Market{}, domain.ErrNotFound
}
func (s *recMarketStore) GetByConditionID(ctx context.Context, cid string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (s *recMarketStore) GetByTokenID(ctx context.Context, tok string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (s *recMarketStore) UpdatePrices(ctx context.Context, id string, prices []float64, source domain.MarketSource) error {
	m, ok := s.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.writes = append(s.writes, priceWrite{marketID: id, prices: prices, source: source})
	m.OutcomePrices = prices
	m.Source = source
	m.UpdatedAt = time.Now()
	s.byID[id] = m
	return nil
}
func (s *recMarketStore) UpdateMidPrice(ctx context.Context, id string, mid float64, source domain.MarketSource) error {
	if _, ok := s.byID[id]; !ok {
		return domain.ErrNotFound
	}
	s.mids = append(s.mids, mid)
	return nil
}
func (s *recMarketStore) UpdateLastTradePrice(ctx context.Context, id string, price float64, source domain.MarketSource) error {
	if _, ok := s.byID[id]; !ok {
		return domain.ErrNotFound
	}
	s.trades = append(s.trades, price)
	return nil
}
func (s *recMarketStore) MarkResolved(ctx context.Context, id, outcome string) error { return nil }
func (s *recMarketStore) ListActive(ctx context.Context, limit int) ([]domain.Market, error) {
	var out []domain.Market
	for _, m := range s.byID {
		if !m.IsResolved {
			out = append(out, m)
		}
	}
	return out, nil
}

// recPriceCache records vector sets.
type recPriceCache struct {
	vectors map[string]domain.PriceVector
}

func (c *recPriceCache) SetVector(ctx context.Context, marketID string, vec domain.PriceVector) error {
	if c.vectors == nil {
		c.vectors = make(map[string]domain.PriceVector)
	}
	c.vectors[marketID] = vec
	return nil
}
func (c *recPriceCache) GetVector(ctx context.Context, marketID string) (domain.PriceVector, error) {
	if v, ok := c.vectors[marketID]; ok {
		return v, nil
	}
	return domain.PriceVector{}, domain.ErrNotFound
}
func (c *recPriceCache) Invalidate(ctx context.Context, marketID string) error { return nil }

// missMarketCache always misses so lookups fall through to the store.
type missMarketCache struct{}

func (missMarketCache) Set(ctx context.Context, m domain.Market) error { return nil }
func (missMarketCache) Get(ctx context.Context, id string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (missMarketCache) GetByToken(ctx context.Context, tok string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (missMarketCache) GetByCondition(ctx context.Context, cid string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (missMarketCache) Invalidate(ctx context.Context, id string) error { return nil }

type noFetcher struct{}

func (noFetcher) FetchMarket(ctx context.Context, id string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}

// emptyPositionStore has no open positions.
type emptyPositionStore struct{}

func (emptyPositionStore) Create(ctx context.Context, p domain.Position) error { return nil }
func (emptyPositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	return domain.Position{}, domain.ErrNotFound
}
func (emptyPositionStore) ListActiveByMarket(ctx context.Context, marketID string) ([]domain.Position, error) {
	return nil, nil
}
func (emptyPositionStore) ListActiveByUserToken(ctx context.Context, userID, tokenID string) ([]domain.Position, error) {
	return nil, nil
}
func (emptyPositionStore) UpdatePriceBatch(ctx context.Context, positions []domain.Position) error {
	return nil
}
func (emptyPositionStore) SetExitRules(ctx context.Context, id string, tp, sl *float64) error {
	return nil
}
func (emptyPositionStore) ReduceAmount(ctx context.Context, id string, tokens float64) error {
	return nil
}
func (emptyPositionStore) Close(ctx context.Context, id string) error { return nil }

type nopExecutor struct{}

func (nopExecutor) ExecuteMarketOrder(ctx context.Context, order domain.MarketOrder) (domain.OrderResult, error) {
	return domain.OrderResult{Success: true}, nil
}

type nopNotify struct{}

func (nopNotify) QueueNotification(ctx context.Context, userID, title, message string) {}

func newTestHandlers(t *testing.T, store *recMarketStore, apiMode bool) (*UpdateHandlers, *recPriceCache) {
	t.Helper()
	logger := testLogger()
	marketSvc := service.NewMarketService(store, missMarketCache{}, noFetcher{}, time.Minute, time.Minute, logger)
	positionSvc := service.NewPositionService(emptyPositionStore{}, nopExecutor{}, nopNotify{}, logger)
	prices := &recPriceCache{}
	return NewUpdateHandlers(store, marketSvc, positionSvc, prices, nil, apiMode, logger), prices
}

func activeMarket(source domain.MarketSource, age time.Duration) domain.Market {
	return domain.Market{
		ID:            "516710",
		Outcomes:      []string{"Yes", "No"},
		ClobTokenIDs:  []string{"111", "222"},
		OutcomePrices: []float64{0.5, 0.5},
		Source:        source,
		UpdatedAt:     time.Now().Add(-age),
	}
}

func TestSourcePrecedence(t *testing.T) {
	cases := []struct {
		name     string
		current  domain.Market
		incoming domain.MarketSource
		want     bool
	}{
		{"ws over poll", activeMarket(domain.MarketSourcePoll, time.Second), domain.MarketSourceWS, true},
		{"ws over fresh ws", activeMarket(domain.MarketSourceWS, time.Second), domain.MarketSourceWS, true},
		{"poll over poll", activeMarket(domain.MarketSourcePoll, time.Second), domain.MarketSourcePoll, true},
		{"poll blocked by fresh ws", activeMarket(domain.MarketSourceWS, 3*time.Second), domain.MarketSourcePoll, false},
		{"poll allowed over stale ws", activeMarket(domain.MarketSourceWS, 15*time.Second), domain.MarketSourcePoll, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sourceMayWrite(tc.current, tc.incoming))
		})
	}
}

func TestHandleMarketUpdateWsAlwaysWins(t *testing.T) {
	store := &recMarketStore{}
	m := activeMarket(domain.MarketSourcePoll, time.Hour)
	require.NoError(t, store.Upsert(context.Background(), m))
	h, prices := newTestHandlers(t, store, false)
	ctx := context.Background()

	// Poll lands first, then ws overwrites it immediately.
	h.HandleMarketUpdate(ctx, store.byID[m.ID], []float64{0.40, 0.60}, domain.MarketSourcePoll)
	h.HandleMarketUpdate(ctx, store.byID[m.ID], []float64{0.55, 0.45}, domain.MarketSourceWS)

	require.Len(t, store.writes, 2)
	assert.Equal(t, domain.MarketSourceWS, store.writes[1].source)
	assert.Equal(t, []float64{0.55, 0.45}, store.byID[m.ID].OutcomePrices)

	vec, err := prices.GetVector(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketSourceWS, vec.Source)
	assert.Equal(t, []float64{0.55, 0.45}, vec.Prices)
}

func TestHandleMarketUpdatePollShadowedByFreshWs(t *testing.T) {
	store := &recMarketStore{}
	m := activeMarket(domain.MarketSourceWS, 2*time.Second)
	require.NoError(t, store.Upsert(context.Background(), m))
	h, _ := newTestHandlers(t, store, false)

	h.HandleMarketUpdate(context.Background(), store.byID[m.ID], []float64{0.40, 0.60}, domain.MarketSourcePoll)

	assert.Empty(t, store.writes, "a polled snapshot never overwrites ws data younger than the precedence window")
	assert.Equal(t, []float64{0.5, 0.5}, store.byID[m.ID].OutcomePrices)
}

func TestHandleMarketUpdateDropsResolvedMarket(t *testing.T) {
	store := &recMarketStore{}
	m := activeMarket(domain.MarketSourcePoll, time.Hour)
	m.IsResolved = true
	require.NoError(t, store.Upsert(context.Background(), m))
	h, _ := newTestHandlers(t, store, false)

	h.HandleMarketUpdate(context.Background(), store.byID[m.ID], []float64{0.99, 0.01}, domain.MarketSourceWS)

	assert.Empty(t, store.writes)
}

func TestHandleMarketUpdateNeverCreatesMarkets(t *testing.T) {
	store := &recMarketStore{}
	h, prices := newTestHandlers(t, store, false)

	unknown := activeMarket(domain.MarketSourcePoll, time.Hour)
	h.HandleMarketUpdate(context.Background(), unknown, []float64{0.5, 0.5}, domain.MarketSourceWS)

	assert.Empty(t, store.byID, "price updates never insert market rows")
	assert.Empty(t, prices.vectors, "cache skipped when the row is missing")
}

func TestHandleMarketUpdateAPIModeSkipsStore(t *testing.T) {
	store := &recMarketStore{}
	m := activeMarket(domain.MarketSourcePoll, time.Hour)
	require.NoError(t, store.Upsert(context.Background(), m))
	h, prices := newTestHandlers(t, store, true)
	ctx := context.Background()

	h.HandleMarketUpdate(ctx, store.byID[m.ID], []float64{0.70, 0.30}, domain.MarketSourceWS)

	assert.Empty(t, store.writes, "api mode leaves the store untouched")
	vec, err := prices.GetVector(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.70, 0.30}, vec.Prices, "cache still refreshed in api mode")
}

func TestHandleOrderbookAndTrade(t *testing.T) {
	store := &recMarketStore{}
	m := activeMarket(domain.MarketSourcePoll, time.Hour)
	require.NoError(t, store.Upsert(context.Background(), m))
	h, _ := newTestHandlers(t, store, false)
	ctx := context.Background()

	h.HandleOrderbook(ctx, m, domain.BookEvent{AssetID: "111", MidPrice: 0.52})
	h.HandleOrderbook(ctx, m, domain.BookEvent{AssetID: "111", MidPrice: 0})
	h.HandleTrade(ctx, m, domain.LastTradeEvent{AssetID: "111", Price: 0.53})

	require.Len(t, store.mids, 1)
	assert.InDelta(t, 0.52, store.mids[0], 1e-9)
	require.Len(t, store.trades, 1)
	assert.InDelta(t, 0.53, store.trades[0], 1e-9)
}
