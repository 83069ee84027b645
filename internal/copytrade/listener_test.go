package copytrade

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyecho/echobot/internal/config"
	"github.com/polyecho/echobot/internal/domain"
	"github.com/polyecho/echobot/internal/service"
)

const rawLeaderAddr = "0x1111111111111111111111111111111111111111"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBus struct{ msgs chan []byte }

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error { return nil }
func (f *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return f.msgs, nil
}
func (f *fakeBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	return nil
}
func (f *fakeBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeWatched struct{ byAddr map[string]domain.WatchedAddress }

func (f *fakeWatched) Create(ctx context.Context, a domain.WatchedAddress) error { return nil }
func (f *fakeWatched) GetActiveByAddress(ctx context.Context, address string) (domain.WatchedAddress, error) {
	if a, ok := f.byAddr[address]; ok {
		return a, nil
	}
	return domain.WatchedAddress{}, domain.ErrNotFound
}
func (f *fakeWatched) ListActive(ctx context.Context, t domain.AddressType) ([]domain.WatchedAddress, error) {
	return nil, nil
}

type fakeAllocStore struct{ byLeader map[string][]domain.CopyTradingAllocation }

func (f *fakeAllocStore) Create(ctx context.Context, a domain.CopyTradingAllocation) error {
	return nil
}
func (f *fakeAllocStore) GetByID(ctx context.Context, id string) (domain.CopyTradingAllocation, error) {
	return domain.CopyTradingAllocation{}, domain.ErrNotFound
}
func (f *fakeAllocStore) ListActiveByLeader(ctx context.Context, leaderID string) ([]domain.CopyTradingAllocation, error) {
	return f.byLeader[leaderID], nil
}
func (f *fakeAllocStore) RecordCopy(ctx context.Context, id string, investedUSD float64) error {
	return nil
}
func (f *fakeAllocStore) UpdateBudget(ctx context.Context, id string, budget float64) error {
	return nil
}
func (f *fakeAllocStore) SetActive(ctx context.Context, id string, active bool) error { return nil }

type fakeResolver struct {
	byToken map[string]domain.Market
	byID    map[string]domain.Market
}

func (f *fakeResolver) ResolveByToken(ctx context.Context, tokenID string) (domain.Market, error) {
	if m, ok := f.byToken[tokenID]; ok {
		return m, nil
	}
	return domain.Market{}, domain.ErrMarketUnresolved
}
func (f *fakeResolver) GetOrFetchMarket(ctx context.Context, id string) (domain.Market, error) {
	if m, ok := f.byID[id]; ok {
		return m, nil
	}
	return domain.Market{}, domain.ErrNotFound
}

type fakeBalances struct {
	leader   float64
	follower float64
	position float64
}

func (f *fakeBalances) LeaderBalance(ctx context.Context, address string) (float64, error) {
	return f.leader, nil
}
func (f *fakeBalances) FollowerBalance(ctx context.Context, userID string) (float64, error) {
	return f.follower, nil
}
func (f *fakeBalances) LeaderPosition(ctx context.Context, address, tokenID string) (float64, error) {
	return f.position, nil
}

type fakePositions struct {
	total float64
	rows  []domain.Position
}

func (f *fakePositions) EffectivePositionSize(ctx context.Context, userID, tokenID string) (float64, []domain.Position, error) {
	return f.total, f.rows, nil
}

// fakeTrades records executions and skips; the fan-out calls it from
// multiple goroutines.
type fakeTrades struct {
	mu    sync.Mutex
	execs []service.CopyExecution
	skips []string
}

func (f *fakeTrades) ExecuteCopy(ctx context.Context, exec service.CopyExecution) (domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, exec)
	return domain.OrderResult{Success: true, OrderID: "ord", Tokens: 10, Price: 0.5}, nil
}
func (f *fakeTrades) RecordSkip(ctx context.Context, exec service.CopyExecution, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skips = append(f.skips, reason)
}

func binaryMarket() domain.Market {
	return domain.Market{
		ID:            "516710",
		Outcomes:      []string{"Yes", "No"},
		ClobTokenIDs:  []string{"111", "222"},
		OutcomePrices: []float64{0.60, 0.40},
	}
}

type listenerFixture struct {
	listener *Listener
	trades   *fakeTrades
	bus      *fakeBus
}

func newFixture(t *testing.T, allocs []domain.CopyTradingAllocation, balances *fakeBalances, positions *fakePositions) *listenerFixture {
	t.Helper()
	leaderAddr := common.HexToAddress(rawLeaderAddr).Hex()
	watched := &fakeWatched{byAddr: map[string]domain.WatchedAddress{
		leaderAddr: {ID: "w1", Address: leaderAddr, Type: domain.AddressTypeCopyLeader, IsActive: true},
	}}
	m := binaryMarket()
	resolver := &fakeResolver{
		byToken: map[string]domain.Market{"111": m, "222": m},
		byID:    map[string]domain.Market{m.ID: m},
	}
	trades := &fakeTrades{}
	bus := &fakeBus{msgs: make(chan []byte, 8)}

	l := NewListener(bus, watched, &fakeAllocStore{byLeader: map[string][]domain.CopyTradingAllocation{"w1": allocs}},
		resolver, balances, positions, trades, config.CopyTradeConfig{}, testLogger())
	return &listenerFixture{listener: l, trades: trades, bus: bus}
}

func buyEvent(t *testing.T, txID string) []byte {
	t.Helper()
	payload, err := json.Marshal(domain.TradeEvent{
		TxID:         txID,
		UserAddress:  rawLeaderAddr,
		TxType:       domain.TradeSideBuy,
		PositionID:   "111",
		Amount:       200,
		Price:        0.50,
		TakingAmount: 100,
	})
	require.NoError(t, err)
	return payload
}

func TestListenerReplayedTxIDCopiesOnce(t *testing.T) {
	fx := newFixture(t,
		[]domain.CopyTradingAllocation{{ID: "a1", UserID: "u1", Mode: domain.AllocationModeProportional, AllocatedBudget: 50}},
		&fakeBalances{leader: 1000, follower: 500}, &fakePositions{})
	ctx := context.Background()

	payload := buyEvent(t, "tx-1")
	fx.listener.handleMessage(ctx, payload)
	fx.listener.handleMessage(ctx, payload)

	assert.Len(t, fx.trades.execs, 1, "a replayed tx_id inside the dedup TTL never copies twice")
	snap := fx.listener.Metrics()
	assert.Equal(t, int64(2), snap.TradesProcessed)
	assert.Equal(t, int64(1), snap.DedupDrops)
	assert.Equal(t, int64(1), snap.CopiesExecuted)
}

func TestListenerFansOutPerFollower(t *testing.T) {
	fx := newFixture(t,
		[]domain.CopyTradingAllocation{
			{ID: "a1", UserID: "u1", Mode: domain.AllocationModeProportional, AllocatedBudget: 50},
			{ID: "a2", UserID: "u2", Mode: domain.AllocationModeFixed, FixedAmount: 20},
		},
		&fakeBalances{leader: 1000, follower: 500}, &fakePositions{})

	fx.listener.handleMessage(context.Background(), buyEvent(t, "tx-2"))

	require.Len(t, fx.trades.execs, 2)
	users := []string{fx.trades.execs[0].Order.UserID, fx.trades.execs[1].Order.UserID}
	assert.ElementsMatch(t, []string{"u1", "u2"}, users)

	for _, exec := range fx.trades.execs {
		assert.Equal(t, domain.OrderSideBuy, exec.Order.Side)
		assert.Equal(t, "516710", exec.Order.MarketID)
		assert.Equal(t, "Yes", exec.Order.Outcome, "token 111 is ground truth for the outcome")
		switch exec.Order.UserID {
		case "u1":
			assert.InDelta(t, 5.00, exec.Order.AmountUSD, 1e-9, "10% of bankroll mirrored onto a $50 budget")
		case "u2":
			assert.InDelta(t, 20.00, exec.Order.AmountUSD, 1e-9)
		}
	}
}

func TestListenerIgnoresSmartTraders(t *testing.T) {
	fx := newFixture(t, []domain.CopyTradingAllocation{{ID: "a1", UserID: "u1"}},
		&fakeBalances{leader: 1000, follower: 500}, &fakePositions{})
	// Rewire the watched store so the address is a smart trader.
	leaderAddr := common.HexToAddress(rawLeaderAddr).Hex()
	fx.listener.watched = &fakeWatched{byAddr: map[string]domain.WatchedAddress{
		leaderAddr: {ID: "w1", Address: leaderAddr, Type: domain.AddressTypeSmartTrader, IsActive: true},
	}}

	fx.listener.handleMessage(context.Background(), buyEvent(t, "tx-3"))

	assert.Empty(t, fx.trades.execs, "smart traders are alert-only and never copied")
	assert.Empty(t, fx.trades.skips)
}

func TestListenerIgnoresUnwatchedAddress(t *testing.T) {
	fx := newFixture(t, nil, &fakeBalances{}, &fakePositions{})

	payload, err := json.Marshal(domain.TradeEvent{
		TxID:        "tx-4",
		UserAddress: "0x2222222222222222222222222222222222222222",
		TxType:      domain.TradeSideBuy,
		PositionID:  "111",
		Amount:      10,
	})
	require.NoError(t, err)
	fx.listener.handleMessage(context.Background(), payload)

	assert.Empty(t, fx.trades.execs)
}

func TestListenerSkipsBelowBuyFloor(t *testing.T) {
	fx := newFixture(t,
		[]domain.CopyTradingAllocation{{ID: "a1", UserID: "u1", Mode: domain.AllocationModeProportional, AllocatedBudget: 50}},
		&fakeBalances{leader: 10000, follower: 500}, &fakePositions{})

	// $10 of a $10k bankroll onto a $50 budget is a five-cent copy.
	payload, err := json.Marshal(domain.TradeEvent{
		TxID:         "tx-5",
		UserAddress:  rawLeaderAddr,
		TxType:       domain.TradeSideBuy,
		PositionID:   "111",
		TakingAmount: 10,
	})
	require.NoError(t, err)
	fx.listener.handleMessage(context.Background(), payload)

	assert.Empty(t, fx.trades.execs)
	require.Len(t, fx.trades.skips, 1)
	assert.Equal(t, "below minimum buy amount", fx.trades.skips[0])
	assert.Equal(t, int64(1), fx.listener.Metrics().CopiesSkipped)
}

func TestListenerSellIsTokenDenominated(t *testing.T) {
	rows := []domain.Position{{ID: "p1", UserID: "u1", PositionID: "222", Amount: 80}}
	fx := newFixture(t,
		[]domain.CopyTradingAllocation{{ID: "a1", UserID: "u1", Mode: domain.AllocationModeProportional, AllocatedBudget: 50}},
		&fakeBalances{leader: 1000, follower: 500, position: 150},
		&fakePositions{total: 80, rows: rows})

	// Leader sells 50 of a reconstructed 200-token position (25%).
	payload, err := json.Marshal(domain.TradeEvent{
		TxID:        "tx-6",
		UserAddress: rawLeaderAddr,
		TxType:      domain.TradeSideSell,
		PositionID:  "222",
		Amount:      50,
	})
	require.NoError(t, err)
	fx.listener.handleMessage(context.Background(), payload)

	require.Len(t, fx.trades.execs, 1)
	exec := fx.trades.execs[0]
	assert.Equal(t, domain.OrderSideSell, exec.Order.Side)
	assert.InDelta(t, 20.0, exec.Order.Tokens, 1e-9, "25% of the follower's 80 tokens")
	assert.InDelta(t, 8.0, exec.Order.AmountUSD, 1e-9, "USD estimate at the No price of $0.40")
	assert.Equal(t, rows, exec.FollowerRows, "sell reductions apply to the follower's rows oldest-first")
}

func TestListenerDropsMalformedEvent(t *testing.T) {
	fx := newFixture(t, nil, &fakeBalances{}, &fakePositions{})

	fx.listener.handleMessage(context.Background(), []byte("{not json"))
	fx.listener.handleMessage(context.Background(), []byte(`{"user_address":"0x1111111111111111111111111111111111111111"}`))

	assert.Empty(t, fx.trades.execs)
	assert.Zero(t, fx.listener.Metrics().TradesProcessed, "events without a tx_id never count as processed")
}
