package pricing

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyecho/echobot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func binaryMarket() *domain.Market {
	return &domain.Market{
		ID:           "516710",
		ConditionID:  "0xdd22472e552920b8438158ea7238bfadfa4f736aa4cee91a6b86c39ead110917",
		Outcomes:     []string{"Yes", "No"},
		ClobTokenIDs: []string{"111", "222"},
	}
}

func TestExtractPricesMappedMid(t *testing.T) {
	e := NewExtractor(testLogger())

	ev := domain.PriceChangeEvent{
		Market: "516710",
		Changes: []domain.PriceQuote{
			{AssetID: "111", BestBid: 0.52, BestAsk: 0.54, HasBBO: true},
			{AssetID: "222", BestBid: 0.45, BestAsk: 0.49, HasBBO: true},
		},
		Timestamp: time.Now(),
	}

	prices := e.ExtractPrices(ev, binaryMarket())
	require.NotNil(t, prices)
	assert.InDelta(t, 0.53, prices[0], 1e-9)
	assert.InDelta(t, 0.47, prices[1], 1e-9)
}

func TestExtractPricesLegacyScalarFallback(t *testing.T) {
	e := NewExtractor(testLogger())

	// Inverted bid/ask disqualifies the BBO mid; scalar price is used.
	ev := domain.PriceChangeEvent{
		Changes: []domain.PriceQuote{
			{AssetID: "111", BestBid: 0.6, BestAsk: 0.4, HasBBO: true, Price: 0.55},
			{AssetID: "222", Price: 0.45},
		},
	}

	prices := e.ExtractPrices(ev, binaryMarket())
	require.NotNil(t, prices)
	assert.InDelta(t, 0.55, prices[0], 1e-9)
	assert.InDelta(t, 0.45, prices[1], 1e-9)
}

func TestExtractPricesBinaryComplement(t *testing.T) {
	e := NewExtractor(testLogger())

	ev := domain.PriceChangeEvent{
		Changes: []domain.PriceQuote{
			{AssetID: "222", BestBid: 0.30, BestAsk: 0.34, HasBBO: true},
		},
	}

	prices := e.ExtractPrices(ev, binaryMarket())
	require.NotNil(t, prices)
	assert.InDelta(t, 0.68, prices[0], 1e-9, "missing Yes synthesized as complement")
	assert.InDelta(t, 0.32, prices[1], 1e-9)
}

func TestExtractPricesUnknownTokens(t *testing.T) {
	e := NewExtractor(testLogger())

	ev := domain.PriceChangeEvent{
		Changes: []domain.PriceQuote{
			{AssetID: "999", BestBid: 0.5, BestAsk: 0.52, HasBBO: true},
		},
	}

	assert.Nil(t, e.ExtractPrices(ev, binaryMarket()), "no mapped quote must return nil")
}

func TestExtractPricesNoContextNaiveOrder(t *testing.T) {
	e := NewExtractor(testLogger())

	ev := domain.PriceChangeEvent{
		Changes: []domain.PriceQuote{
			{AssetID: "111", BestBid: 0.70, BestAsk: 0.72, HasBBO: true},
		},
	}

	prices := e.ExtractPrices(ev, nil)
	require.NotNil(t, prices)
	require.Len(t, prices, 2)
	assert.InDelta(t, 0.71, prices[0], 1e-9)
	assert.InDelta(t, 0.29, prices[1], 1e-9)
}

func TestExtractPricesEmptyEvent(t *testing.T) {
	e := NewExtractor(testLogger())
	assert.Nil(t, e.ExtractPrices(domain.PriceChangeEvent{}, binaryMarket()))
}
