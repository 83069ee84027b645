package polymarket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyecho/echobot/internal/domain"
)

func TestPriceChangeMessageBatched(t *testing.T) {
	raw := `{
		"event_type": "price_change",
		"market": "0xcond",
		"price_changes": [
			{"asset_id": "111", "best_bid": "0.51", "best_ask": "0.53", "price": "0.52"},
			{"asset_id": "222", "price": "0.48"}
		],
		"timestamp": "1735689600000"
	}`

	var msg WSPriceChangeMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	ev := msg.ToDomain()
	assert.Equal(t, "0xcond", ev.Market)
	require.Len(t, ev.Changes, 2)

	assert.Equal(t, "111", ev.Changes[0].AssetID)
	assert.True(t, ev.Changes[0].HasBBO)
	assert.InDelta(t, 0.51, ev.Changes[0].BestBid, 1e-9)
	assert.InDelta(t, 0.53, ev.Changes[0].BestAsk, 1e-9)

	assert.Equal(t, "222", ev.Changes[1].AssetID)
	assert.False(t, ev.Changes[1].HasBBO)
	assert.InDelta(t, 0.48, ev.Changes[1].Price, 1e-9)

	assert.Equal(t, time.UnixMilli(1735689600000), ev.Timestamp)
}

func TestPriceChangeMessageLegacySingleAsset(t *testing.T) {
	raw := `{
		"event_type": "price_change",
		"market": "0xcond",
		"asset_id": "333",
		"price": "0.61",
		"timestamp": "1735689600"
	}`

	var msg WSPriceChangeMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	ev := msg.ToDomain()
	require.Len(t, ev.Changes, 1)
	assert.Equal(t, "333", ev.Changes[0].AssetID)
	assert.False(t, ev.Changes[0].HasBBO)
	assert.InDelta(t, 0.61, ev.Changes[0].Price, 1e-9)
	assert.Equal(t, time.Unix(1735689600, 0), ev.Timestamp)
}

func TestBookMessageBestLevelsAndMid(t *testing.T) {
	msg := WSBookMessage{
		EventType: "book",
		AssetID:   "111",
		Market:    "0xcond",
		Bids: []WSPriceLevel{
			{Price: "0.48", Size: "100"},
			{Price: "0.50", Size: "40"},
		},
		Asks: []WSPriceLevel{
			{Price: "0.56", Size: "75"},
			{Price: "0.54", Size: "20"},
		},
		Timestamp: "1735689600000",
	}

	ev := msg.ToDomain()
	assert.InDelta(t, 0.50, ev.BestBid, 1e-9)
	assert.InDelta(t, 0.54, ev.BestAsk, 1e-9)
	assert.InDelta(t, 0.52, ev.MidPrice, 1e-9)
	assert.Len(t, ev.Bids, 2)
	assert.Len(t, ev.Asks, 2)
}

func TestBookMessageEmptySideNoMid(t *testing.T) {
	msg := WSBookMessage{
		AssetID: "111",
		Bids:    []WSPriceLevel{{Price: "0.50", Size: "10"}},
	}

	ev := msg.ToDomain()
	assert.InDelta(t, 0.50, ev.BestBid, 1e-9)
	assert.Zero(t, ev.BestAsk)
	assert.Zero(t, ev.MidPrice)
}

func TestAPIMarketToDomain(t *testing.T) {
	raw := `{
		"id": "516710",
		"question": "Will it rain tomorrow?",
		"conditionId": "0xcond",
		"active": "true",
		"closed": false,
		"outcomes": "[\"Yes\",\"No\"]",
		"outcomePrices": "[\"0.62\",\"0.38\"]",
		"clobTokenIds": "[\"111\",\"222\"]",
		"volume": "12500.5",
		"createdAt": "2025-01-01T00:00:00Z",
		"updatedAt": "2025-06-01T12:00:00Z"
	}`

	var m APIMarket
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	assert.True(t, bool(m.Active))

	dm := m.ToDomainMarket()
	assert.Equal(t, "516710", dm.ID)
	assert.Equal(t, []string{"Yes", "No"}, dm.Outcomes)
	assert.Equal(t, []string{"111", "222"}, dm.ClobTokenIDs)
	assert.Equal(t, []float64{0.62, 0.38}, dm.OutcomePrices)
	assert.Equal(t, domain.MarketSourcePoll, dm.Source)
	assert.False(t, dm.IsResolved)
	assert.InDelta(t, 12500.5, dm.Volume, 1e-9)
	assert.Equal(t, 2025, dm.CreatedAt.Year())
}

func TestAPIMarketMalformedArraysDecodeNil(t *testing.T) {
	m := APIMarket{
		ID:            "1",
		Outcomes:      "not json",
		OutcomePrices: "",
		ClobTokenIDs:  "[\"111\"",
	}

	dm := m.ToDomainMarket()
	assert.Nil(t, dm.Outcomes)
	assert.Nil(t, dm.OutcomePrices)
	assert.Nil(t, dm.ClobTokenIDs)
}

func TestOrderResultSideInterpretation(t *testing.T) {
	r := APIOrderResult{
		Success:      true,
		OrderID:      "ord-1",
		MakingAmount: "5.00",
		TakingAmount: "9.80",
		AvgPrice:     "0.51",
	}

	buy := r.ToDomainOrderResult(domain.OrderSideBuy)
	assert.True(t, buy.Success)
	assert.InDelta(t, 9.80, buy.Tokens, 1e-9)
	assert.InDelta(t, 0.51, buy.Price, 1e-9)

	sell := r.ToDomainOrderResult(domain.OrderSideSell)
	assert.InDelta(t, 5.00, sell.Tokens, 1e-9)
	assert.InDelta(t, 9.80, sell.USDReceived, 1e-9)
}
