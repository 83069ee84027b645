// Package polymarket contains the REST and WebSocket clients for the
// Polymarket Gamma, Data and CLOB APIs.
package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/polyecho/echobot/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Polymarket Gamma API.
// Outcomes, OutcomePrices and ClobTokenIDs arrive as JSON-encoded strings
// inside the JSON document, e.g. "[\"Yes\",\"No\"]".
type APIMarket struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	ConditionID   string   `json:"conditionId"`
	Slug          string   `json:"slug"`
	Active        flexBool `json:"active"`
	Closed        bool     `json:"closed"`
	Outcomes      string   `json:"outcomes"`
	OutcomePrices string   `json:"outcomePrices"`
	ClobTokenIDs  string   `json:"clobTokenIds"`
	Volume        string   `json:"volume"`
	CreatedAt     string   `json:"createdAt"`
	UpdatedAt     string   `json:"updatedAt"`
}

// decodeStringArray parses a JSON-encoded string array field such as
// "[\"Yes\",\"No\"]". Malformed fields decode to nil rather than failing the
// whole market.
func decodeStringArray(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// decodeFloatArray parses a JSON-encoded array of numeric strings such as
// "[\"0.52\",\"0.48\"]".
func decodeFloatArray(raw string) []float64 {
	strs := decodeStringArray(raw)
	if strs == nil {
		return nil
	}
	out := make([]float64, len(strs))
	for i, s := range strs {
		out[i], _ = strconv.ParseFloat(s, 64)
	}
	return out
}

// ToDomainMarket converts a Gamma APIMarket to a domain.Market.
func (m *APIMarket) ToDomainMarket() domain.Market {
	dm := domain.Market{
		ID:            m.ID,
		ConditionID:   m.ConditionID,
		Title:         m.Question,
		Outcomes:      decodeStringArray(m.Outcomes),
		ClobTokenIDs:  decodeStringArray(m.ClobTokenIDs),
		OutcomePrices: decodeFloatArray(m.OutcomePrices),
		Source:        domain.MarketSourcePoll,
		IsResolved:    m.Closed,
	}

	if v, err := strconv.ParseFloat(m.Volume, 64); err == nil {
		dm.Volume = v
	}
	if t, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil {
		dm.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, m.UpdatedAt); err == nil {
		dm.UpdatedAt = t
	}

	return dm
}

// --------------------------------------------------------------------------
// Data API DTOs
// --------------------------------------------------------------------------

// APIUserPosition is one holding row from the Data API /positions endpoint.
type APIUserPosition struct {
	Asset        string  `json:"asset"` // clob token ID
	ConditionID  string  `json:"conditionId"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avgPrice"`
	CurrentValue float64 `json:"currentValue"`
	Outcome      string  `json:"outcome"`
}

// APIUserValue is the Data API /value response: total portfolio USD value.
type APIUserValue struct {
	User  string  `json:"user"`
	Value float64 `json:"value"`
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success       bool   `json:"success"`
	ErrorMsg      string `json:"errorMsg,omitempty"`
	OrderID       string `json:"orderID,omitempty"`
	Status        string `json:"status,omitempty"`
	MakingAmount  string `json:"makingAmount,omitempty"`
	TakingAmount  string `json:"takingAmount,omitempty"`
	AvgPrice      string `json:"avgPrice,omitempty"`
	TransactHashs []any  `json:"transactionsHashes,omitempty"`
}

// ToDomainOrderResult converts an APIOrderResult to a domain.OrderResult. The
// making/taking amounts depend on order side; the caller interprets them.
func (r *APIOrderResult) ToDomainOrderResult(side domain.OrderSide) domain.OrderResult {
	result := domain.OrderResult{
		Success: r.Success,
		OrderID: r.OrderID,
		Err:     r.ErrorMsg,
	}
	result.Price, _ = strconv.ParseFloat(r.AvgPrice, 64)

	making, _ := strconv.ParseFloat(r.MakingAmount, 64)
	taking, _ := strconv.ParseFloat(r.TakingAmount, 64)
	switch side {
	case domain.OrderSideBuy:
		// Buying: we give USD (making) and receive tokens (taking).
		result.Tokens = taking
	case domain.OrderSideSell:
		// Selling: we give tokens (making) and receive USD (taking).
		result.Tokens = making
		result.USDReceived = taking
	}

	return result
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// WSCommand is the JSON payload sent to the WebSocket to subscribe or
// unsubscribe.
type WSCommand struct {
	Type    string   `json:"type"` // "subscribe" or "unsubscribe"
	Channel string   `json:"channel,omitempty"`
	Assets  []string `json:"assets_ids,omitempty"`
	Markets []string `json:"markets,omitempty"`
}

// WSPriceChange is one per-asset quote inside a price_change frame. Newer
// frames carry best_bid/best_ask; older ones only a scalar price.
type WSPriceChange struct {
	AssetID string `json:"asset_id"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
	Price   string `json:"price"`
}

// WSPriceChangeMessage is a price_change frame. The batched format delivers
// multiple assets via PriceChanges; the legacy single-asset format puts
// asset_id and price at the top level.
type WSPriceChangeMessage struct {
	EventType    string          `json:"event_type"`
	Market       string          `json:"market"`
	AssetID      string          `json:"asset_id"`
	Price        string          `json:"price"`
	BestBid      string          `json:"best_bid"`
	BestAsk      string          `json:"best_ask"`
	PriceChanges []WSPriceChange `json:"price_changes"`
	Timestamp    string          `json:"timestamp"`
}

// WSPriceLevel is a single bid/ask level in the WebSocket orderbook data.
type WSPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// WSBookMessage is a full orderbook snapshot frame.
type WSBookMessage struct {
	EventType string         `json:"event_type"`
	AssetID   string         `json:"asset_id"`
	Market    string         `json:"market"`
	Bids      []WSPriceLevel `json:"bids"`
	Asks      []WSPriceLevel `json:"asks"`
	Timestamp string         `json:"timestamp"`
	Hash      string         `json:"hash"`
}

// WSLastTradeMessage is the most recent trade print for an asset.
type WSLastTradeMessage struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Timestamp string `json:"timestamp"`
}

// --------------------------------------------------------------------------
// Conversion helpers: WebSocket DTOs -> domain stream events
// --------------------------------------------------------------------------

func parseWSTimestamp(raw string) time.Time {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		// The venue sends epoch milliseconds; tolerate seconds too.
		if ms > 1e12 {
			return time.UnixMilli(ms)
		}
		return time.Unix(ms, 0)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Now()
}

// ToDomain converts a price_change frame to a domain.PriceChangeEvent,
// normalizing the legacy single-asset format into the batched shape.
func (m *WSPriceChangeMessage) ToDomain() domain.PriceChangeEvent {
	ev := domain.PriceChangeEvent{
		Market:    m.Market,
		Timestamp: parseWSTimestamp(m.Timestamp),
	}

	if len(m.PriceChanges) == 0 && m.AssetID != "" {
		ev.Changes = []domain.PriceQuote{quoteFromStrings(m.AssetID, m.BestBid, m.BestAsk, m.Price)}
		return ev
	}

	ev.Changes = make([]domain.PriceQuote, 0, len(m.PriceChanges))
	for _, pc := range m.PriceChanges {
		ev.Changes = append(ev.Changes, quoteFromStrings(pc.AssetID, pc.BestBid, pc.BestAsk, pc.Price))
	}
	return ev
}

func quoteFromStrings(assetID, bestBid, bestAsk, price string) domain.PriceQuote {
	q := domain.PriceQuote{AssetID: assetID}
	bid, bidErr := strconv.ParseFloat(bestBid, 64)
	ask, askErr := strconv.ParseFloat(bestAsk, 64)
	if bidErr == nil && askErr == nil && ask > 0 {
		q.BestBid = bid
		q.BestAsk = ask
		q.HasBBO = true
	}
	q.Price, _ = strconv.ParseFloat(price, 64)
	return q
}

// ToDomain converts a book frame to a domain.BookEvent.
func (m *WSBookMessage) ToDomain() domain.BookEvent {
	ev := domain.BookEvent{
		AssetID:   m.AssetID,
		Market:    m.Market,
		Timestamp: parseWSTimestamp(m.Timestamp),
	}

	for _, lvl := range m.Bids {
		p, _ := strconv.ParseFloat(lvl.Price, 64)
		s, _ := strconv.ParseFloat(lvl.Size, 64)
		ev.Bids = append(ev.Bids, domain.PriceLevel{Price: p, Size: s})
		if p > ev.BestBid {
			ev.BestBid = p
		}
	}
	for _, lvl := range m.Asks {
		p, _ := strconv.ParseFloat(lvl.Price, 64)
		s, _ := strconv.ParseFloat(lvl.Size, 64)
		ev.Asks = append(ev.Asks, domain.PriceLevel{Price: p, Size: s})
		if ev.BestAsk == 0 || p < ev.BestAsk {
			ev.BestAsk = p
		}
	}

	if ev.BestBid > 0 && ev.BestAsk > 0 {
		ev.MidPrice = (ev.BestBid + ev.BestAsk) / 2
	}

	return ev
}

// ToDomain converts a last_trade_price frame to a domain.LastTradeEvent.
func (m *WSLastTradeMessage) ToDomain() domain.LastTradeEvent {
	ev := domain.LastTradeEvent{
		AssetID:   m.AssetID,
		Market:    m.Market,
		Timestamp: parseWSTimestamp(m.Timestamp),
	}
	ev.Price, _ = strconv.ParseFloat(m.Price, 64)
	ev.Size, _ = strconv.ParseFloat(m.Size, 64)
	return ev
}
