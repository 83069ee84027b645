package pricing

import (
	"log/slog"

	"github.com/polyecho/echobot/internal/domain"
)

// Extractor converts decoded price-change events into index-ordered outcome
// price vectors.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates a price extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{
		logger: logger.With(slog.String("component", "price_extractor")),
	}
}

// ExtractPrices maps each quote in the event to its outcome index using the
// market's token list and returns the full price vector, or nil when no
// quote could be mapped. Per quote, the mid of best_bid/best_ask is used
// when both are present and sane; otherwise the legacy scalar price. For a
// binary market with exactly one mapped quote, the missing outcome is
// synthesized as the complement.
//
// Callers must not update any state on a nil return.
func (e *Extractor) ExtractPrices(ev domain.PriceChangeEvent, market *domain.Market) []float64 {
	if len(ev.Changes) == 0 {
		return nil
	}

	if market == nil || len(market.Outcomes) == 0 {
		return e.extractNaive(ev)
	}

	tokenToIndex := market.TokenToOutcomeIndex()
	prices := make([]float64, len(market.Outcomes))
	seen := make([]bool, len(market.Outcomes))
	mapped := 0

	for _, q := range ev.Changes {
		idx, ok := tokenToIndex[q.AssetID]
		if !ok {
			continue
		}
		p, ok := QuotePrice(q)
		if !ok {
			continue
		}
		if !seen[idx] {
			mapped++
		}
		prices[idx] = p
		seen[idx] = true
	}

	if mapped == 0 {
		return nil
	}

	// Binary complement: one side quoted, synthesize the other.
	if len(market.Outcomes) == 2 && mapped == 1 {
		known, missing := 0, 1
		if seen[1] {
			known, missing = 1, 0
		}
		comp := 1.0 - prices[known]
		if comp < 0 || comp > 1 {
			return nil
		}
		prices[missing] = comp
		mapped++
	}

	if mapped < len(market.Outcomes) {
		// Partial multi-outcome vector; the buffer accumulates those.
		return nil
	}

	return prices
}

// extractNaive maps quotes to outcome indexes by message order. Quote order
// is not guaranteed to match outcome order, so this path only runs when no
// market context exists and its output must still pass validation.
func (e *Extractor) extractNaive(ev domain.PriceChangeEvent) []float64 {
	e.logger.Warn("extracting prices without market context, outcome order unverified",
		slog.String("market", ev.Market),
		slog.Int("changes", len(ev.Changes)),
	)

	prices := make([]float64, 0, len(ev.Changes))
	for _, q := range ev.Changes {
		p, ok := QuotePrice(q)
		if !ok {
			return nil
		}
		prices = append(prices, p)
	}

	if len(prices) == 1 {
		comp := 1.0 - prices[0]
		if comp < 0 || comp > 1 {
			return nil
		}
		prices = append(prices, comp)
	}

	return prices
}

// QuotePrice derives a single price from a quote: the best-bid/best-ask mid
// when both are present and ordered within [0,1], else the legacy scalar.
func QuotePrice(q domain.PriceQuote) (float64, bool) {
	if q.HasBBO && q.BestBid >= 0 && q.BestBid <= q.BestAsk && q.BestAsk <= 1 {
		return (q.BestBid + q.BestAsk) / 2, true
	}
	if q.Price > 0 && q.Price <= 1 {
		return q.Price, true
	}
	return 0, false
}
