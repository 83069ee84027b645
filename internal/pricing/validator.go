package pricing

import "github.com/polyecho/echobot/internal/domain"

// Binary price vectors must sum to ~1; tolerance covers venue rounding.
// Outside the band the vector is treated as corrupt or placeholder data
// ([0,1] / [1,0] sentinels appear upstream before real pricing exists).
const (
	binarySumMin = 0.98
	binarySumMax = 1.02
)

// ValidatePrices reports whether a price vector is safe to persist. Rejected
// vectors must be dropped without mutating any state.
func ValidatePrices(prices []float64, market *domain.Market) bool {
	if len(prices) == 0 {
		return false
	}

	if market != nil && market.IsBinary() && len(prices) != 2 {
		// Partial binary vectors have to complete in the buffer first.
		return false
	}

	for _, p := range prices {
		if p < 0 || p > 1 {
			return false
		}
	}

	if len(prices) == 2 {
		sum := prices[0] + prices[1]
		if sum < binarySumMin || sum > binarySumMax {
			return false
		}
	}

	return true
}
