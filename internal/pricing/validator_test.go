package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polyecho/echobot/internal/domain"
)

func TestValidatePrices(t *testing.T) {
	binary := &domain.Market{Outcomes: []string{"Yes", "No"}}

	tests := []struct {
		name   string
		prices []float64
		market *domain.Market
		want   bool
	}{
		{"balanced binary", []float64{0.5, 0.5}, binary, true},
		{"skewed but in band", []float64{0.73, 0.28}, binary, true},
		{"sum above band", []float64{0.5, 0.6}, binary, false},
		{"sum below band", []float64{0.4, 0.5}, binary, false},
		{"out of range", []float64{-0.1, 1.1}, binary, false},
		{"extreme but in range", []float64{0, 1}, binary, true},
		{"partial binary vector", []float64{0.5}, binary, false},
		{"empty", nil, binary, false},
		{"no market context", []float64{0.5, 0.5}, nil, true},
		{"multi outcome", []float64{0.5, 0.3, 0.2}, &domain.Market{Outcomes: []string{"A", "B", "C"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidatePrices(tt.prices, tt.market))
		})
	}
}
