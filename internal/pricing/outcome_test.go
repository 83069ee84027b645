package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOutcome(t *testing.T) {
	yesNo := []string{"Yes", "No"}
	upDown := []string{"Up", "Down"}

	tests := []struct {
		name     string
		raw      string
		outcomes []string
		want     int
	}{
		{"exact match", "Yes", yesNo, 0},
		{"case insensitive", "no", yesNo, 1},
		{"whitespace tolerated", " Yes ", yesNo, 0},
		{"synonym up to yes", "UP", yesNo, 0},
		{"synonym down to no", "Down", yesNo, 1},
		{"synonym yes to up", "yes", upDown, 0},
		{"synonym no to down", "NO", upDown, 1},
		{"unknown label", "Maybe", yesNo, -1},
		{"empty label", "", yesNo, -1},
		{"exact beats synonym", "Up", []string{"Up", "Yes"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeOutcome(tt.raw, tt.outcomes))
		})
	}
}

func TestResolveOutcomeIndexTokenWins(t *testing.T) {
	outcomes := []string{"Yes", "No"}
	tokens := []string{"111", "222"}

	// Token ID is ground truth even when the label disagrees.
	assert.Equal(t, 1, ResolveOutcomeIndex("222", "Yes", outcomes, tokens))
	assert.Equal(t, 0, ResolveOutcomeIndex("111", "", outcomes, tokens))

	// Unknown token falls back to the label.
	assert.Equal(t, 1, ResolveOutcomeIndex("999", "No", outcomes, tokens))

	// Nothing resolvable.
	assert.Equal(t, -1, ResolveOutcomeIndex("999", "Maybe", outcomes, tokens))
}
