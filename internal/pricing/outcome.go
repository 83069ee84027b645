// Package pricing implements the market-feed normalization pipeline: outcome
// resolution, price extraction from stream events, partial-update buffering,
// vector validation and write debouncing.
package pricing

import "strings"

// outcomeSynonyms maps lowercased outcome labels that different venue
// surfaces use interchangeably. Up/Down markets report positions with
// Yes/No labels and vice versa.
var outcomeSynonyms = map[string][]string{
	"yes":  {"up"},
	"up":   {"yes"},
	"no":   {"down"},
	"down": {"no"},
}

// NormalizeOutcome resolves a raw outcome label to an index into the ordered
// outcome list. Precedence: exact case-insensitive match, then the synonym
// table. Returns -1 when the label cannot be resolved; callers must skip the
// row rather than guess.
func NormalizeOutcome(raw string, outcomes []string) int {
	needle := strings.ToLower(strings.TrimSpace(raw))
	if needle == "" {
		return -1
	}

	for i, o := range outcomes {
		if strings.ToLower(strings.TrimSpace(o)) == needle {
			return i
		}
	}

	for _, syn := range outcomeSynonyms[needle] {
		for i, o := range outcomes {
			if strings.ToLower(strings.TrimSpace(o)) == syn {
				return i
			}
		}
	}

	return -1
}

// ResolveOutcomeIndex resolves a position's outcome to an index using the
// ground-truth token ID first and the label only as a fallback. The token ID
// is authoritative: when both disagree, the token wins.
func ResolveOutcomeIndex(tokenID, outcome string, outcomes, clobTokenIDs []string) int {
	if tokenID != "" {
		for i, tok := range clobTokenIDs {
			if tok == tokenID {
				return i
			}
		}
	}
	return NormalizeOutcome(outcome, outcomes)
}
