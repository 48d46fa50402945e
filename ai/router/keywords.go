package router

import (
	"strings"

	"github.com/hrygo/ensemble/ai/experts"
)

// Fixed keyword sets for deterministic fallback routing. Matching is a plain
// substring scan over the lowercased query.
var (
	financeKeywords = []string{
		"finance", "stock", "market", "invest", "money",
		"trading", "economy", "business", "financial",
		"fund", "retirement",
	}
	technicalKeywords = []string{
		"programming", "code", "software", "technology", "python",
		"javascript", "algorithm", "database", "api",
	}
)

// FallbackReason is the literal reason string carried by keyword-fallback
// decisions.
const FallbackReason = "Keyword-based fallback routing"

// fallbackRoute selects experts by keyword membership. Finance precedes
// technical in the selection order; neither match selects general only.
// This path never fails and never returns an empty selection.
func fallbackRoute(query string) Decision {
	queryLower := strings.ToLower(query)

	var selected []experts.ID
	if containsAny(queryLower, financeKeywords) {
		selected = append(selected, experts.Finance)
	}
	if containsAny(queryLower, technicalKeywords) {
		selected = append(selected, experts.Technical)
	}
	if len(selected) == 0 {
		selected = append(selected, experts.General)
	}

	return Decision{Selected: selected, Reason: FallbackReason}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
