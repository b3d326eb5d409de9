// Package resolve maps free-text destination and role names onto the
// gateway's actual identifiers using approximate string matching.
package resolve

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// A wrong destination is more disruptive than a missed mention, so the
// destination cutoff is looser and the role cutoff stricter.
const (
	DestinationCutoff = 0.40
	RoleCutoff        = 0.50
)

// Destination resolves a free-text destination name against candidates.
// Returns the matched candidate (original casing) and whether any candidate
// met the cutoff.
func Destination(query string, candidates []string) (string, bool) {
	return closest(query, candidates, DestinationCutoff)
}

// Role resolves a free-text role name against candidates.
func Role(query string, candidates []string) (string, bool) {
	return closest(query, candidates, RoleCutoff)
}

// closest picks the single best candidate above cutoff.
// An exact case-insensitive match always wins. Ties keep the first candidate
// encountered, so callers get stable results for a stable candidate order.
func closest(query string, candidates []string, cutoff float64) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return "", false
	}

	best := ""
	bestScore := 0.0
	for _, cand := range candidates {
		c := strings.ToLower(cand)
		if c == q {
			return cand, true
		}
		if s := similarity(q, c); s > bestScore {
			best, bestScore = cand, s
		}
	}
	if bestScore > cutoff {
		return best, true
	}
	return "", false
}

// similarity normalizes levenshtein distance to a 0..1 scale where 1 is equal.
func similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}
