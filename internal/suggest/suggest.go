// Package suggest provides fuzzy "did you mean" matching for CLI flags and
// reference identifiers using Levenshtein distance.
package suggest

import (
	"sort"
	"strings"
)

// maxSuggestions caps how many candidates Similar returns.
const maxSuggestions = 3

// levenshtein calculates the edit distance between two strings
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// Similar returns up to three candidates close to unknown, best first.
// Comparison is case-insensitive; a candidate is close when it is within
// 3 edits or half the length of unknown.
func Similar(unknown string, candidates []string) []string {
	type scored struct {
		value string
		score int
	}
	needle := strings.ToLower(unknown)
	maxDist := max(3, len([]rune(needle))/2)

	var matches []scored
	for _, c := range candidates {
		if d := levenshtein(needle, strings.ToLower(c)); d <= maxDist {
			matches = append(matches, scored{c, d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score < matches[j].score })

	var out []string
	for i := 0; i < len(matches) && i < maxSuggestions; i++ {
		out = append(out, matches[i].value)
	}
	return out
}

// Flag finds similar flags from a list of valid flags, ignoring leading dashes.
func Flag(unknown string, validFlags []string) []string {
	byName := make(map[string]string, len(validFlags))
	names := make([]string, 0, len(validFlags))
	for _, f := range validFlags {
		n := strings.TrimLeft(f, "-")
		byName[n] = f
		names = append(names, n)
	}
	var out []string
	for _, n := range Similar(strings.TrimLeft(unknown, "-"), names) {
		out = append(out, byName[n])
	}
	return out
}

// CommonFlagAliases maps flags people reach for to the ones entry commands take.
var CommonFlagAliases = map[string]string{
	"description": "--notes",
	"note":        "--notes",
	"comment":     "--notes",
	"price":       "--cost",
	"amount":      "--cost",
	"money":       "--cost",
	"qty":         "--quantity",
	"unit":        "--quantity-unit",
	"day":         "--date",
	"when":        "--date",
	"material":    "--chemical",
	"materials":   "--chemical",
	"pesticide":   "--chemical",
	"fertilizer":  "--chemical",
	"photo":       "--image",
	"crop":        "--season",
	"user":        "set user_id in ~/.config/nhatky/config.yaml or NHATKY_USER_ID",
}

// GetFlagHint returns a hint for a commonly misused flag
func GetFlagHint(flag string) string {
	flag = strings.ToLower(strings.TrimLeft(flag, "-"))
	return CommonFlagAliases[flag]
}
