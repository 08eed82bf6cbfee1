// Package fuzzy implements a token-set similarity ratio equivalent to
// rapidfuzz's fuzz.token_set_ratio, used by the matcher to score a query
// name against a watchlist subject name in the [0, 100] range.
package fuzzy

import (
	"sort"
	"strings"
)

// TokenSetRatio scores the similarity of a and b in [0, 100]. It tokenizes
// both strings, builds the sorted intersection and the two sorted
// differences, then takes the best pairwise Levenshtein ratio among the
// three comparison strings — the same shape as rapidfuzz's token_set_ratio.
func TokenSetRatio(a, b string) int {
	ta := tokenize(a)
	tb := tokenize(b)

	inter, onlyA, onlyB := partition(ta, tb)

	interStr := strings.Join(inter, " ")
	sortedA := strings.Join(append(append([]string{}, inter...), onlyA...), " ")
	sortedB := strings.Join(append(append([]string{}, inter...), onlyB...), " ")

	best := ratio(interStr, sortedA)
	if r := ratio(interStr, sortedB); r > best {
		best = r
	}
	if r := ratio(sortedA, sortedB); r > best {
		best = r
	}
	return best
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func partition(a, b []string) (inter, onlyA, onlyB []string) {
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}
	inB := make(map[string]bool, len(a))
	for _, t := range a {
		if setB[t] {
			inter = append(inter, t)
			inB[t] = true
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for _, t := range b {
		if !inB[t] {
			onlyB = append(onlyB, t)
		}
	}
	return inter, onlyA, onlyB
}

// ratio returns the Levenshtein-distance-based similarity ratio of s1, s2 in
// [0, 100]: 100 * (1 - distance / max(len(s1), len(s2))), with the empty/empty
// case scoring 100.
func ratio(s1, s2 string) int {
	if s1 == "" && s2 == "" {
		return 100
	}
	dist := levenshtein(s1, s2)
	maxLen := len(s1)
	if len(s2) > maxLen {
		maxLen = len(s2)
	}
	if maxLen == 0 {
		return 100
	}
	score := 100.0 * (1.0 - float64(dist)/float64(maxLen))
	if score < 0 {
		score = 0
	}
	return int(score + 0.5)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}
