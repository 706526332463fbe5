// Package utils holds small string helpers shared by the CLI: edit distance
// and fuzzy matching for "did you mean" suggestions on artifact names.
package utils

import (
	"sort"
	"strings"
)

// ComputeDistance computes the Levenshtein distance between two strings.
// It is case-insensitive.
func ComputeDistance(s1, s2 string) int {
	s1 = strings.ToLower(s1)
	s2 = strings.ToLower(s2)

	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	// Create matrix
	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
	}

	// Initialize first row and column
	for i := 0; i <= len(s1); i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len(s2); j++ {
		matrix[0][j] = j
	}

	// Compute distances
	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			min := matrix[i-1][j] + 1             // deletion
			if ins := matrix[i][j-1] + 1; ins < min { // insertion
				min = ins
			}
			if sub := matrix[i-1][j-1] + cost; sub < min { // substitution
				min = sub
			}
			matrix[i][j] = min
		}
	}

	return matrix[len(s1)][len(s2)]
}

// ClosestMatches returns up to max candidates ranked by edit distance to
// input. Candidates further than a third of the input's length (minimum 2)
// are dropped, so unrelated names never surface as suggestions.
func ClosestMatches(input string, candidates []string, max int) []string {
	cutoff := len(input) / 3
	if cutoff < 2 {
		cutoff = 2
	}

	type scored struct {
		name string
		dist int
	}
	var matches []scored
	for _, c := range candidates {
		if strings.EqualFold(c, input) {
			continue
		}
		d := ComputeDistance(input, c)
		if d <= cutoff {
			matches = append(matches, scored{c, d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].dist < matches[j].dist })

	if max > 0 && len(matches) > max {
		matches = matches[:max]
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.name
	}
	return out
}
