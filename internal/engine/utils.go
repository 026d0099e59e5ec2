// Completion: 100% - Utility module complete
package engine

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/samber/lo"
)

// utils.go - Utility helper functions
//
// Hashing for linkage names and similarity matching for "did you mean"
// suggestions in diagnostics.

// HashIdentity hashes a list of type identities with FNV-1a (32 bit).
// The result is stable within and across runs for the same input.
func HashIdentity(ids ...int) uint32 {
	h := fnv.New32a()
	for _, id := range ids {
		fmt.Fprintf(h, "%d;", id)
	}
	return h.Sum32()
}

// HashName hashes a type name into a positive identity
func HashName(name string) int {
	h := fnv.New32a()
	h.Write([]byte(name))
	return int(h.Sum32()&0x7FFFFFFF) | 0x100
}

// HashSuffix returns the 8 hex digit overload suffix for a parameter list
func HashSuffix(ids ...int) string {
	return fmt.Sprintf("$%08x", HashIdentity(ids...))
}

// LevenshteinDistance calculates the edit distance between two strings
func LevenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	// Two rolling rows instead of the full matrix
	prev := make([]int, len(s2)+1)
	cur := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(s1); i++ {
		cur[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(s2)]
}

// FindSimilar returns up to maxSuggestions candidates within edit distance 2
// of name, closest first
func FindSimilar(name string, candidates []string, maxSuggestions int) []string {
	type suggestion struct {
		name     string
		distance int
	}
	const threshold = 2

	suggestions := lo.FilterMap(lo.Uniq(candidates), func(c string, _ int) (suggestion, bool) {
		d := LevenshteinDistance(name, c)
		return suggestion{c, d}, d > 0 && d <= threshold
	})
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].distance == suggestions[j].distance {
			return suggestions[i].name < suggestions[j].name
		}
		return suggestions[i].distance < suggestions[j].distance
	})
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return lo.Map(suggestions, func(s suggestion, _ int) string { return s.name })
}

// DidYouMean formats the closest candidate as a hint, or returns ""
func DidYouMean(name string, candidates []string) string {
	similar := FindSimilar(name, candidates, 1)
	if len(similar) == 0 {
		return ""
	}
	return fmt.Sprintf("did you mean '%s'?", similar[0])
}
