package sqlast

import "github.com/agnivade/levenshtein"

// closestMatch returns the candidate string with the smallest edit
// distance to target, and that distance. Ties resolve to the
// lexicographically smaller candidate for determinism.
func closestMatch(target string, candidates []string) (string, int) {
	best := ""
	bestDist := -1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(target, c)
		if bestDist == -1 || d < bestDist || (d == bestDist && c < best) {
			best = c
			bestDist = d
		}
	}
	return best, bestDist
}
