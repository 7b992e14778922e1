package fingerprint

import "strings"

// Similarity weights. Positional character matches dominate because our
// hashes are fixed-length digests; the bigram share catches shifted content.
const (
	positionalWeight = 0.7
	bigramWeight     = 0.3
)

// Similarity scores how close two hashes are, in [0,1]. Equal strings score
// 1 (including two empties); exactly one empty scores 0. Otherwise the score
// is a weighted blend of the fraction of positions holding identical
// characters and the fraction of a's two-character substrings found in b.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	return positionalWeight*positionalMatch(a, b) + bigramWeight*bigramContainment(a, b)
}

func positionalMatch(a, b string) float64 {
	shorter, longer := len(a), len(b)
	if shorter > longer {
		shorter, longer = longer, shorter
	}

	matches := 0
	for i := 0; i < shorter; i++ {
		if a[i] == b[i] {
			matches++
		}
	}

	// Dividing by the longer length penalizes length mismatches.
	return float64(matches) / float64(longer)
}

func bigramContainment(a, b string) float64 {
	if len(a) < 2 {
		return 0
	}

	found := 0
	total := len(a) - 1
	for i := 0; i < total; i++ {
		if strings.Contains(b, a[i:i+2]) {
			found++
		}
	}

	return float64(found) / float64(total)
}

// SuspiciousChange reports whether moving from the old hash to the new one
// looks like device spoofing: either hash fails format validation, or they
// differ with similarity below the threshold.
func SuspiciousChange(old, new string, threshold float64) bool {
	if !Validate(old) || !Validate(new) {
		return true
	}
	if old == new {
		return false
	}
	return Similarity(old, new) < threshold
}
