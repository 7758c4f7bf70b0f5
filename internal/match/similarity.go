// Package match implements the fuzzy document-to-transaction scorer and
// the threshold decision policy.
package match

// Vendor name similarity is a pure, deterministic token-set comparison
// with an edit-distance fallback, so matching is reproducible across runs.

const prefixTokenScore = 0.9

// VendorSimilarity scores two tokenized vendor names in [0, 1]. Token
// order is ignored; every token on each side is paired with its best
// counterpart on the other side and the pair scores are averaged, so
// unmatched tokens drag the score down symmetrically.
func VendorSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	total := 0.0
	for _, ta := range a {
		total += bestTokenScore(ta, b)
	}
	for _, tb := range b {
		total += bestTokenScore(tb, a)
	}

	return total / float64(len(a)+len(b))
}

func bestTokenScore(token string, against []string) float64 {
	best := 0.0
	for _, other := range against {
		if s := tokenSimilarity(token, other); s > best {
			best = s
		}
	}
	return best
}

// tokenSimilarity compares two tokens. Exact matches score 1.0, an
// abbreviation (one token a prefix of the other, at least three runes)
// scores 0.9, anything else falls back to Levenshtein ratio.
func tokenSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	ra, rb := []rune(a), []rune(b)
	if len(ra) >= 3 && len(rb) >= 3 && (isPrefix(ra, rb) || isPrefix(rb, ra)) {
		return prefixTokenScore
	}

	return levenshteinRatio(ra, rb)
}

func isPrefix(short, long []rune) bool {
	if len(short) > len(long) {
		return false
	}
	for i := range short {
		if short[i] != long[i] {
			return false
		}
	}
	return true
}

// levenshteinRatio returns 1 - distance/maxLen, floored at 0.
func levenshteinRatio(a, b []rune) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}

	ratio := 1.0 - float64(levenshtein(a, b))/float64(maxLen)
	if ratio < 0 {
		return 0
	}
	return ratio
}

// levenshtein computes edit distance with the classic two-row method.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
