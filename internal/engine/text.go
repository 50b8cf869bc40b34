package engine

import (
	"strings"
	"unicode/utf8"
)

// punctuation characters that get a space inserted around them during
// tokenization.
const splitPunct = ".,!?;:…»«\"'"

// closingPunct have any preceding space stripped during detokenization.
const closingPunct = ".,!?;:…»\"'"

// openingQuotes have any following space stripped during detokenization.
const openingQuotes = "«\"'"

// tokenize splits text into words and punctuation tokens: punctuation
// characters are surrounded with spaces, then the string is split on
// whitespace runs.
func tokenize(s string) []string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(splitPunct, r) {
			b.WriteRune(' ')
			b.WriteRune(r)
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.Fields(b.String())
}

// detokenize joins tokens with single spaces, then removes the space before
// closing punctuation and the space after opening quotes.
func detokenize(tokens []string) string {
	joined := strings.Join(tokens, " ")
	var b strings.Builder
	runes := []rune(joined)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == ' ' {
			// drop this space if the next non-space rune is closing punctuation
			if i+1 < len(runes) && strings.ContainsRune(closingPunct, runes[i+1]) {
				continue
			}
			// drop this space if the previous rune was an opening quote
			if b.Len() > 0 {
				prev, size := utf8.DecodeLastRuneInString(b.String())
				if size > 0 && strings.ContainsRune(openingQuotes, prev) {
					continue
				}
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// levenshtein computes the classic edit distance between two token slices
// (token-level, not rune-level: each element of a/b is compared whole).
func levenshtein(a, b []string) int {
	n, m := len(a), len(b)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}
	prev := make([]int, m+1)
	curr := make([]int, m+1)
	for j := 0; j <= m; j++ {
		prev[j] = j
	}
	for i := 1; i <= n; i++ {
		curr[0] = i
		for j := 1; j <= m; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			best := del
			if ins < best {
				best = ins
			}
			if sub < best {
				best = sub
			}
			curr[j] = best
		}
		prev, curr = curr, prev
	}
	return prev[m]
}

// tokenSimilarity returns 1 - distance/max(len(a),len(b)), comparing two
// individual tokens rune-by-rune via levenshtein over their lower-cased
// runes. Two empty strings have no content to compare, so they score 0,
// not a vacuous match.
func tokenSimilarity(a, b string) float64 {
	ra, rb := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 0
	}
	dist := runeLevenshtein(ra, rb)
	return 1 - float64(dist)/float64(maxLen)
}

func runeLevenshtein(a, b []rune) int {
	n, m := len(a), len(b)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}
	prev := make([]int, m+1)
	curr := make([]int, m+1)
	for j := 0; j <= m; j++ {
		prev[j] = j
	}
	for i := 1; i <= n; i++ {
		curr[0] = i
		for j := 1; j <= m; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			best := prev[j] + 1
			if v := curr[j-1] + 1; v < best {
				best = v
			}
			if v := prev[j-1] + cost; v < best {
				best = v
			}
			curr[j] = best
		}
		prev, curr = curr, prev
	}
	return prev[m]
}

// overlapMatch describes the result of findOverlap.
type overlapMatch struct {
	K       int // length of the matched overlap, in tokens
	Matches int // number of per-token matches within that overlap
}

// findOverlap looks for the longest run of up to 15 trailing tokens of a
// that plausibly continues into the leading tokens of b, per the fusion
// engine's overlap-detection algorithm: a candidate length k is accepted
// when matches/k >= 0.7 (per-token similarity >= 0.8 counts as a match),
// and ties are broken in favor of the longer k.
func findOverlap(a, b []string) (overlapMatch, bool) {
	maxK := len(a)
	if len(b) < maxK {
		maxK = len(b)
	}
	if maxK > 15 {
		maxK = 15
	}
	var best overlapMatch
	found := false
	for k := 1; k <= maxK; k++ {
		tailA := a[len(a)-k:]
		headB := b[:k]
		matches := 0
		for i := 0; i < k; i++ {
			if tokenSimilarity(tailA[i], headB[i]) >= 0.8 {
				matches++
			}
		}
		ratio := float64(matches) / float64(k)
		if ratio >= 0.7 {
			if !found || k >= best.K {
				best = overlapMatch{K: k, Matches: matches}
				found = true
			}
		}
	}
	return best, found
}
