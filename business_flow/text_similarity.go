package businessflow

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Similarity algorithm names accepted by NewTextSimilarity
const (
	SimilarityTokenOverlap = "token_overlap"
	SimilarityLevenshtein  = "levenshtein"
)

// TextSimilarity scores how alike two product descriptions are, in [0, 1]
type TextSimilarity interface {
	Name() string
	Similarity(a, b string) float64
}

// NewTextSimilarity returns the named algorithm, defaulting to token overlap
func NewTextSimilarity(algorithm string) TextSimilarity {
	if strings.EqualFold(strings.TrimSpace(algorithm), SimilarityLevenshtein) {
		return LevenshteinSimilarity{}
	}
	return TokenOverlapSimilarity{}
}

var stopwords = map[string]struct{}{
	"de": {}, "del": {}, "la": {}, "el": {}, "los": {}, "las": {}, "para": {},
	"con": {}, "sin": {}, "y": {}, "en": {}, "the": {}, "and": {}, "for": {}, "with": {},
}

// NormalizeText lowercases, strips diacritics and collapses punctuation and whitespace to single spaces
func NormalizeText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	space := true
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		if len([]rune(tok)) < 2 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

// TokenOverlapSimilarity is 1 when one normalized text contains the other as whole words, otherwise the
// overlap coefficient |A∩B| / min(|A|,|B|) of their token sets
type TokenOverlapSimilarity struct{}

func (TokenOverlapSimilarity) Name() string { return SimilarityTokenOverlap }

func (TokenOverlapSimilarity) Similarity(a, b string) float64 {
	na, nb := NormalizeText(a), NormalizeText(b)
	if na == "" || nb == "" {
		return 0
	}
	if containsPhrase(na, nb) || containsPhrase(nb, na) {
		return 1
	}
	ta, tb := tokenSet(na), tokenSet(nb)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	if len(tb) < len(ta) {
		ta, tb = tb, ta
	}
	shared := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(ta))
}

// containsPhrase reports whether needle appears in text on token boundaries
func containsPhrase(text, needle string) bool {
	return strings.Contains(" "+text+" ", " "+needle+" ")
}

// LevenshteinSimilarity is 1 - editDistance/maxLen over the normalized texts
type LevenshteinSimilarity struct{}

func (LevenshteinSimilarity) Name() string { return SimilarityLevenshtein }

func (LevenshteinSimilarity) Similarity(a, b string) float64 {
	ra, rb := []rune(NormalizeText(a)), []rune(NormalizeText(b))
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	longest := max(len(ra), len(rb))
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
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
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
