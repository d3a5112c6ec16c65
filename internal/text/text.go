// Package text provides the deterministic text preprocessing used by the
// co-tweet and co-similar-tweet networks: normalization, content
// fingerprinting, tokenization and set similarity scoring.
package text

import (
	"sort"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

// Normalize prepares message text for fingerprinting: NFC normalization,
// lowercasing, internal whitespace collapsed to single spaces, surrounding
// whitespace stripped.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = strings.ToLower(text)
	return strings.Join(strings.Fields(text), " ")
}

// Fingerprint returns a 64-bit hash of the normalized text. Two messages
// co-tweet iff their fingerprints are equal.
func Fingerprint(text string) uint64 {
	return xxhash.Sum64String(Normalize(text))
}

// Tokenize splits text into a sorted, deduplicated set of lowercase tokens.
// Token boundaries are runs of anything that is not a letter, digit or
// apostrophe, so no punctuation other than an inner apostrophe ends up
// inside a token; leading and trailing apostrophes are trimmed.
func Tokenize(text string) []string {
	text = strings.ToLower(norm.NFC.String(text))

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})

	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}

	sort.Strings(tokens)
	return tokens
}

// JoinTokens serializes a token set for storage as a single space-delimited
// string. The inverse of SplitTokens.
func JoinTokens(tokens []string) string {
	return strings.Join(tokens, " ")
}

// SplitTokens parses a stored token set. The stored form is already sorted
// and deduplicated.
func SplitTokens(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, " ")
}

// Jaccard computes |A ∩ B| / |A ∪ B| over two sorted token sets.
// Returns 0 when both sets are empty.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	var intersection int
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			intersection++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}

	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// Scorer scores the similarity of two token sets in [0, 1].
type Scorer interface {
	Score(a, b []string) float64
}

// JaccardScorer is the default Scorer.
type JaccardScorer struct{}

func (JaccardScorer) Score(a, b []string) float64 { return Jaccard(a, b) }

// MinDocSizeScorer discards short documents: a token set smaller than
// MinTokens scores 0 against everything. This avoids treating trivially
// short messages (a lone mention and hashtag) as similar to anything.
type MinDocSizeScorer struct {
	MinTokens int
}

func (s MinDocSizeScorer) Score(a, b []string) float64 {
	if len(a) < s.MinTokens || len(b) < s.MinTokens {
		return 0
	}
	return Jaccard(a, b)
}

// ScorerForMinSize returns the plain Jaccard scorer unless a minimum
// document size above 1 is requested.
func ScorerForMinSize(minTokens int) Scorer {
	if minTokens > 1 {
		return MinDocSizeScorer{MinTokens: minTokens}
	}
	return JaccardScorer{}
}
