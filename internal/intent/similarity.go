// Package intent implements the lexical heart of the bot: normalization,
// token-overlap similarity, pattern classification, and the in-memory intent
// cache. Similarity is purely lexical (token-set overlap); there is no
// statistical model anywhere in this package.
package intent

import (
	"strings"
	"unicode/utf8"
)

// Separator classes. Pattern matching treats hyphen and underscore as
// separators; question-level comparison and the similarity learner keep them
// inside tokens so derived names like "expert_reset_button" compare whole.
const (
	patternSeparators  = " ,.!?:;-_"
	questionSeparators = " ,.!?:;"
)

// Normalize lowercases a message and trims surrounding whitespace. Every
// comparison in the engine operates on normalized text.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// tokenize splits s on the given separator class and drops tokens shorter
// than minRunes.
func tokenize(s, separators string, minRunes int) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(separators, r)
	})
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= minRunes {
			out = append(out, f)
		}
	}
	return out
}

// tokenSet returns the distinct tokens of s.
func tokenSet(s, separators string, minRunes int) map[string]struct{} {
	toks := tokenize(s, separators, minRunes)
	if len(toks) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		set[t] = struct{}{}
	}
	return set
}

// overlapRatio computes |A∩B| / max(|A|,|B|) over two token sets, or 0 when
// either set is empty.
func overlapRatio(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for t := range small {
		if _, ok := large[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(large))
}

// Similarity scores two normalized strings by token-set overlap using the
// pattern separator class and tokens of at least 2 runes. This is the sole
// similarity measure used by the classifier and the similarity-learning
// heuristic.
func Similarity(a, b string) float64 {
	return overlapRatio(
		tokenSet(a, patternSeparators, 2),
		tokenSet(b, patternSeparators, 2),
	)
}

// QuestionsSimilar reports whether two normalized questions share at least
// half of their tokens (3+ runes, question separator class). Feedback routing
// and expert-answer ingestion use this to match a question against the
// pattern sets of expert-authored intents.
func QuestionsSimilar(a, b string) bool {
	return overlapRatio(
		tokenSet(a, questionSeparators, 3),
		tokenSet(b, questionSeparators, 3),
	) >= 0.5
}

// MessageTokens returns the distinct 2+ rune tokens of a normalized message,
// split on the question separator class (hyphens and underscores stay inside
// tokens). The similarity-learning heuristic accumulates per-intent overlap
// counts over these tokens.
func MessageTokens(s string) map[string]struct{} {
	return tokenSet(s, questionSeparators, 2)
}

// IsExpertIntent reports whether name carries the expert-origin prefix.
func IsExpertIntent(name string) bool {
	return strings.HasPrefix(name, ExpertPrefix)
}

// DeriveExpertName builds a stable intent name from a normalized question:
// up to the first four 3+ rune tokens joined with underscores, stripped of
// stray punctuation, truncated to 40 runes, and prefixed with the
// expert-origin marker. When no qualifying token exists, the first 10 runes
// of the question are used instead.
func DeriveExpertName(normalizedQuestion string) string {
	toks := tokenize(normalizedQuestion, patternSeparators, 3)
	if len(toks) > 4 {
		toks = toks[:4]
	}
	var base string
	if len(toks) == 0 {
		r := []rune(normalizedQuestion)
		if len(r) > 10 {
			r = r[:10]
		}
		base = string(r)
	} else {
		base = strings.Join(toks, "_")
	}
	base = strings.NewReplacer("?", "", "!", "", ".", "", ",", "").Replace(base)
	base = strings.ToLower(base)
	if r := []rune(base); len(r) > 40 {
		base = string(r[:40])
	}
	return ExpertPrefix + base
}
