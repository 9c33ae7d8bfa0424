// Package textnorm canonicalizes text before it is split into n-grams so that
// visually equivalent input produces identical index keys.
package textnorm

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	zeroWidthJoiner = '\u200d'

	katakanaSmallA  = 'ァ'
	katakanaSmallKe = 'ヶ'
	katakanaIter    = 'ヽ'
	katakanaIterV   = 'ヾ'
	kanaOffset      = 0x60
)

// Normalize applies NFKC compatibility composition, lowercases the result,
// folds katakana to hiragana and strips zero-width joiners. Half-width
// katakana and detached voiced marks are recomposed by the NFKC step, so
// "ｶﾞ" and "ガ" both normalize to "が".
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	// cases.Caser is stateful, so the chain is built per call.
	t := transform.Chain(
		norm.NFKC,
		cases.Lower(language.Und),
		runes.Map(foldKana),
		runes.Remove(runes.Predicate(isJoiner)),
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.Map(foldKanaDropJoiner, strings.ToLower(norm.NFKC.String(s)))
	}
	return out
}

// foldKana maps a katakana rune to its hiragana counterpart. Runes without a
// hiragana form (ヷ, ヸ, the long vowel mark, ...) are returned unchanged.
func foldKana(r rune) rune {
	switch {
	case r >= katakanaSmallA && r <= katakanaSmallKe:
		return r - kanaOffset
	case r == katakanaIter || r == katakanaIterV:
		return r - kanaOffset
	}
	return r
}

func foldKanaDropJoiner(r rune) rune {
	if isJoiner(r) {
		return -1
	}
	return foldKana(r)
}

func isJoiner(r rune) bool {
	return r == zeroWidthJoiner
}
