package ingest

import (
	"strings"
	"unicode/utf8"

	"github.com/lingokit/lingokit/pkg/session"
)

// Texts shorter than this give the detector nothing to work with.
const detectMinWords = 50

// DetectDifficulty estimates a reading level from surface statistics:
// average word length, average sentence length, and the share of words
// longer than eight runes. Short texts default to intermediate.
func DetectDifficulty(text string) string {
	words := strings.Fields(text)
	if len(words) < detectMinWords {
		return session.DifficultyIntermediate
	}

	totalLen := 0
	complexWords := 0
	for _, w := range words {
		n := utf8.RuneCountInString(w)
		totalLen += n
		if n > 8 {
			complexWords++
		}
	}

	sentences := strings.Count(text, ".") +
		strings.Count(text, "!") +
		strings.Count(text, "?")
	if sentences < 1 {
		sentences = 1
	}

	avgWordLen := float64(totalLen) / float64(len(words))
	avgSentenceLen := float64(len(words)) / float64(sentences)
	complexRatio := float64(complexWords) / float64(len(words))

	switch {
	case avgWordLen <= 4.5 && avgSentenceLen <= 12 && complexRatio <= 0.1:
		return session.DifficultyBeginner
	case avgWordLen >= 6 && avgSentenceLen >= 20 && complexRatio >= 0.2:
		return session.DifficultyAdvanced
	default:
		return session.DifficultyIntermediate
	}
}
