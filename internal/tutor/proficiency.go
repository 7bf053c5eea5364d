package tutor

import (
	"strings"
	"unicode/utf8"

	"github.com/lingokit/lingokit/pkg/session"
)

// Indicators are the surface features extracted from one student
// message.
type Indicators struct {
	WordCount           int
	VocabularyDiversity float64 // unique words / total words
	AverageWordLength   float64 // runes per word
	SentenceLength      float64 // words per sentence
}

// ProficiencyAnalyzer estimates how a student message should move the
// proficiency score. Pluggable so the scoring model can be replaced
// without touching the orchestrator.
type ProficiencyAnalyzer interface {
	Analyze(message, difficultyLevel string) (delta int, ind Indicators)
}

// HeuristicAnalyzer scores messages on vocabulary diversity, word
// length, and sentence length relative to the session's current level.
type HeuristicAnalyzer struct{}

func (HeuristicAnalyzer) Analyze(message, difficultyLevel string) (int, Indicators) {
	ind := measure(message)

	delta := 0
	switch {
	case ind.VocabularyDiversity > 0.8 && ind.AverageWordLength > 5:
		// Rich vocabulary bumps lower levels; advanced students are
		// expected to write like this.
		switch difficultyLevel {
		case session.DifficultyBeginner:
			delta = 5
		case session.DifficultyIntermediate:
			delta = 3
		}
	case ind.SentenceLength > 10 && difficultyLevel == session.DifficultyBeginner:
		delta = 3
	case ind.SentenceLength < 3 && difficultyLevel == session.DifficultyAdvanced:
		delta = -2
	case ind.WordCount < 3 &&
		(difficultyLevel == session.DifficultyIntermediate || difficultyLevel == session.DifficultyAdvanced):
		delta = -1
	}

	return delta, ind
}

func measure(message string) Indicators {
	words := strings.Fields(message)
	ind := Indicators{WordCount: len(words)}
	if len(words) == 0 {
		return ind
	}

	unique := make(map[string]struct{}, len(words))
	totalLen := 0
	for _, w := range words {
		totalLen += utf8.RuneCountInString(w)
		unique[strings.Trim(strings.ToLower(w), ".,!?")] = struct{}{}
	}

	sentences := strings.Count(message, ".") +
		strings.Count(message, "!") +
		strings.Count(message, "?") + 1

	ind.VocabularyDiversity = float64(len(unique)) / float64(len(words))
	ind.AverageWordLength = float64(totalLen) / float64(len(words))
	ind.SentenceLength = float64(len(words)) / float64(sentences)
	return ind
}
