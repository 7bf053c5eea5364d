// Package tutor holds the teaching logic: the session manager owning
// the active-to-archived lifecycle, the chat orchestrator assembling
// adaptive prompts, proficiency analysis, and strategy selection.
package tutor

import "strings"

// Teaching strategies, in selection precedence order.
const (
	StrategyAssessment      = "assessment"
	StrategyTestPrep        = "test_prep"
	StrategyConceptTeaching = "concept_teaching"
	StrategySessionEnding   = "session_ending"
	StrategyGeneralTeaching = "general_teaching"
)

// Sessions with fewer interactions than this stay in assessment mode.
const assessmentInteractions = 3

var (
	testPrepCues = []string{"test", "quiz", "exam", "practice"}
	questionCues = []string{"what", "how", "why", "when", "where"}
	farewellCues = []string{"bye", "goodbye", "end", "finish", "stop", "done"}
)

// SelectStrategy picks the teaching strategy for a student message.
// First match wins: young sessions get assessment, then test-prep cues,
// then question cues, then farewells, else general teaching. Cues match
// as substrings of the lowercased message.
func SelectStrategy(message string, interactionCount int) string {
	if interactionCount < assessmentInteractions {
		return StrategyAssessment
	}

	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, testPrepCues):
		return StrategyTestPrep
	case strings.Contains(lower, "?") || containsAny(lower, questionCues):
		return StrategyConceptTeaching
	case containsAny(lower, farewellCues):
		return StrategySessionEnding
	default:
		return StrategyGeneralTeaching
	}
}

func containsAny(s string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(s, cue) {
			return true
		}
	}
	return false
}
