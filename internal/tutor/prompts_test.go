package tutor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingokit/lingokit/pkg/session"
)

func TestDefaultPrompts_Complete(t *testing.T) {
	p := DefaultPrompts()

	for _, strategy := range []string{
		StrategyAssessment,
		StrategyTestPrep,
		StrategyConceptTeaching,
		StrategySessionEnding,
		StrategyGeneralTeaching,
	} {
		assert.NotEmpty(t, p.Strategies[strategy], "strategy %s", strategy)
	}
	for _, level := range []string{
		session.DifficultyBeginner,
		session.DifficultyIntermediate,
		session.DifficultyAdvanced,
	} {
		assert.NotEmpty(t, p.LevelGuidance[level], "level %s", level)
	}
}

func TestDefaultPrompts_FreshCopies(t *testing.T) {
	p := DefaultPrompts()
	p.Strategies[StrategyTestPrep] = "mutated"
	p.LevelGuidance[session.DifficultyBeginner] = "mutated"

	fresh := DefaultPrompts()
	assert.NotEqual(t, "mutated", fresh.Strategies[StrategyTestPrep])
	assert.NotEqual(t, "mutated", fresh.LevelGuidance[session.DifficultyBeginner])
}

func TestSystemPrompt_ReplacesPlaceholders(t *testing.T) {
	p := DefaultPrompts()

	out := p.SystemPrompt(StrategyTestPrep, session.DifficultyAdvanced)
	assert.Contains(t, out, "advanced level")
	assert.NotContains(t, out, "{level}")

	out = p.SystemPrompt(StrategyAssessment, session.DifficultyBeginner)
	assert.Contains(t, out, "Use simple vocabulary and short sentences.")
	assert.NotContains(t, out, "{level_guidance}")
}

func TestSystemPrompt_UnknownStrategyFallsBack(t *testing.T) {
	p := DefaultPrompts()

	got := p.SystemPrompt("made_up", session.DifficultyIntermediate)
	want := p.SystemPrompt(StrategyGeneralTeaching, session.DifficultyIntermediate)
	assert.Equal(t, want, got)
}

func TestLoadPromptsFile_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := `strategies:
  test_prep: "Drill the student at {level} level."
level_guidance:
  beginner: "Keep it very simple."
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p, err := LoadPromptsFile(path)
	require.NoError(t, err)

	assert.Equal(t, "Drill the student at {level} level.", p.Strategies[StrategyTestPrep])
	assert.Equal(t, "Keep it very simple.", p.LevelGuidance[session.DifficultyBeginner])
	// Everything not named in the file keeps its default.
	assert.Equal(t, DefaultPrompts().Strategies[StrategyAssessment], p.Strategies[StrategyAssessment])
	assert.Equal(t, DefaultPrompts().LevelGuidance[session.DifficultyAdvanced], p.LevelGuidance[session.DifficultyAdvanced])

	assert.Contains(t, p.SystemPrompt(StrategyTestPrep, session.DifficultyBeginner), "Drill the student at beginner level.")
}

func TestLoadPromptsFile_RejectsUnknownNames(t *testing.T) {
	dir := t.TempDir()

	badStrategy := filepath.Join(dir, "strategy.yaml")
	require.NoError(t, os.WriteFile(badStrategy, []byte("strategies:\n  cramming: \"x\"\n"), 0o644))
	_, err := LoadPromptsFile(badStrategy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")

	badLevel := filepath.Join(dir, "level.yaml")
	require.NoError(t, os.WriteFile(badLevel, []byte("level_guidance:\n  expert: \"x\"\n"), 0o644))
	_, err = LoadPromptsFile(badLevel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown difficulty")
}

func TestLoadPromptsFile_MissingFile(t *testing.T) {
	_, err := LoadPromptsFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadPromptsFile_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategies: [not a map"), 0o644))

	_, err := LoadPromptsFile(path)
	require.Error(t, err)
}
