package tutor

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lingokit/lingokit/pkg/session"
)

// PromptSet maps each teaching strategy to its system prompt template,
// plus per-level guidance appended to assessments. Templates may use
// the {level} and {level_guidance} placeholders.
type PromptSet struct {
	Strategies    map[string]string `yaml:"strategies"`
	LevelGuidance map[string]string `yaml:"level_guidance"`
}

const assessmentPrompt = `You are an expert English language teacher. This is one of your first
interactions with this student. Your goal is to assess their current English
proficiency while being encouraging and supportive.

Guidelines:
- Ask engaging questions that help gauge their level
- Be patient and encouraging
- Provide gentle corrections if needed
- Adapt your language complexity to their apparent level

Level-specific guidance: {level_guidance}`

const testPrepPrompt = `You are a tutor helping a student prepare for an English language test at
{level} level.

* Generate practice questions appropriate for {level} level
* Start simple, then make questions more difficult if the student answers correctly
* Prompt the student to explain their reasoning
* After the student explains their choice, affirm correct answers or guide them to correct mistakes
* If a student requests to move on, give the correct answer and continue
* After 5 questions, offer a summary of their performance and study recommendations

Adapt your vocabulary and complexity to {level} level.`

const conceptTeachingPrompt = `Be a friendly, supportive English tutor at {level} level. Guide the student
to understand English concepts through questions rather than direct explanation.

* Ask guiding questions to help students take incremental steps toward understanding
* Use vocabulary appropriate for {level} level
* Pose just one question per turn to avoid overwhelming the student
* Be encouraging and patient
* Wrap up once the student shows evidence of understanding

Remember to match your language complexity to {level} level.`

const sessionEndingPrompt = `You are an English tutor helping a {level} level student who seems
ready to end the session. Provide a warm, encouraging conclusion to the learning session.

* Acknowledge their effort and progress made during the session
* Provide a brief, positive summary of what they practiced
* Give encouragement for continued learning
* Offer a friendly goodbye appropriate for {level} level
* Suggest they can return anytime to continue learning

Keep your language appropriate for {level} level and be warm and supportive.`

const generalTeachingPrompt = `You are a friendly English conversation partner and teacher for a {level}
level student. Help them practice English through natural conversation while
providing gentle corrections and learning opportunities.

* Engage in natural conversation appropriate for {level} level
* Provide gentle corrections when needed
* Ask follow-up questions to encourage more speaking
* Introduce new vocabulary naturally
* Be patient and encouraging

Adjust your vocabulary and sentence complexity for {level} level.`

// DefaultPrompts returns a fresh copy of the embedded prompt set.
func DefaultPrompts() *PromptSet {
	return &PromptSet{
		Strategies: map[string]string{
			StrategyAssessment:      assessmentPrompt,
			StrategyTestPrep:        testPrepPrompt,
			StrategyConceptTeaching: conceptTeachingPrompt,
			StrategySessionEnding:   sessionEndingPrompt,
			StrategyGeneralTeaching: generalTeachingPrompt,
		},
		LevelGuidance: map[string]string{
			session.DifficultyBeginner:     "Use simple vocabulary and short sentences. Focus on basic concepts.",
			session.DifficultyIntermediate: "Use moderate vocabulary and clear explanations. Introduce some complex concepts.",
			session.DifficultyAdvanced:     "Use sophisticated vocabulary and engage in complex discussions.",
		},
	}
}

// LoadPromptsFile overlays templates from a YAML file onto the
// defaults. Only the strategies and levels named in the file change;
// unknown names are rejected so typos fail fast.
func LoadPromptsFile(path string) (*PromptSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}

	var override PromptSet
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse prompts file: %w", err)
	}

	p := DefaultPrompts()
	for name, tmpl := range override.Strategies {
		if _, ok := p.Strategies[name]; !ok {
			return nil, fmt.Errorf("unknown strategy %q in prompts file", name)
		}
		p.Strategies[name] = tmpl
	}
	for level, guidance := range override.LevelGuidance {
		if !session.ValidDifficulty(level) {
			return nil, fmt.Errorf("unknown difficulty %q in prompts file", level)
		}
		p.LevelGuidance[level] = guidance
	}
	return p, nil
}

// SystemPrompt renders the template for a strategy at a difficulty
// level. Unknown strategies fall back to general teaching.
func (p *PromptSet) SystemPrompt(strategy, difficultyLevel string) string {
	tmpl, ok := p.Strategies[strategy]
	if !ok {
		tmpl = p.Strategies[StrategyGeneralTeaching]
	}

	out := strings.ReplaceAll(tmpl, "{level}", difficultyLevel)
	out = strings.ReplaceAll(out, "{level_guidance}", p.LevelGuidance[difficultyLevel])
	return out
}
