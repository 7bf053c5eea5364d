package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSections_SplitsOnHeadings(t *testing.T) {
	src := "Intro paragraph before any heading.\n\n" +
		"# Grammar Basics\n\n" +
		"Nouns name *things*. Verbs describe **actions**.\n\n" +
		"- first item\n- second item\n\n" +
		"# Practice\n\n" +
		"Write three sentences using adjectives.\n"

	sections := ExtractSections([]byte(src))
	require.Len(t, sections, 3)

	assert.Equal(t, "", sections[0].Title)
	assert.Equal(t, "Intro paragraph before any heading.", sections[0].Body)

	assert.Equal(t, "Grammar Basics", sections[1].Title)
	assert.Contains(t, sections[1].Body, "Nouns name things. Verbs describe actions.")
	assert.Contains(t, sections[1].Body, "first item")
	assert.Contains(t, sections[1].Body, "second item")
	assert.NotContains(t, sections[1].Body, "*")

	assert.Equal(t, "Practice", sections[2].Title)
	assert.Equal(t, "Write three sentences using adjectives.", sections[2].Body)
}

func TestExtractSections_PlainTextPassesThrough(t *testing.T) {
	src := "Plain prose with no markup at all.\n\nA second paragraph follows here.\n"

	sections := ExtractSections([]byte(src))
	require.Len(t, sections, 1)
	assert.Equal(t, "", sections[0].Title)
	assert.Equal(t, "Plain prose with no markup at all.\n\nA second paragraph follows here.", sections[0].Body)
}

func TestExtractSections_KeepsCodeBlockContents(t *testing.T) {
	src := "# Code\n\nRun the sample:\n\n```\nfunc main() {}\n```\n"

	sections := ExtractSections([]byte(src))
	require.Len(t, sections, 1)
	assert.Equal(t, "Code", sections[0].Title)
	assert.Contains(t, sections[0].Body, "func main() {}")
	assert.NotContains(t, sections[0].Body, "```")
}

func TestExtractSections_DropsLinkTargets(t *testing.T) {
	src := "See [the guide](https://example.com/guide) for more detail.\n"

	sections := ExtractSections([]byte(src))
	require.Len(t, sections, 1)
	assert.Equal(t, "See the guide for more detail.", sections[0].Body)
}

func TestExtractSections_HeadingWithEmphasis(t *testing.T) {
	sections := ExtractSections([]byte("# The *Best* Title\n\nSome body text here.\n"))
	require.Len(t, sections, 1)
	assert.Equal(t, "The Best Title", sections[0].Title)
}

func TestExtractSections_HeadingWithoutBody(t *testing.T) {
	sections := ExtractSections([]byte("# Just a Title\n"))
	require.Len(t, sections, 1)
	assert.Equal(t, "Just a Title", sections[0].Title)
	assert.Equal(t, "", sections[0].Body)
	assert.Equal(t, 0, sections[0].WordCount())
}

func TestExtractSections_SoftLineBreaks(t *testing.T) {
	sections := ExtractSections([]byte("line one\nline two\n"))
	require.Len(t, sections, 1)
	assert.Equal(t, "line one\nline two", sections[0].Body)
}

func TestExtractSections_Empty(t *testing.T) {
	assert.Empty(t, ExtractSections(nil))
	assert.Empty(t, ExtractSections([]byte("")))
	assert.Empty(t, ExtractSections([]byte("   \n\n  \n")))
}

func TestSection_WordCount(t *testing.T) {
	s := Section{Body: "one  two\tthree\nfour"}
	assert.Equal(t, 4, s.WordCount())

	long := Section{Body: strings.Repeat("word ", 25)}
	assert.Equal(t, 25, long.WordCount())
}
