package ingest

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// Section is a heading-delimited span of document text. Text before the
// first heading forms an untitled section; documents without headings
// yield exactly one.
type Section struct {
	Title string
	Body  string
}

// WordCount counts whitespace-separated words in the section body.
func (s Section) WordCount() int {
	return len(strings.Fields(s.Body))
}

// ExtractSections parses the source as markdown and returns its
// readable text grouped by heading. Plain text is valid markdown, so it
// passes through unchanged apart from paragraph spacing. Formatting,
// links, and image references are dropped; code block contents are
// kept.
func ExtractSections(source []byte) []Section {
	root := goldmark.DefaultParser().Parse(gmtext.NewReader(source))

	var sections []Section
	current := Section{}
	var buf strings.Builder

	flush := func() {
		body := strings.TrimSpace(buf.String())
		buf.Reset()
		if body == "" && current.Title == "" {
			return
		}
		current.Body = body
		sections = append(sections, current)
	}

	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Heading:
			if entering {
				flush()
				current = Section{Title: headingText(node, source)}
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte('\n')
				}
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				writeLines(&buf, n, source)
			}
			return ast.WalkSkipChildren, nil
		default:
			if !entering && n.Type() == ast.TypeBlock {
				buf.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})
	flush()

	return sections
}

func headingText(h *ast.Heading, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(h, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			b.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func writeLines(buf *strings.Builder, n ast.Node, source []byte) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
}
