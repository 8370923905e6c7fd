package parse

import (
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// SanitizeMarkdown reduces markdown to the plain prose a human would read as
// an assertion. Links (label and target), images, code spans and blocks,
// block quotes, raw HTML and thematic breaks are dropped; paragraph, heading,
// list item and emphasis text is kept. HTML entities are decoded.
//
// Mentions inside removed constructs must not produce lookups, which is why
// this runs before any pattern matching.
func SanitizeMarkdown(input string) string {
	source := []byte(input)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	renderPlainText(&b, doc, source)
	return b.String()
}

func renderPlainText(b *strings.Builder, n ast.Node, source []byte) {
	switch node := n.(type) {
	case *ast.Blockquote,
		*ast.FencedCodeBlock,
		*ast.CodeBlock,
		*ast.HTMLBlock,
		*ast.ThematicBreak,
		*ast.Link,
		*ast.AutoLink,
		*ast.Image,
		*ast.RawHTML,
		*ast.CodeSpan:
		// Skipped entirely, children included. A link's label text goes
		// away with its target.
		return

	case *ast.Text:
		b.WriteString(html.UnescapeString(string(node.Segment.Value(source))))
		if node.HardLineBreak() || node.SoftLineBreak() {
			b.WriteString("\n")
		}
		return

	case *ast.String:
		b.WriteString(html.UnescapeString(string(node.Value)))
		return

	case *ast.Paragraph:
		renderChildren(b, node, source)
		b.WriteString("\n")
		return

	case *ast.ListItem:
		renderChildren(b, node, source)
		b.WriteString("\n")
		return
	}

	// Headings, lists, emphasis, text blocks and anything unrecognized keep
	// their inner text only.
	renderChildren(b, n, source)
}

func renderChildren(b *strings.Builder, n ast.Node, source []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		renderPlainText(b, c, source)
	}
}
