package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Markdown turns model answers into the HTML shown in message bubbles.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown configures goldmark with GFM lists, tables and hard wraps. Raw
// HTML in model output is not rendered.
func NewMarkdown() *Markdown {
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
	}
}

// Render converts markdown to HTML.
func (m *Markdown) Render(text string) (string, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// Plain escapes user-authored text and keeps its line breaks.
func Plain(text string) string {
	escaped := html.EscapeString(text)
	return "<p>" + strings.ReplaceAll(escaped, "\n", "<br>\n") + "</p>\n"
}
