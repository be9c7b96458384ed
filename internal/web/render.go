package web

import (
	"bytes"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// renderMarkdown converts a card description to HTML. Raw HTML in the source
// is not passed through.
func renderMarkdown(s string) string {
	if s == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(s), &buf); err != nil {
		return "<p>" + html.EscapeString(s) + "</p>"
	}
	return buf.String()
}
