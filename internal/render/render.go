// Package render turns chat turn content into safe HTML for the browser.
package render

import (
	"bytes"
	"html"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Markdown renders agent and user text as sanitized HTML. The zero value is
// not usable; call NewMarkdown.
type Markdown struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	mu     sync.Mutex
}

// NewMarkdown returns a renderer supporting GitHub-flavored tables, which
// agents use for query results.
func NewMarkdown() *Markdown {
	return &Markdown{
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: bluemonday.UGCPolicy(),
	}
}

// HTML converts markdown source into sanitized HTML. Source that fails to
// parse falls back to escaped text in a paragraph.
func (m *Markdown) HTML(src string) string {
	var buf bytes.Buffer
	m.mu.Lock()
	err := m.md.Convert([]byte(src), &buf)
	m.mu.Unlock()
	if err != nil {
		return "<p>" + html.EscapeString(src) + "</p>"
	}
	return m.policy.Sanitize(buf.String())
}
