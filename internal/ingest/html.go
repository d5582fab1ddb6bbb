package ingest

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/example/control-assessor/internal/apperr"
)

// HTMLToText returns the visible text of an HTML document, one block element
// per line.
func HTMLToText(r io.Reader) (string, error) {
	node, err := html.Parse(r)
	if err != nil {
		return "", apperr.Configuration("document", fmt.Sprintf("unreadable html: %v", err))
	}
	var b strings.Builder
	extractText(node, &b, false)
	return compactWhitespace(b.String()), nil
}

func extractText(n *html.Node, b *strings.Builder, hidden bool) {
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript", "template", "head":
			hidden = true
		case "br", "p", "div", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6", "section", "article":
			b.WriteString("\n")
		case "td", "th":
			b.WriteString(" ")
		}
	}
	if !hidden && n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, b, hidden)
	}
}

// compactWhitespace collapses runs of blanks within lines and drops empty lines.
func compactWhitespace(s string) string {
	s = strings.NewReplacer("\t", " ", "\r", " ", "\u00a0", " ").Replace(s)
	var out []string
	for _, ln := range strings.Split(s, "\n") {
		if ln = strings.Join(strings.Fields(ln), " "); ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}
