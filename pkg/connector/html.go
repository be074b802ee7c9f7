package connector

import (
	"strings"

	"golang.org/x/net/html"
)

// skippedElements never contribute text to a message body.
var skippedElements = map[string]bool{
	"head":     true,
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
}

// inlineElements do not separate the words around them.
var inlineElements = map[string]bool{
	"a": true, "abbr": true, "b": true, "bdi": true, "bdo": true, "cite": true,
	"code": true, "em": true, "font": true, "i": true, "kbd": true, "mark": true,
	"q": true, "s": true, "samp": true, "small": true, "span": true, "strong": true,
	"sub": true, "sup": true, "time": true, "u": true, "var": true,
}

// stripHTML returns the visible text of an HTML body with whitespace
// collapsed. Entities are decoded by the parser.
func stripHTML(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return ""
	}

	var b strings.Builder
	writeText(doc, &b)
	return strings.Join(strings.Fields(b.String()), " ")
}

func writeText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		name := strings.ToLower(n.Data)
		if skippedElements[name] {
			return
		}
		if !inlineElements[name] {
			b.WriteByte(' ')
			defer b.WriteByte(' ')
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(c, b)
	}
}
