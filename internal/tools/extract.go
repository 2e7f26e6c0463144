package tools

import (
	"strings"

	"golang.org/x/net/html"
)

// ExtractText strips HTML markup from snippet text, returning the input
// unchanged when it contains no markup. Search APIs intermittently return
// decorated snippets even with decorations disabled.
func ExtractText(raw string) string {
	if !strings.ContainsAny(raw, "<>") {
		return normalizeText(raw)
	}
	node, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return normalizeText(raw)
	}
	var builder strings.Builder
	collectText(node, &builder)
	return normalizeText(builder.String())
}

func collectText(node *html.Node, builder *strings.Builder) {
	if node.Type == html.ElementNode {
		switch node.Data {
		case "script", "style", "noscript":
			return
		}
	}
	if node.Type == html.TextNode {
		text := strings.TrimSpace(node.Data)
		if text != "" {
			if builder.Len() > 0 {
				builder.WriteByte(' ')
			}
			builder.WriteString(text)
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, builder)
	}
}

func normalizeText(raw string) string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.Join(strings.Fields(line), " ")
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}
