package parser

import (
	"strings"

	"github.com/jaytaylor/html2text"
)

const minSearchFragmentLength = 15

// buildSearchText produces a lower-cased, deduplicated sentence blob used
// for substring search without a full-text index.
func buildSearchText(subject, sender, bodyText, bodyHTML string) string {
	var builder strings.Builder
	builder.WriteString(subject)
	builder.WriteString("\n")
	builder.WriteString(sender)
	builder.WriteString("\n")
	builder.WriteString(bodyText)
	builder.WriteString("\n")

	if bodyHTML != "" {
		stripped, err := html2text.FromString(bodyHTML, html2text.Options{TextOnly: true})
		if err == nil {
			builder.WriteString(stripped)
		}
	}

	fragments := splitSentences(builder.String())

	seen := make(map[string]bool, len(fragments))
	out := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		fragment = strings.ToLower(strings.TrimSpace(fragment))
		if len(fragment) < minSearchFragmentLength {
			continue
		}
		if seen[fragment] {
			continue
		}
		seen[fragment] = true
		out = append(out, fragment)
	}

	return strings.Join(out, " ")
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '.', '!', '?', '\n', '\r':
			return true
		}
		return false
	})
}
