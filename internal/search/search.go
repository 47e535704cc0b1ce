// Package search filters a stored Message Set by substring and marks the
// matched text for display.
package search

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"
)

// Result is one message matching a query. Index is its position in the
// Message Set.
type Result struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Search returns the messages containing query, ignoring case, in stored
// order. A blank query matches nothing.
func Search(messages []string, query string) []Result {
	q := normalize(query)
	if q == "" {
		return nil
	}

	var results []Result
	for i, m := range messages {
		if strings.Contains(strings.ToLower(m), q) {
			results = append(results, Result{Index: i, Text: m})
		}
	}
	return results
}

// Summary is the result count line shown above the results.
func Summary(n int) string {
	if n == 1 {
		return "Found 1 result"
	}
	return fmt.Sprintf("Found %d results", n)
}

// NoResults is shown when a query matched nothing.
func NoResults(query string) string {
	return fmt.Sprintf("No results found for %q", strings.TrimSpace(query))
}

func normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

type Style int

const (
	StylePlain Style = iota
	StyleHTML
	StyleMarkdown
	StyleANSI
)

// ParseStyle maps an output format name to the highlight style it uses.
func ParseStyle(name string) Style {
	switch strings.ToLower(name) {
	case "html":
		return StyleHTML
	case "markdown", "md":
		return StyleMarkdown
	case "ansi", "color":
		return StyleANSI
	default:
		return StylePlain
	}
}

func (s Style) wrap(match string) string {
	switch s {
	case StyleHTML:
		return "<mark>" + html.EscapeString(match) + "</mark>"
	case StyleMarkdown:
		return "**" + match + "**"
	case StyleANSI:
		return "\x1b[7m" + match + "\x1b[27m"
	default:
		return "[" + match + "]"
	}
}

func (s Style) plain(text string) string {
	if s == StyleHTML {
		return html.EscapeString(text)
	}
	return text
}

// Highlight wraps every case-insensitive occurrence of query in text. For
// StyleHTML the surrounding text is escaped as well.
func Highlight(text, query string, style Style) string {
	q := normalize(query)
	if q == "" {
		return style.plain(text)
	}

	var b strings.Builder
	rest := text
	for {
		start, end, ok := indexFold(rest, q)
		if !ok {
			b.WriteString(style.plain(rest))
			return b.String()
		}
		b.WriteString(style.plain(rest[:start]))
		b.WriteString(style.wrap(rest[start:end]))
		rest = rest[end:]
	}
}

// indexFold finds the first occurrence of the lowercase needle in s ignoring
// case. It returns byte offsets into s, which may differ from offsets into
// strings.ToLower(s) when case mapping changes encoded lengths.
func indexFold(s, needle string) (int, int, bool) {
	for i := 0; i < len(s); {
		if end, ok := hasPrefixFold(s[i:], needle); ok {
			return i, i + end, true
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return 0, 0, false
}

func hasPrefixFold(s, needle string) (int, bool) {
	i := 0
	for _, nr := range needle {
		if i >= len(s) {
			return 0, false
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if !strings.EqualFold(string(r), string(nr)) {
			return 0, false
		}
		i += size
	}
	return i, true
}
