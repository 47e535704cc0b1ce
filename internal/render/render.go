// Package render formats search results and exported Message Sets.
package render

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/byteowlz/queryflow/internal/search"
	"github.com/byteowlz/queryflow/internal/store"
)

type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
)

const noMessages = "No messages available"

func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format: %s (available: text, markdown, html, json)", name)
	}
}

type Options struct {
	Format    Format
	LineWidth int
	// Color highlights matches with reverse video in text output.
	Color bool
}

type Renderer struct {
	opts Options
}

func New(opts Options) *Renderer {
	if opts.Format == "" {
		opts.Format = FormatText
	}
	return &Renderer{opts: opts}
}

func (r *Renderer) highlightStyle() search.Style {
	switch r.opts.Format {
	case FormatHTML:
		return search.StyleHTML
	case FormatMarkdown:
		return search.StyleMarkdown
	default:
		if r.opts.Color {
			return search.StyleANSI
		}
		return search.StylePlain
	}
}

type resultsDoc struct {
	Query   string          `json:"query"`
	Count   int             `json:"count"`
	Results []search.Result `json:"results"`
	Source  *store.Source   `json:"source,omitempty"`
}

// Results writes the outcome of a search over total stored messages.
func (r *Renderer) Results(w io.Writer, query string, results []search.Result, total int, src *store.Source) error {
	if r.opts.Format == FormatJSON {
		if results == nil {
			results = []search.Result{}
		}
		return writeJSON(w, resultsDoc{Query: query, Count: len(results), Results: results, Source: src})
	}

	var b strings.Builder
	switch {
	case total == 0:
		r.writeNotice(&b, noMessages)
	case len(results) == 0:
		r.writeNotice(&b, search.NoResults(query))
	default:
		r.writeResults(&b, query, results)
	}
	if src != nil && total > 0 {
		r.writeSource(&b, src)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) writeNotice(b *strings.Builder, text string) {
	switch r.opts.Format {
	case FormatHTML:
		fmt.Fprintf(b, "<p class=\"notice\">%s</p>\n", html.EscapeString(text))
	case FormatMarkdown:
		fmt.Fprintf(b, "_%s_\n", text)
	default:
		b.WriteString(text + "\n")
	}
}

func (r *Renderer) writeResults(b *strings.Builder, query string, results []search.Result) {
	style := r.highlightStyle()
	summary := search.Summary(len(results))

	switch r.opts.Format {
	case FormatHTML:
		fmt.Fprintf(b, "<p class=\"summary\">%s</p>\n<ol class=\"results\">\n", summary)
		for _, res := range results {
			fmt.Fprintf(b, "<li data-index=\"%d\">%s</li>\n", res.Index, search.Highlight(res.Text, query, style))
		}
		b.WriteString("</ol>\n")

	case FormatMarkdown:
		fmt.Fprintf(b, "**%s**\n\n", summary)
		for i, res := range results {
			text := CleanNewlines(search.Highlight(res.Text, query, style))
			fmt.Fprintf(b, "%d. %s\n", i+1, strings.ReplaceAll(text, "\n", "\n   "))
		}

	default:
		b.WriteString(summary + "\n\n")
		for i, res := range results {
			prefix := fmt.Sprintf("%d. ", i+1)
			text := CleanNewlines(search.Highlight(res.Text, query, style))
			b.WriteString(prefix + indent(wrapText(text, r.opts.LineWidth-len(prefix)), len(prefix)) + "\n")
		}
	}
}

func (r *Renderer) writeSource(b *strings.Builder, src *store.Source) {
	label := src.URL
	if src.Title != "" {
		label = src.Title + " (" + src.URL + ")"
	}
	captured := ""
	if !src.CapturedAt.IsZero() {
		captured = ", captured " + src.CapturedAt.Local().Format(time.DateTime)
	}

	switch r.opts.Format {
	case FormatHTML:
		fmt.Fprintf(b, "<p class=\"source\">From %s%s</p>\n", html.EscapeString(label), captured)
	case FormatMarkdown:
		fmt.Fprintf(b, "\n_From %s%s_\n", label, captured)
	default:
		fmt.Fprintf(b, "\nFrom %s%s\n", label, captured)
	}
}

type exportDoc struct {
	Source   *store.Source `json:"source,omitempty"`
	Messages []string      `json:"messages"`
}

// Messages writes the whole Message Set.
func (r *Renderer) Messages(w io.Writer, messages []string, src *store.Source) error {
	if r.opts.Format == FormatJSON {
		if messages == nil {
			messages = []string{}
		}
		return writeJSON(w, exportDoc{Source: src, Messages: messages})
	}

	var b strings.Builder
	if len(messages) == 0 {
		r.writeNotice(&b, noMessages)
		_, err := io.WriteString(w, b.String())
		return err
	}

	switch r.opts.Format {
	case FormatHTML:
		if src != nil && src.Title != "" {
			fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(src.Title))
		}
		b.WriteString("<ol class=\"messages\">\n")
		for _, m := range messages {
			fmt.Fprintf(&b, "<li>%s</li>\n", html.EscapeString(m))
		}
		b.WriteString("</ol>\n")

	case FormatMarkdown:
		if src != nil && src.Title != "" {
			fmt.Fprintf(&b, "# %s\n\n", src.Title)
		}
		if src != nil && src.URL != "" {
			fmt.Fprintf(&b, "**Source:** %s\n\n", src.URL)
		}
		for _, m := range messages {
			fmt.Fprintf(&b, "%s\n\n---\n\n", CleanNewlines(m))
		}

	default:
		for i, m := range messages {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(wrapText(CleanNewlines(m), r.opts.LineWidth) + "\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func indent(text string, n int) string {
	return strings.ReplaceAll(text, "\n", "\n"+strings.Repeat(" ", n))
}

// wrapText wraps paragraphs to lineWidth visible characters. Terminal escape
// sequences do not count towards the width.
func wrapText(text string, lineWidth int) string {
	if lineWidth <= 0 {
		return text
	}

	var result strings.Builder
	paragraphs := strings.Split(text, "\n\n")

	for i, paragraph := range paragraphs {
		if i > 0 {
			result.WriteString("\n\n")
		}

		words := strings.Fields(paragraph)
		if len(words) == 0 {
			continue
		}

		currentLine := words[0]
		currentWidth := visibleWidth(words[0])
		for _, word := range words[1:] {
			w := visibleWidth(word)
			if currentWidth+1+w <= lineWidth {
				currentLine += " " + word
				currentWidth += 1 + w
			} else {
				result.WriteString(currentLine + "\n")
				currentLine = word
				currentWidth = w
			}
		}
		result.WriteString(currentLine)
	}

	return result.String()
}

func visibleWidth(s string) int {
	n := 0
	for i := 0; i < len(s); {
		if s[i] == '\x1b' {
			// skip CSI sequences such as \x1b[7m
			j := i + 1
			if j < len(s) && s[j] == '[' {
				j++
				for j < len(s) && (s[j] < '@' || s[j] > '~') {
					j++
				}
				i = j + 1
				continue
			}
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		n++
	}
	return n
}

// CleanNewlines joins lines that break a sentence and keeps paragraph breaks.
func CleanNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	paragraphs := strings.Split(text, "\n\n")

	var cleanedParagraphs []string
	for _, paragraph := range paragraphs {
		lines := strings.Split(paragraph, "\n")
		var cleanedLines []string

		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			if len(cleanedLines) > 0 {
				prevLine := cleanedLines[len(cleanedLines)-1]

				endsWithPunctuation := strings.HasSuffix(prevLine, ".") ||
					strings.HasSuffix(prevLine, "!") ||
					strings.HasSuffix(prevLine, "?") ||
					strings.HasSuffix(prevLine, ":") ||
					strings.HasSuffix(prevLine, ";")

				startsNewSentence := line[0] >= 'A' && line[0] <= 'Z' ||
					line[0] >= '0' && line[0] <= '9' ||
					strings.HasPrefix(line, "- ") ||
					strings.HasPrefix(line, "* ") ||
					strings.HasPrefix(line, "• ")

				if !endsWithPunctuation && !startsNewSentence {
					cleanedLines[len(cleanedLines)-1] = prevLine + " " + line
					continue
				}
			}

			cleanedLines = append(cleanedLines, line)
		}

		if len(cleanedLines) > 0 {
			cleanedParagraphs = append(cleanedParagraphs, strings.Join(cleanedLines, "\n"))
		}
	}

	return strings.Join(cleanedParagraphs, "\n\n")
}
