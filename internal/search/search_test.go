package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var stored = []string{"Hello", "Hello world", "Goodbye", "say HELLO again"}

func TestSearch(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []Result
	}{
		{"case insensitive keeps order", "hello", []Result{
			{0, "Hello"}, {1, "Hello world"}, {3, "say HELLO again"},
		}},
		{"query is trimmed", "  goodbye ", []Result{{2, "Goodbye"}}},
		{"blank query", "   ", nil},
		{"no match", "absent", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Search(stored, tt.query))
		})
	}
}

func TestHighlight(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		query string
		style Style
		want  string
	}{
		{"html", "Hello world", "hello", StyleHTML, "<mark>Hello</mark> world"},
		{"every occurrence", "lo and LO", "lo", StylePlain, "[lo] and [LO]"},
		{"html escapes around matches", "a <b> & c", "& c", StyleHTML, "a &lt;b&gt; <mark>&amp; c</mark>"},
		{"markdown", "Hello world", "WORLD", StyleMarkdown, "Hello **world**"},
		{"ansi", "Hello", "ell", StyleANSI, "H\x1b[7mell\x1b[27mo"},
		{"blank query escapes only", "<i>", "", StyleHTML, "&lt;i&gt;"},
		{"multibyte", "Größe GRÖSSE", "größe", StylePlain, "[Größe] GRÖSSE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Highlight(tt.text, tt.query, tt.style))
		})
	}
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "Found 1 result", Summary(1))
	assert.Equal(t, "Found 2 results", Summary(2))
	assert.Equal(t, "Found 0 results", Summary(0))
	assert.Equal(t, `No results found for "xyz"`, NoResults(" xyz "))
}

func TestParseStyle(t *testing.T) {
	assert.Equal(t, StyleHTML, ParseStyle("HTML"))
	assert.Equal(t, StyleMarkdown, ParseStyle("md"))
	assert.Equal(t, StyleANSI, ParseStyle("color"))
	assert.Equal(t, StylePlain, ParseStyle("text"))
}
