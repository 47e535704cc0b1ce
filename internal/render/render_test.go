package render

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byteowlz/queryflow/internal/search"
	"github.com/byteowlz/queryflow/internal/store"
)

var messages = []string{"Hello", "Hello world", "Goodbye"}

func render(t *testing.T, opts Options, query string) string {
	t.Helper()
	var buf bytes.Buffer
	results := search.Search(messages, query)
	require.NoError(t, New(opts).Results(&buf, query, results, len(messages), nil))
	return buf.String()
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "MD": FormatMarkdown, "html": FormatHTML, "json": FormatJSON} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("pdf")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestResults_Text(t *testing.T) {
	got := render(t, Options{Format: FormatText}, "hello")
	assert.Equal(t, "Found 2 results\n\n1. [Hello]\n2. [Hello] world\n", got)
}

func TestResults_TextColor(t *testing.T) {
	got := render(t, Options{Format: FormatText, Color: true}, "bye")
	assert.Equal(t, "Found 1 result\n\n1. Good\x1b[7mbye\x1b[27m\n", got)
}

func TestResults_HTML(t *testing.T) {
	got := render(t, Options{Format: FormatHTML}, "hello")
	assert.Equal(t, `<p class="summary">Found 2 results</p>
<ol class="results">
<li data-index="0"><mark>Hello</mark></li>
<li data-index="1"><mark>Hello</mark> world</li>
</ol>
`, got)
}

func TestResults_Markdown(t *testing.T) {
	got := render(t, Options{Format: FormatMarkdown}, "world")
	assert.Equal(t, "**Found 1 result**\n\n1. Hello **world**\n", got)
}

func TestResults_JSON(t *testing.T) {
	got := render(t, Options{Format: FormatJSON}, "absent")

	var doc struct {
		Query   string          `json:"query"`
		Count   int             `json:"count"`
		Results []search.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(got), &doc))
	assert.Equal(t, "absent", doc.Query)
	assert.Equal(t, 0, doc.Count)
	assert.NotNil(t, doc.Results)
}

func TestResults_EmptyStates(t *testing.T) {
	var buf bytes.Buffer
	r := New(Options{})

	require.NoError(t, r.Results(&buf, "hello", nil, 0, nil))
	assert.Equal(t, "No messages available\n", buf.String())

	buf.Reset()
	require.NoError(t, r.Results(&buf, " xyz ", nil, 3, nil))
	assert.Equal(t, "No results found for \"xyz\"\n", buf.String())
}

func TestResults_Source(t *testing.T) {
	var buf bytes.Buffer
	src := &store.Source{URL: "https://chat.example.com/c/1", Title: "Chat"}
	results := search.Search(messages, "good")

	require.NoError(t, New(Options{}).Results(&buf, "good", results, len(messages), src))
	assert.Contains(t, buf.String(), "From Chat (https://chat.example.com/c/1)")
}

func TestMessages(t *testing.T) {
	src := &store.Source{URL: "https://chat.example.com/c/1", Title: "Chat & co", CapturedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}

	var buf bytes.Buffer
	require.NoError(t, New(Options{Format: FormatText}).Messages(&buf, messages, src))
	assert.Equal(t, "Hello\n\nHello world\n\nGoodbye\n", buf.String())

	buf.Reset()
	require.NoError(t, New(Options{Format: FormatHTML}).Messages(&buf, []string{"a < b"}, src))
	assert.Equal(t, "<h1>Chat &amp; co</h1>\n<ol class=\"messages\">\n<li>a &lt; b</li>\n</ol>\n", buf.String())

	buf.Reset()
	require.NoError(t, New(Options{Format: FormatJSON}).Messages(&buf, nil, nil))
	assert.JSONEq(t, `{"messages": []}`, buf.String())

	buf.Reset()
	require.NoError(t, New(Options{Format: FormatMarkdown}).Messages(&buf, nil, nil))
	assert.Equal(t, "_No messages available_\n", buf.String())
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, "one two\nthree", wrapText("one two three", 8))
	assert.Equal(t, "one two three", wrapText("one two three", 0))
	// escape sequences are invisible
	assert.Equal(t, "\x1b[7mone\x1b[27m two", wrapText("\x1b[7mone\x1b[27m two", 7))
}

func TestResults_TextWrapsWithHangingIndent(t *testing.T) {
	got := render(t, Options{Format: FormatText, LineWidth: 14}, "hello")
	assert.Equal(t, "Found 2 results\n\n1. [Hello]\n2. [Hello]\n   world\n", got)
}

func TestCleanNewlines(t *testing.T) {
	assert.Equal(t, "a broken line\n\nNext paragraph", CleanNewlines("a broken\nline\r\n\r\nNext paragraph"))
	assert.Equal(t, "Done.\nNew sentence", CleanNewlines("Done.\nNew sentence"))
}
