package locate

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byteowlz/queryflow/internal/bus"
	"github.com/byteowlz/queryflow/internal/dom"
)

const helloPage = `<html><body>
<div data-message-id="1">Hello world</div>
<div data-message-id="2" style="background-color: red; transform: rotate(1deg);">  Hello </div>
<div data-message-id="3">Goodbye</div>
</body></html>`

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		texts   []string
		target  string
		want    int
		wantErr error
	}{
		{"exact beats earlier partial", []string{"Hello world", "Hello", "Goodbye"}, "Hello", 1, nil},
		{"exact after trimming both sides", []string{"a", "  Hello \n"}, " Hello", 1, nil},
		{"first partial in document order", []string{"say Hello", "Hello world"}, "Hello", 0, nil},
		{"case sensitive", []string{"hello"}, "Hello", -1, ErrNotFound},
		{"no match", []string{"Goodbye"}, "Hello", -1, ErrNotFound},
		{"empty scan", nil, "Hello", -1, ErrNoMessages},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(tt.texts, tt.target)
			assert.Equal(t, tt.want, got)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func newTestService(t *testing.T, html string) (*Service, *dom.StaticDocument, *clock.Mock) {
	t.Helper()
	doc, err := dom.NewStaticDocumentFromString(html, dom.DefaultMarker())
	require.NoError(t, err)
	clk := clock.NewMock()
	svc := NewService(doc, Options{
		Clock:  clk,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return svc, doc, clk
}

// waitStyle waits until the style attribute of sel satisfies cond, then lets
// the highlighter finish arming its next step.
func waitStyle(t *testing.T, svc *Service, doc *dom.StaticDocument, sel string, cond func(string) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		style, _ := doc.StyleAttr(sel)
		return cond(style)
	}, time.Second, 5*time.Millisecond)
	svc.highlighter.Active()
}

func contains(sub string) func(string) bool {
	return func(s string) bool { return strings.Contains(s, sub) }
}

func TestService_LocatePrefersExactMatch(t *testing.T) {
	svc, doc, _ := newTestService(t, helloPage)

	res := svc.Locate(context.Background(), "Hello")
	require.True(t, res.Success, "%v", res.Err)
	assert.Equal(t, 1, res.Index)
	assert.Equal(t, "Hello", res.Matched)

	scrolled, ok := doc.LastScrolled()
	require.True(t, ok)
	assert.Equal(t, "2", scrolled)
}

func TestService_LocatePartial(t *testing.T) {
	svc, doc, _ := newTestService(t, helloPage)

	res := svc.Locate(context.Background(), "Good")
	require.True(t, res.Success)
	assert.Equal(t, "Goodbye", res.Matched)
	scrolled, _ := doc.LastScrolled()
	assert.Equal(t, "3", scrolled)
}

func TestService_LocateFailures(t *testing.T) {
	svc, doc, _ := newTestService(t, helloPage)

	res := svc.Locate(context.Background(), "absent")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrNotFound)
	assert.Equal(t, bus.Response{Success: false, Error: "message not found on current page"}, res.Response())
	_, scrolled := doc.LastScrolled()
	assert.False(t, scrolled)

	empty, _, _ := newTestService(t, `<html><body><p>nothing</p></body></html>`)
	res = empty.Locate(context.Background(), "Hello")
	assert.ErrorIs(t, res.Err, ErrNoMessages)
	assert.Equal(t, "no messages found on page", res.Response().Error)
}

func TestService_LocateRescansLiveDocument(t *testing.T) {
	svc, doc, _ := newTestService(t, helloPage)

	doc.AppendHTML("body", `<div data-message-id="4">Streamed later</div>`)
	res := svc.Locate(context.Background(), "Streamed later")
	require.True(t, res.Success)
	assert.Equal(t, 3, res.Index)
}

func TestHighlight_TimelineRestoresOriginalStyle(t *testing.T) {
	svc, doc, clk := newTestService(t, helloPage)
	const sel = `div[data-message-id="2"]`
	original, _ := doc.StyleAttr(sel)

	res := svc.Locate(context.Background(), "Hello")
	require.True(t, res.Success)

	style, _ := doc.StyleAttr(sel)
	assert.Contains(t, style, "background-color: #fff3cd;")
	assert.Contains(t, style, "box-shadow: 0 0 0 3px rgba(255, 193, 7, 0.25);")
	assert.Contains(t, style, "border-radius: 4px;")
	assert.Contains(t, style, "transition: all 0.3s ease;")
	assert.Contains(t, style, "transform: rotate(1deg);")
	assert.True(t, svc.highlighter.Active())

	clk.Add(100 * time.Millisecond)
	waitStyle(t, svc, doc, sel, contains("transform: scale(1.02);"))

	clk.Add(300 * time.Millisecond)
	waitStyle(t, svc, doc, sel, contains("transform: scale(1);"))

	clk.Add(1600 * time.Millisecond)
	waitStyle(t, svc, doc, sel, contains("transition: all 0.6s ease;"))
	style, _ = doc.StyleAttr(sel)
	assert.Contains(t, style, "background-color: red;")
	assert.Contains(t, style, "transform: rotate(1deg);")
	assert.NotContains(t, style, "box-shadow")
	assert.NotContains(t, style, "border-radius")

	clk.Add(600 * time.Millisecond)
	waitStyle(t, svc, doc, sel, func(s string) bool { return !strings.Contains(s, "transition") })
	style, _ = doc.StyleAttr(sel)
	assert.Equal(t, original, style)
	assert.False(t, svc.highlighter.Active())
}

func TestHighlight_NewHighlightRestoresPrevious(t *testing.T) {
	svc, doc, clk := newTestService(t, helloPage)
	ctx := context.Background()

	require.True(t, svc.Locate(ctx, "Hello").Success)
	clk.Add(100 * time.Millisecond)
	waitStyle(t, svc, doc, `div[data-message-id="2"]`, contains("scale(1.02)"))

	require.True(t, svc.Locate(ctx, "Goodbye").Success)

	first, _ := doc.StyleAttr(`div[data-message-id="2"]`)
	assert.Equal(t, "background-color: red; transform: rotate(1deg);", first)
	second, _ := doc.StyleAttr(`div[data-message-id="3"]`)
	assert.Contains(t, second, "background-color: #fff3cd;")

	// the superseded timeline must not touch the first element again
	clk.Add(100 * time.Millisecond)
	waitStyle(t, svc, doc, `div[data-message-id="3"]`, contains("scale(1.02)"))
	clk.Add(300 * time.Millisecond)
	waitStyle(t, svc, doc, `div[data-message-id="3"]`, contains("scale(1);"))
	first, _ = doc.StyleAttr(`div[data-message-id="2"]`)
	assert.Equal(t, "background-color: red; transform: rotate(1deg);", first)
}

func TestHighlight_Clear(t *testing.T) {
	svc, doc, _ := newTestService(t, helloPage)

	require.True(t, svc.Locate(context.Background(), "Goodbye").Success)
	svc.Close()

	_, ok := doc.StyleAttr(`div[data-message-id="3"]`)
	assert.False(t, ok, "style attribute is removed when nothing was set before")
	assert.False(t, svc.highlighter.Active())
}

func TestFadeTransition(t *testing.T) {
	assert.Equal(t, "all 0.6s ease", fadeTransition(600*time.Millisecond))
	assert.Equal(t, "all 1s ease", fadeTransition(time.Second))
	assert.Equal(t, "all 1.25s ease", fadeTransition(1250*time.Millisecond))
}

func TestHandler(t *testing.T) {
	svc, _, _ := newTestService(t, helloPage)
	hub := bus.NewHub()
	hub.Register(bus.TabInfo{ID: "tab-1"}, svc.Handler())
	ctx := context.Background()

	resp, err := hub.Call(ctx, "tab-1", bus.Request{Action: bus.ActionScrollToMessage, Message: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, bus.Response{Success: true}, resp)

	resp, err = hub.Call(ctx, "tab-1", bus.Request{Action: bus.ActionScrollToMessage, Message: "absent"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "message not found on current page", resp.Error)

	_, err = hub.Call(ctx, "tab-1", bus.Request{Action: "somethingElse", Message: "Hello"})
	assert.ErrorIs(t, err, bus.ErrPortClosed)
}
