package dom

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// StaticDocument is a Document over parsed HTML. It backs offline scans of
// saved pages and stands in for a live page in tests.
type StaticDocument struct {
	mu       sync.Mutex
	doc      *goquery.Document
	marker   Marker
	scrolled *goquery.Selection
}

func NewStaticDocument(r io.Reader, marker Marker) (*StaticDocument, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &StaticDocument{doc: doc, marker: marker}, nil
}

func NewStaticDocumentFromString(html string, marker Marker) (*StaticDocument, error) {
	return NewStaticDocument(strings.NewReader(html), marker)
}

// Ready returns immediately; parsed HTML is always complete.
func (d *StaticDocument) Ready(ctx context.Context) error {
	return ctx.Err()
}

func (d *StaticDocument) Markers(ctx context.Context) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var elements []Element
	d.doc.Find(d.marker.Selector()).Each(func(i int, s *goquery.Selection) {
		elements = append(elements, &staticElement{doc: d, sel: s, text: s.Text()})
	})
	return elements, nil
}

// AppendHTML appends markup to every node matching selector.
func (d *StaticDocument) AppendHTML(selector, html string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doc.Find(selector).AppendHtml(html)
}

// Remove deletes every node matching selector.
func (d *StaticDocument) Remove(selector string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doc.Find(selector).Remove()
}

// Title returns the document's <title> text.
func (d *StaticDocument) Title() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// StyleAttr returns the raw style attribute of the first node matching selector.
func (d *StaticDocument) StyleAttr(selector string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Find(selector).First().Attr("style")
}

// LastScrolled returns the marker attribute of the element most recently
// scrolled into view.
func (d *StaticDocument) LastScrolled() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.scrolled == nil {
		return "", false
	}
	return d.scrolled.Attr(d.marker.Attribute)
}

type staticElement struct {
	doc  *StaticDocument
	sel  *goquery.Selection
	text string
}

func (e *staticElement) Text() string {
	return e.text
}

func (e *staticElement) ScrollIntoView(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.doc.mu.Lock()
	e.doc.scrolled = e.sel
	e.doc.mu.Unlock()
	return nil
}

func (e *staticElement) Style(ctx context.Context, props ...string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	style := parseInlineStyle(e.sel.AttrOr("style", ""))
	values := make(map[string]string, len(props))
	for _, p := range props {
		values[p] = style.get(p)
	}
	return values, nil
}

func (e *staticElement) SetStyle(ctx context.Context, props map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	style := parseInlineStyle(e.sel.AttrOr("style", ""))
	for _, p := range slices.Sorted(maps.Keys(props)) {
		style.set(p, props[p])
	}
	if serialized := style.String(); serialized != "" {
		e.sel.SetAttr("style", serialized)
	} else {
		e.sel.RemoveAttr("style")
	}
	return nil
}
