package dom

import (
	"context"
	"fmt"
)

// Default marker convention: chat messages are divs carrying a message id.
const (
	DefaultMarkerTag       = "div"
	DefaultMarkerAttribute = "data-message-id"
)

// Marker identifies message elements on a page.
type Marker struct {
	Tag       string
	Attribute string
}

func DefaultMarker() Marker {
	return Marker{Tag: DefaultMarkerTag, Attribute: DefaultMarkerAttribute}
}

// Selector returns the CSS selector matching marker elements, e.g. div[data-message-id].
func (m Marker) Selector() string {
	tag := m.Tag
	if tag == "" {
		tag = DefaultMarkerTag
	}
	attr := m.Attribute
	if attr == "" {
		attr = DefaultMarkerAttribute
	}
	return fmt.Sprintf("%s[%s]", tag, attr)
}

// Element is one marker element as seen by a scan.
type Element interface {
	// Text returns the rendered text captured when the element was scanned.
	Text() string

	// ScrollIntoView brings the element to the vertical center of the viewport.
	ScrollIntoView(ctx context.Context) error

	// Style reads inline style properties. Unset properties map to "".
	Style(ctx context.Context, props ...string) (map[string]string, error)

	// SetStyle writes inline style properties. An empty value removes the property.
	SetStyle(ctx context.Context, props map[string]string) error
}

// Document is a page whose marker elements can be scanned.
type Document interface {
	// Ready blocks until the document is interactive.
	Ready(ctx context.Context) error

	// Markers performs a fresh scan and returns marker elements in document order.
	Markers(ctx context.Context) ([]Element, error)
}

// AddedNode summarizes one node inserted by a DOM mutation.
type AddedNode struct {
	Element  bool `json:"element"`
	Matches  bool `json:"matches"`
	Contains bool `json:"contains"`
}

// MutationBatch is one delivery of structural mutations.
type MutationBatch struct {
	Added []AddedNode `json:"added"`
}

// Relevant reports whether any added element is a marker or contains one.
func (b MutationBatch) Relevant() bool {
	for _, n := range b.Added {
		if n.Element && (n.Matches || n.Contains) {
			return true
		}
	}
	return false
}

// Watcher delivers mutation batches for a document subtree until stopped.
type Watcher interface {
	Watch(ctx context.Context, fn func(MutationBatch)) (stop func(), err error)
}
