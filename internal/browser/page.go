package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/byteowlz/queryflow/internal/bus"
	"github.com/byteowlz/queryflow/internal/dom"
)

// ErrDetached reports an element that is no longer part of the page.
var ErrDetached = errors.New("element is no longer attached to the page")

type EventKind int

const (
	// EventReady fires once a document became interactive and is observed.
	EventReady EventKind = iota
	// EventUnload fires when the document is about to be replaced.
	EventUnload
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventUnload:
		return "unload"
	default:
		return "unknown"
	}
}

// Event is a document lifecycle change in the tab.
type Event struct {
	Kind  EventKind
	URL   string
	Title string
}

// Page is a Chrome tab driven over the DevTools protocol. It implements
// dom.Document and dom.Watcher for whatever document the tab currently shows.
type Page struct {
	ctx    context.Context
	marker dom.Marker
	logger *slog.Logger

	reports chan report
	events  chan Event

	mu       sync.Mutex
	watchers map[uint64]func(dom.MutationBatch)
	nextID   uint64
}

var (
	_ dom.Document = (*Page)(nil)
	_ dom.Watcher  = (*Page)(nil)
)

// Attach installs the mutation observer in the tab behind ctx, a chromedp
// context, and starts relaying its reports. The observer also runs in every
// document loaded later.
func Attach(ctx context.Context, marker dom.Marker, logger *slog.Logger) (*Page, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Page{
		ctx:      ctx,
		marker:   marker,
		logger:   logger.With("component", "page"),
		reports:  make(chan report, 256),
		events:   make(chan Event, 16),
		watchers: make(map[uint64]func(dom.MutationBatch)),
	}

	chromedp.ListenTarget(ctx, func(ev interface{}) {
		called, ok := ev.(*runtime.EventBindingCalled)
		if !ok || called.Name != bindingName {
			return
		}
		r, err := parseReport(called.Payload)
		if err != nil {
			p.logger.Debug("dropping observer report", "err", err)
			return
		}
		// listeners must not block the CDP event loop
		select {
		case p.reports <- r:
		default:
			p.logger.Warn("observer report queue full, dropping report", "type", r.Type)
		}
	})

	script := observerScript(marker)
	var installed bool
	err := chromedp.Run(ctx,
		runtime.Enable(),
		runtime.AddBinding(bindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}),
		chromedp.Evaluate(script, &installed),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to install page observer: %w", err)
	}

	go p.relay()
	return p, nil
}

// Events delivers document lifecycle changes. The channel closes when the
// tab context ends.
func (p *Page) Events() <-chan Event {
	return p.events
}

func (p *Page) relay() {
	defer close(p.events)
	for {
		select {
		case <-p.ctx.Done():
			return
		case r := <-p.reports:
			switch r.Type {
			case reportMutations:
				p.dispatch(dom.MutationBatch{Added: r.Added})
			case reportReady:
				p.emit(Event{Kind: EventReady, URL: r.URL, Title: r.Title})
			case reportUnload:
				p.emit(Event{Kind: EventUnload, URL: r.URL})
			}
		}
	}
}

func (p *Page) emit(ev Event) {
	p.logger.Debug("document event", "kind", ev.Kind, "url", ev.URL)
	select {
	case p.events <- ev:
	case <-p.ctx.Done():
	}
}

func (p *Page) dispatch(batch dom.MutationBatch) {
	p.mu.Lock()
	fns := make([]func(dom.MutationBatch), 0, len(p.watchers))
	for _, fn := range p.watchers {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(batch)
	}
}

// run executes actions in the tab, bounded by the caller's ctx.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads url in the tab.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// SetCookies installs cookies in the browser before a navigation.
func (p *Page) SetCookies(ctx context.Context, cookies []*network.CookieParam) error {
	if len(cookies) == 0 {
		return nil
	}
	return p.run(ctx, network.SetCookies(cookies))
}

// Info describes the tab for the bus.
func (p *Page) Info(ctx context.Context) (bus.TabInfo, error) {
	var url, title string
	if err := p.run(ctx, chromedp.Location(&url), chromedp.Title(&title)); err != nil {
		return bus.TabInfo{}, fmt.Errorf("failed to read tab info: %w", err)
	}
	return bus.TabInfo{ID: p.TargetID(), URL: url, Title: title, Active: true}, nil
}

// TargetID is the DevTools target identifier of the tab.
func (p *Page) TargetID() string {
	if c := chromedp.FromContext(p.ctx); c != nil && c.Target != nil {
		return string(c.Target.TargetID)
	}
	return ""
}

func (p *Page) Ready(ctx context.Context) error {
	return p.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery))
}

func (p *Page) Markers(ctx context.Context) ([]dom.Element, error) {
	var scanned []scannedElement
	if err := p.run(ctx, chromedp.Evaluate(scanScript(p.marker), &scanned)); err != nil {
		return nil, fmt.Errorf("failed to scan page: %w", err)
	}

	elements := make([]dom.Element, len(scanned))
	for i, s := range scanned {
		elements[i] = &liveElement{page: p, ref: s.Ref, text: s.Text}
	}
	return elements, nil
}

// Watch subscribes fn to mutation batches reported by the observer.
func (p *Page) Watch(ctx context.Context, fn func(dom.MutationBatch)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.watchers[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers, id)
			p.mu.Unlock()
		})
	}, nil
}

// liveElement addresses a marker element through its ref attribute.
type liveElement struct {
	page *Page
	ref  string
	text string
}

func (e *liveElement) Text() string {
	return e.text
}

func (e *liveElement) eval(ctx context.Context, arg any, body string) (elementResult, error) {
	var res elementResult
	if err := e.page.run(ctx, chromedp.Evaluate(elementScript(e.ref, arg, body), &res)); err != nil {
		return res, err
	}
	if !res.OK {
		return res, ErrDetached
	}
	return res, nil
}

func (e *liveElement) ScrollIntoView(ctx context.Context) error {
	_, err := e.eval(ctx, nil, scrollBody)
	return err
}

func (e *liveElement) Style(ctx context.Context, props ...string) (map[string]string, error) {
	res, err := e.eval(ctx, props, getStyleBody)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(props))
	for _, prop := range props {
		values[prop] = res.Values[prop]
	}
	return values, nil
}

func (e *liveElement) SetStyle(ctx context.Context, props map[string]string) error {
	_, err := e.eval(ctx, props, setStyleBody)
	return err
}
