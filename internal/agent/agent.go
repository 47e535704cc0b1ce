// Package agent runs the page side of queryflow for one tab: a capture
// pipeline per loaded document and the locate service on the bus.
package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/byteowlz/queryflow/internal/browser"
	"github.com/byteowlz/queryflow/internal/bus"
	"github.com/byteowlz/queryflow/internal/capture"
	"github.com/byteowlz/queryflow/internal/dom"
	"github.com/byteowlz/queryflow/internal/locate"
	"github.com/byteowlz/queryflow/internal/store"
)

// Tab is the page the agent drives. *browser.Page implements it.
type Tab interface {
	dom.Document
	dom.Watcher
	Events() <-chan browser.Event
	Info(ctx context.Context) (bus.TabInfo, error)
}

var _ Tab = (*browser.Page)(nil)

type Options struct {
	Key      string
	Debounce time.Duration
	Effect   locate.Effect
	Clock    clock.Clock
	Logger   *slog.Logger
}

type Agent struct {
	tab    Tab
	store  store.Store
	hub    *bus.Hub
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	tabID    string
	pipeline *capture.Pipeline
}

func New(tab Tab, st store.Store, hub *bus.Hub, opts Options) *Agent {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Agent{
		tab:    tab,
		store:  st,
		hub:    hub,
		opts:   opts,
		logger: opts.Logger.With("component", "agent"),
	}
}

// Run registers the tab on the hub, captures the current document and then
// follows document loads until ctx ends or the tab goes away.
func (a *Agent) Run(ctx context.Context) error {
	info, err := a.tab.Info(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.tabID = info.ID
	a.mu.Unlock()

	service := locate.NewService(a.tab, locate.Options{
		Effect: a.opts.Effect,
		Clock:  a.opts.Clock,
		Logger: a.opts.Logger,
	})
	unregister := a.hub.Register(info, service.Handler())
	defer func() {
		unregister()
		service.Close()
	}()
	a.logger.Info("page agent attached", "tab", info.ID, "url", info.URL)

	a.startPipeline(ctx)
	defer a.stopPipeline()

	events := a.tab.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				a.logger.Info("tab closed")
				return nil
			}
			a.handle(ctx, ev)
		}
	}
}

func (a *Agent) handle(ctx context.Context, ev browser.Event) {
	a.logger.Debug("page event", "kind", ev.Kind, "url", ev.URL)
	switch ev.Kind {
	case browser.EventReady:
		a.hub.Update(bus.TabInfo{ID: a.TabID(), URL: ev.URL, Title: ev.Title, Active: true})
		a.startPipeline(ctx)
	case browser.EventUnload:
		a.stopPipeline()
	}
}

// TabID is the hub ID the locate handler is registered under.
func (a *Agent) TabID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tabID
}

// Pipeline returns the capture pipeline of the current document, if any.
func (a *Agent) Pipeline() *capture.Pipeline {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pipeline
}

func (a *Agent) startPipeline(ctx context.Context) {
	a.stopPipeline()

	p := capture.New(a.tab, a.tab, a.store, capture.Options{
		Key:      a.opts.Key,
		Debounce: a.opts.Debounce,
		Clock:    a.opts.Clock,
		Logger:   a.opts.Logger,
		Source:   a.describe,
	})
	if err := p.Start(ctx); err != nil {
		a.logger.Warn("could not start capture", "err", err)
		return
	}

	a.mu.Lock()
	a.pipeline = p
	a.mu.Unlock()
}

func (a *Agent) stopPipeline() {
	a.mu.Lock()
	p := a.pipeline
	a.pipeline = nil
	a.mu.Unlock()
	if p != nil {
		p.Stop()
	}
}

func (a *Agent) describe(ctx context.Context) (store.Source, error) {
	info, err := a.tab.Info(ctx)
	if err != nil {
		return store.Source{}, err
	}
	return store.Source{URL: info.URL, Title: info.Title}, nil
}
