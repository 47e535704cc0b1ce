// Package capture keeps the stored Message Set in sync with the message
// elements present in a page.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/byteowlz/queryflow/internal/dom"
	"github.com/byteowlz/queryflow/internal/schedule"
	"github.com/byteowlz/queryflow/internal/store"
)

// DefaultDebounce is the quiet window a burst of mutations must settle for
// before the page is re-extracted.
const DefaultDebounce = 500 * time.Millisecond

type State string

const (
	StateIdle    State = "idle"
	StatePending State = "pending-extraction"
)

var (
	// ErrExtraction reports that the page could not be scanned; the stored set is left untouched.
	ErrExtraction = errors.New("extraction failed")

	ErrAlreadyStarted = errors.New("pipeline already started")
)

// SourceFunc describes the page being captured. Its result is stored beside
// every Message Set written.
type SourceFunc func(ctx context.Context) (store.Source, error)

type Options struct {
	Key      string
	Debounce time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
	Source   SourceFunc
}

// Pipeline extracts message texts from a document and writes them to the
// store, re-extracting after relevant mutations once the page is quiet.
type Pipeline struct {
	doc      dom.Document
	watcher  dom.Watcher
	store    store.Store
	key      string
	debounce time.Duration
	clock    clock.Clock
	logger   *slog.Logger
	source   SourceFunc

	task *schedule.Task

	mu        sync.Mutex
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	stopWatch func()
}

func New(doc dom.Document, watcher dom.Watcher, st store.Store, opts Options) *Pipeline {
	if opts.Key == "" {
		opts.Key = store.DefaultKey
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &Pipeline{
		doc:      doc,
		watcher:  watcher,
		store:    st,
		key:      opts.Key,
		debounce: opts.Debounce,
		clock:    opts.Clock,
		logger:   opts.Logger.With("component", "capture"),
		source:   opts.Source,
	}
	p.task = schedule.NewTask(opts.Clock, p.runScheduled)
	return p
}

// Extract scans the document and replaces the stored Message Set with the
// trimmed, non-empty marker texts in document order.
func (p *Pipeline) Extract(ctx context.Context) ([]string, error) {
	elements, err := p.doc.Markers(ctx)
	if err != nil {
		p.logger.Error("error extracting messages", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	messages := make([]string, 0, len(elements))
	for _, el := range elements {
		if text := strings.TrimSpace(el.Text()); text != "" {
			messages = append(messages, text)
		}
	}
	p.logger.Debug("extracted messages", "count", len(messages))

	if p.store == nil {
		p.logger.Warn("storage not available, messages not saved")
		return messages, store.ErrUnavailable
	}
	if err := p.store.Set(ctx, p.key, messages); err != nil {
		p.logger.Error("error saving messages", "err", err)
		return messages, err
	}
	p.logger.Debug("messages saved to storage", "key", p.key)

	p.saveSource(ctx, len(messages))
	return messages, nil
}

func (p *Pipeline) saveSource(ctx context.Context, count int) {
	if p.source == nil {
		return
	}
	src, err := p.source(ctx)
	if err != nil {
		p.logger.Debug("could not describe page", "err", err)
		return
	}
	src.CapturedAt = p.clock.Now()
	src.Count = count
	if err := store.SaveSource(ctx, p.store, p.key, src); err != nil {
		p.logger.Debug("could not save source", "err", err)
	}
}

// Start waits for the document to become interactive, runs one extraction
// and then observes the document until Stop is called or ctx ends.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.ctx = runCtx
	p.cancel = cancel
	p.running = true
	p.mu.Unlock()

	if err := p.doc.Ready(runCtx); err != nil {
		p.Stop()
		return fmt.Errorf("document not ready: %w", err)
	}

	// Subscribe before the first scan so nodes added while it runs arm the
	// debounce instead of being missed.
	stop, err := p.watcher.Watch(runCtx, p.onMutations)
	if err != nil {
		p.Stop()
		return fmt.Errorf("failed to observe document: %w", err)
	}

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		stop()
		return nil
	}
	p.stopWatch = stop
	p.mu.Unlock()
	p.logger.Info("observer started")

	p.Extract(runCtx)
	return nil
}

// Stop disconnects the observer and drops any pending extraction.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stop := p.stopWatch
	p.stopWatch = nil
	cancel := p.cancel
	p.mu.Unlock()

	p.task.Cancel()
	if stop != nil {
		stop()
	}
	cancel()
	p.logger.Info("observer disconnected")
}

func (p *Pipeline) State() State {
	if p.task.Pending() {
		return StatePending
	}
	return StateIdle
}

func (p *Pipeline) onMutations(batch dom.MutationBatch) {
	if !batch.Relevant() {
		return
	}
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		return
	}

	p.logger.Debug("relevant DOM changes detected, re-extracting")
	p.task.Arm(p.debounce)
}

func (p *Pipeline) runScheduled() {
	p.mu.Lock()
	ctx := p.ctx
	running := p.running
	p.mu.Unlock()
	if !running || ctx.Err() != nil {
		return
	}
	p.Extract(ctx)
}
