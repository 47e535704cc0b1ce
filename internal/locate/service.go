// Package locate finds a stored message on the live page, scrolls it into
// view and highlights it.
package locate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/benbjohnson/clock"

	"github.com/byteowlz/queryflow/internal/bus"
	"github.com/byteowlz/queryflow/internal/dom"
)

type Options struct {
	Effect Effect
	Clock  clock.Clock
	Logger *slog.Logger
}

// Result is the outcome of one locate request.
type Result struct {
	Success bool
	Matched string
	Index   int
	Err     error
}

// Response converts r into the reply sent back over the bus.
func (r Result) Response() bus.Response {
	if r.Success {
		return bus.Response{Success: true}
	}
	msg := "unknown error"
	if r.Err != nil {
		msg = r.Err.Error()
	}
	return bus.Response{Success: false, Error: msg}
}

type Service struct {
	doc         dom.Document
	highlighter *Highlighter
	logger      *slog.Logger
}

func NewService(doc dom.Document, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Effect == (Effect{}) {
		opts.Effect = DefaultEffect()
	}
	logger := opts.Logger.With("component", "locate")
	return &Service{
		doc:         doc,
		highlighter: NewHighlighter(opts.Effect, opts.Clock, logger),
		logger:      logger,
	}
}

// Locate rescans the page, picks the element matching target, scrolls to it
// and highlights it.
func (s *Service) Locate(ctx context.Context, target string) Result {
	elements, err := s.doc.Markers(ctx)
	if err != nil {
		return Result{Index: -1, Err: fmt.Errorf("failed to scan page: %w", err)}
	}

	texts := make([]string, len(elements))
	for i, el := range elements {
		texts[i] = el.Text()
	}
	idx, err := Match(texts, target)
	if err != nil {
		s.logger.Debug("no match", "target", target, "scanned", len(elements), "err", err)
		return Result{Index: -1, Err: err}
	}

	el := elements[idx]
	if err := el.ScrollIntoView(ctx); err != nil {
		return Result{Index: idx, Err: fmt.Errorf("failed to scroll to message: %w", err)}
	}
	if err := s.highlighter.Highlight(ctx, el); err != nil {
		// the element is already in view
		s.logger.Warn("failed to highlight message", "err", err)
	}

	s.logger.Info("located message", "index", idx, "scanned", len(elements))
	return Result{Success: true, Matched: strings.TrimSpace(texts[idx]), Index: idx}
}

// Close clears any active highlight.
func (s *Service) Close() {
	s.highlighter.Clear()
}

// Handler answers scrollToMessage requests. Other actions are left to other
// handlers.
func (s *Service) Handler() bus.Handler {
	return func(ctx context.Context, req bus.Request, sender bus.Sender, reply bus.ReplyFunc) bool {
		if req.Action != bus.ActionScrollToMessage || req.Message == "" {
			return false
		}
		s.logger.Debug("locate request", "sender", sender.ID)
		reply(s.Locate(ctx, req.Message).Response())
		return true
	}
}
