package locate

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/byteowlz/queryflow/internal/dom"
	"github.com/byteowlz/queryflow/internal/schedule"
)

// Inline style properties touched by a highlight. All of them are saved
// before the effect starts and written back when it ends.
var highlightProps = []string{"background-color", "box-shadow", "border-radius", "transform", "transition"}

// Effect configures the highlight animation.
type Effect struct {
	Background   string
	BoxShadow    string
	BorderRadius string
	PulseScale   string

	PulseAt  time.Duration // pulse grows
	SettleAt time.Duration // pulse shrinks back
	Visible  time.Duration // highlight starts fading
	FadeOut  time.Duration // fade duration; transition restored afterwards
}

func DefaultEffect() Effect {
	return Effect{
		Background:   "#fff3cd",
		BoxShadow:    "0 0 0 3px rgba(255, 193, 7, 0.25)",
		BorderRadius: "4px",
		PulseScale:   "scale(1.02)",
		PulseAt:      100 * time.Millisecond,
		SettleAt:     400 * time.Millisecond,
		Visible:      2 * time.Second,
		FadeOut:      600 * time.Millisecond,
	}
}

type step struct {
	at    time.Duration
	apply func(saved map[string]string) map[string]string
}

type activeHighlight struct {
	el    dom.Element
	saved map[string]string
	next  int
	task  *schedule.Task
}

// Highlighter keeps at most one element highlighted at a time.
type Highlighter struct {
	effect Effect
	steps  []step
	logger *slog.Logger
	clock  clock.Clock

	mu     sync.Mutex
	ctx    context.Context
	active *activeHighlight
}

func NewHighlighter(effect Effect, clk clock.Clock, logger *slog.Logger) *Highlighter {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Highlighter{effect: effect, logger: logger, clock: clk}
	h.steps = []step{
		{at: 0, apply: func(map[string]string) map[string]string {
			return map[string]string{
				"transition":       "all 0.3s ease",
				"background-color": effect.Background,
				"box-shadow":       effect.BoxShadow,
				"border-radius":    effect.BorderRadius,
			}
		}},
		{at: effect.PulseAt, apply: func(map[string]string) map[string]string {
			return map[string]string{"transform": effect.PulseScale}
		}},
		{at: effect.SettleAt, apply: func(map[string]string) map[string]string {
			return map[string]string{"transform": "scale(1)"}
		}},
		{at: effect.Visible, apply: func(saved map[string]string) map[string]string {
			return map[string]string{
				"transition":       fadeTransition(effect.FadeOut),
				"background-color": saved["background-color"],
				"box-shadow":       saved["box-shadow"],
				"border-radius":    saved["border-radius"],
				"transform":        saved["transform"],
			}
		}},
		{at: effect.Visible + effect.FadeOut, apply: func(saved map[string]string) map[string]string {
			return map[string]string{"transition": saved["transition"]}
		}},
	}
	return h
}

func fadeTransition(d time.Duration) string {
	return "all " + strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s ease"
}

// Highlight clears any current highlight and starts the effect on el. The
// element's saved inline styles are written back once the effect completes.
func (h *Highlighter) Highlight(ctx context.Context, el dom.Element) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active != nil {
		h.restoreLocked()
	}

	saved, err := el.Style(ctx, highlightProps...)
	if err != nil {
		return err
	}

	h.ctx = context.WithoutCancel(ctx)
	a := &activeHighlight{el: el, saved: saved}
	a.task = schedule.NewTask(h.clock, func() { h.advance(a) })
	h.active = a
	h.runLocked()
	return nil
}

// Clear restores the highlighted element immediately.
func (h *Highlighter) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == nil {
		return
	}
	h.restoreLocked()
}

// Active reports whether an element is currently highlighted.
func (h *Highlighter) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active != nil
}

// advance runs the next step of a, unless a was superseded meanwhile.
func (h *Highlighter) advance(a *activeHighlight) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active != a {
		return
	}
	a.next++
	h.runLocked()
}

// runLocked applies the current step and arms the next one.
func (h *Highlighter) runLocked() {
	a := h.active
	cur := h.steps[a.next]
	if err := a.el.SetStyle(h.ctx, cur.apply(a.saved)); err != nil {
		h.logger.Debug("highlight step failed", "step", a.next, "err", err)
	}

	if a.next+1 >= len(h.steps) {
		h.active = nil
		return
	}
	a.task.Arm(h.steps[a.next+1].at - cur.at)
}

func (h *Highlighter) restoreLocked() {
	a := h.active
	h.active = nil
	a.task.Cancel()
	if err := a.el.SetStyle(h.ctx, a.saved); err != nil {
		h.logger.Debug("failed to restore highlighted element", "err", err)
	}
}
