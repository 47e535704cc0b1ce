// Package popup is the caller side of the locate handshake: it resolves the
// active tab, validates it and asks the page agent to jump to a message.
package popup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/byteowlz/queryflow/internal/bus"
)

const (
	DefaultRetries    = 2
	DefaultRetryDelay = time.Second
)

var (
	// ErrInvalidTarget rejects pages a content script can never run on.
	ErrInvalidTarget = errors.New("cannot scroll on this page type")

	ErrNoActiveTab = errors.New("no active tab found")
)

// Schemes of browser-internal, extension-internal and local pages.
var privilegedPrefixes = []string{
	"chrome://",
	"chrome-extension://",
	"moz-extension://",
	"edge://",
	"about:",
	"file://",
}

// ValidateTarget rejects URLs a locate request can never be delivered to.
func ValidateTarget(url string) error {
	u := strings.ToLower(strings.TrimSpace(url))
	if u == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidTarget)
	}
	for _, p := range privilegedPrefixes {
		if strings.HasPrefix(u, p) {
			return fmt.Errorf("%w: %s", ErrInvalidTarget, url)
		}
	}
	return nil
}

type StatusKind string

const (
	StatusLoading  StatusKind = "loading"
	StatusRetrying StatusKind = "retrying"
	StatusSuccess  StatusKind = "success"
	StatusError    StatusKind = "error"
)

// Status is one user-visible banner.
type Status struct {
	Kind StatusKind
	Text string
}

// NotifyFunc receives status banners in the order they occur.
type NotifyFunc func(Status)

// Status texts shown to the user.
const (
	textLoading     = "Locating message..."
	textSuccess     = "Message found and highlighted"
	textNoReceiver  = "Extension not loaded on this page"
	textChannel     = "Communication error with page"
	textInvalidPage = "Cannot scroll on this page type"
	textNoTab       = "No active tab found"
	textExhausted   = "Could not locate message after retries"
)

type Options struct {
	Retries    int
	RetryDelay time.Duration
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Client sends locate requests through a bus.Messenger.
type Client struct {
	messenger  bus.Messenger
	retries    int
	retryDelay time.Duration
	clock      clock.Clock
	logger     *slog.Logger
}

func NewClient(m bus.Messenger, opts Options) *Client {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		messenger:  m,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		clock:      opts.Clock,
		logger:     opts.Logger.With("component", "popup"),
	}
}

// ActiveTab returns the active tab of the focused window.
func (c *Client) ActiveTab(ctx context.Context) (bus.TabInfo, error) {
	tabs, err := c.messenger.Tabs(ctx)
	if err != nil {
		return bus.TabInfo{}, fmt.Errorf("failed to query tabs: %w", err)
	}
	for _, t := range tabs {
		if t.Active {
			return t, nil
		}
	}
	return bus.TabInfo{}, ErrNoActiveTab
}

// LocateError is a failure the page agent reported for a delivered request.
type LocateError struct {
	Reason string
}

func (e *LocateError) Error() string {
	return e.Reason
}

// GoTo asks the active tab to scroll to message. notify receives a loading
// banner followed by exactly one success or error banner.
func (c *Client) GoTo(ctx context.Context, message string, notify NotifyFunc) error {
	notify = orNop(notify)
	notify(Status{Kind: StatusLoading, Text: textLoading})

	err := c.attempt(ctx, message)
	if err != nil {
		notify(Status{Kind: StatusError, Text: statusText(err)})
		return err
	}
	notify(Status{Kind: StatusSuccess, Text: textSuccess})
	return nil
}

// GoToWithRetry behaves like GoTo but re-attempts failed deliveries and
// failed lookups. Each re-attempt is announced with a retrying banner; once
// retries run out a single error banner follows. Invalid targets and a
// missing active tab are not retried.
func (c *Client) GoToWithRetry(ctx context.Context, message string, notify NotifyFunc) error {
	notify = orNop(notify)
	notify(Status{Kind: StatusLoading, Text: textLoading})

	var err error
	for attempt := 0; ; attempt++ {
		err = c.attempt(ctx, message)
		if err == nil {
			notify(Status{Kind: StatusSuccess, Text: textSuccess})
			return nil
		}
		if !retryable(err) {
			notify(Status{Kind: StatusError, Text: statusText(err)})
			return err
		}
		if attempt >= c.retries {
			break
		}

		c.logger.Debug("locate attempt failed", "attempt", attempt+1, "err", err)
		notify(Status{
			Kind: StatusRetrying,
			Text: fmt.Sprintf("Retrying... (%d/%d)", attempt+1, c.retries),
		})
		if werr := c.wait(ctx); werr != nil {
			notify(Status{Kind: StatusError, Text: statusText(werr)})
			return werr
		}
	}

	notify(Status{Kind: StatusError, Text: textExhausted})
	return fmt.Errorf("gave up after %d attempts: %w", c.retries+1, err)
}

func (c *Client) attempt(ctx context.Context, message string) error {
	tab, err := c.ActiveTab(ctx)
	if err != nil {
		return err
	}
	if err := ValidateTarget(tab.URL); err != nil {
		return err
	}

	resp, err := bus.Call(ctx, c.messenger, tab.ID, bus.Request{
		Action:  bus.ActionScrollToMessage,
		Message: message,
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		return &LocateError{Reason: resp.Error}
	}
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	timer := c.clock.Timer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func retryable(err error) bool {
	if errors.Is(err, ErrInvalidTarget) || errors.Is(err, ErrNoActiveTab) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// statusText maps err to the banner shown to the user.
func statusText(err error) string {
	var le *LocateError
	switch {
	case errors.As(err, &le):
		if le.Reason == "" {
			return "Failed to locate message"
		}
		return le.Reason
	case errors.Is(err, ErrInvalidTarget):
		return textInvalidPage
	case errors.Is(err, ErrNoActiveTab):
		return textNoTab
	case errors.Is(err, bus.ErrNoReceiver):
		return textNoReceiver
	default:
		return textChannel
	}
}

func orNop(fn NotifyFunc) NotifyFunc {
	if fn == nil {
		return func(Status) {}
	}
	return fn
}
