// Package browser drives the Chrome tab the page agent watches.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chromedp/chromedp"
)

type Options struct {
	// CDPURL connects to a running Chrome (ws://... or http://host:9222)
	// instead of launching one.
	CDPURL       string
	Headless     bool
	ProfileDir   string
	UserAgent    string
	BrowserAgent string
	ExecPath     string
}

// Session owns the allocator and the tab context of one browser.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// Launch starts or connects to Chrome and opens a tab.
func Launch(ctx context.Context, opts Options, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if opts.CDPURL != "" {
		logger.Info("connecting to Chrome", "url", opts.CDPURL)
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, opts.CDPURL)
	} else {
		execOpts, err := execAllocatorOptions(opts)
		if err != nil {
			return nil, err
		}
		logger.Info("launching Chrome", "profile", opts.ProfileDir, "headless", opts.Headless)
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, execOpts...)
	}

	tabCtx, cancel := chromedp.NewContext(allocCtx)
	// the first Run starts the browser and creates the tab
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &Session{ctx: tabCtx, cancel: cancel, allocCancel: allocCancel}, nil
}

func execAllocatorOptions(opts Options) ([]chromedp.ExecAllocatorOption, error) {
	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-sync", true),
		chromedp.WindowSize(1366, 768),
	}

	if opts.ProfileDir != "" {
		dir := expandPath(opts.ProfileDir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create profile directory: %w", err)
		}
		execOpts = append(execOpts, chromedp.UserDataDir(dir))
	}
	if opts.ExecPath != "" {
		execOpts = append(execOpts, chromedp.ExecPath(opts.ExecPath))
	}

	if ua := resolveUserAgent(opts); ua != "" {
		execOpts = append(execOpts, chromedp.UserAgent(ua))
	}

	if opts.Headless {
		execOpts = append(execOpts, chromedp.Headless)
	} else {
		execOpts = append(execOpts, chromedp.Flag("headless", false))
	}
	return execOpts, nil
}

// resolveUserAgent picks the agent override: a custom string wins over a
// browser agent type. No override keeps Chrome's own agent.
func resolveUserAgent(opts Options) string {
	if opts.UserAgent != "" {
		return opts.UserAgent
	}
	if opts.BrowserAgent != "" {
		return NewUserAgentSelector().GetUserAgent(opts.BrowserAgent)
	}
	return ""
}

// Context is the chromedp context of the session's tab.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Close closes the tab and, for a launched browser, the browser itself.
func (s *Session) Close() {
	s.cancel()
	s.allocCancel()
}

func expandPath(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
