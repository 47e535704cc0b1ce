package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/byteowlz/queryflow/internal/agent"
	"github.com/byteowlz/queryflow/internal/browser"
	"github.com/byteowlz/queryflow/internal/bus"
	"github.com/byteowlz/queryflow/internal/dom"
	"github.com/byteowlz/queryflow/internal/locate"
)

var (
	watchCDPURL       string
	watchHeadless     bool
	watchListen       string
	watchCookies      string
	watchUserAgent    string
	watchBrowserAgent string
	watchMarkerTag    string
	watchMarkerAttr   string
)

var watchCmd = &cobra.Command{
	Use:   "watch [url]",
	Short: "Attach to a chat tab, capture its messages and serve locate requests",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.StringVar(&watchCDPURL, "cdp-url", "", "connect to a running Chrome (e.g. http://127.0.0.1:9222)")
	f.BoolVar(&watchHeadless, "headless", false, "run Chrome headless")
	f.StringVar(&watchListen, "listen", "", "address to serve the bus on (default from config)")
	f.StringVarP(&watchCookies, "browser", "b", "", "browser to import cookies from (none|auto|chrome|firefox|safari|zen)")
	f.StringVar(&watchUserAgent, "user-agent", "", "custom user agent string")
	f.StringVar(&watchBrowserAgent, "browser-agent", "", "browser agent type (chrome|edge)")
	f.StringVar(&watchMarkerTag, "marker-tag", "", "tag name of message elements")
	f.StringVar(&watchMarkerAttr, "marker-attribute", "", "attribute that marks message elements")
}

func runWatch(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	bc := cfg.Browser
	if flags.Changed("cdp-url") {
		bc.CDPURL = watchCDPURL
	}
	if flags.Changed("headless") {
		bc.Headless = watchHeadless
	}
	if flags.Changed("browser") {
		bc.Cookies = watchCookies
	}
	if flags.Changed("user-agent") {
		bc.UserAgent = watchUserAgent
	}
	if flags.Changed("browser-agent") {
		bc.BrowserAgent = watchBrowserAgent
	}
	if len(args) == 1 {
		bc.URL = args[0]
	}
	listen := cfg.Bus.Listen
	if flags.Changed("listen") {
		listen = watchListen
	}
	marker := dom.Marker{Tag: cfg.Capture.MarkerTag, Attribute: cfg.Capture.MarkerAttribute}
	if flags.Changed("marker-tag") {
		marker.Tag = watchMarkerTag
	}
	if flags.Changed("marker-attribute") {
		marker.Attribute = watchMarkerAttr
	}

	cookieSource, err := browser.ParseBrowserType(bc.Cookies)
	if err != nil {
		return exitError(ExitInvalidInput, "%v", err)
	}

	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	session, err := browser.Launch(ctx, browser.Options{
		CDPURL:       bc.CDPURL,
		Headless:     bc.Headless,
		ProfileDir:   bc.ProfileDir,
		UserAgent:    bc.UserAgent,
		BrowserAgent: bc.BrowserAgent,
		ExecPath:     bc.ExecPath,
	}, logger)
	if err != nil {
		return exitError(ExitNetworkError, "%v", err)
	}
	defer session.Close()

	page, err := browser.Attach(session.Context(), marker, logger)
	if err != nil {
		return exitError(ExitNetworkError, "%v", err)
	}

	if bc.URL != "" {
		if cookieSource != browser.BrowserNone {
			params, err := browser.NewCookieExtractor(cookieSource).CookieParams(ctx, bc.URL)
			if err != nil {
				logger.Warn("could not import cookies", "browser", cookieSource, "err", err)
			} else if err := page.SetCookies(ctx, params); err != nil {
				logger.Warn("could not set cookies", "err", err)
			} else {
				logger.Debug("imported cookies", "browser", cookieSource, "count", len(params))
			}
		}
		if err := page.Navigate(ctx, bc.URL); err != nil {
			return exitError(ExitNetworkError, "failed to open %s: %v", bc.URL, err)
		}
	}

	effect := locate.DefaultEffect()
	effect.Visible = cfg.Locate.Highlight()
	effect.FadeOut = cfg.Locate.Fade()

	hub := bus.NewHub()
	a := agent.New(page, st, hub, agent.Options{
		Key:      cfg.Store.Key,
		Debounce: cfg.Capture.Debounce(),
		Effect:   effect,
		Logger:   logger,
	})
	server := bus.NewServer(hub, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, listen)
	})
	g.Go(func() error {
		if err := a.Run(gctx); err != nil {
			return err
		}
		// stops the server once the tab goes away
		return errTabClosed
	})

	status("Watching %s, serving locate requests on %s", marker.Selector(), bus.URLFor(listen))
	if err := g.Wait(); err != nil && !errors.Is(err, errTabClosed) && !errors.Is(err, context.Canceled) {
		return exitError(ExitNetworkError, "%v", err)
	}
	status("Stopped watching")
	return nil
}

var errTabClosed = errors.New("tab closed")
