package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/byteowlz/queryflow/internal/dom"
	"github.com/byteowlz/queryflow/internal/scan"
	"github.com/byteowlz/queryflow/internal/store"
)

var (
	scanTimeout           int
	scanUserAgent         string
	scanBrowserAgent      string
	scanNoFollowRedirects bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <file|url>",
	Short: "Capture the messages of a saved or served page without a browser",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print every captured message",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the captured messages",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

func init() {
	f := scanCmd.Flags()
	f.IntVar(&scanTimeout, "timeout", 30, "request timeout in seconds")
	f.StringVar(&scanUserAgent, "user-agent", "", "custom user agent string")
	f.StringVar(&scanBrowserAgent, "browser-agent", "", "browser agent type (chrome|edge)")
	f.BoolVar(&scanNoFollowRedirects, "no-follow-redirects", false, "disable following HTTP redirects")

	ef := exportCmd.Flags()
	ef.StringVarP(&outputFile, "output", "o", "", "output to file (default: stdout)")
	ef.StringVar(&outputFormat, "format", "text", "output format (text|markdown|html|json)")
	ef.IntVar(&lineWidth, "line-width", 80, "max line width for text output (0 = unlimited)")
}

func runScan(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	timeout := time.Duration(cfg.Network.Timeout) * time.Second
	if flags.Changed("timeout") {
		timeout = time.Duration(scanTimeout) * time.Second
	}
	userAgent := cfg.Browser.UserAgent
	if flags.Changed("user-agent") {
		userAgent = scanUserAgent
	}
	browserAgent := cfg.Browser.BrowserAgent
	if flags.Changed("browser-agent") {
		browserAgent = scanBrowserAgent
	}
	followRedirects := cfg.Network.FollowRedirects
	if flags.Changed("no-follow-redirects") {
		followRedirects = !scanNoFollowRedirects
	}

	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	scanner := scan.New(st, scan.Options{
		Key:    cfg.Store.Key,
		Marker: dom.Marker{Tag: cfg.Capture.MarkerTag, Attribute: cfg.Capture.MarkerAttribute},
		Fetch: scan.FetchOptions{
			Timeout:         timeout,
			UserAgent:       userAgent,
			BrowserAgent:    browserAgent,
			FollowRedirects: followRedirects,
		},
		Logger: logger,
	})

	res, err := scanner.Scan(ctx, args[0])
	switch {
	case errors.Is(err, scan.ErrFetch):
		return exitError(ExitNetworkError, "%v", err)
	case errors.Is(err, scan.ErrSave):
		return exitError(ExitStoreError, "%v", err)
	case err != nil:
		return exitError(ExitInvalidInput, "%v", err)
	}

	status("Captured %d messages from %s", len(res.Messages), res.Source.URL)
	if len(res.Messages) == 0 {
		return &exitErr{code: ExitNotFound}
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	r, err := newRenderer(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	messages, src, err := loadMessages(ctx, st)
	if err != nil {
		return err
	}

	w, closeOut, err := openOutput(outputFile)
	if err != nil {
		return err
	}
	defer closeOut()
	if err := r.Messages(w, messages, src); err != nil {
		return exitError(ExitInvalidInput, "failed to write messages: %v", err)
	}
	if len(messages) == 0 {
		return &exitErr{code: ExitNotFound}
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	for _, key := range []string{cfg.Store.Key, cfg.Store.Key + store.SourceSuffix} {
		if err := st.Delete(ctx, key); err != nil {
			return exitError(ExitStoreError, "failed to clear %s: %v", key, err)
		}
	}
	status("Cleared captured messages (%s)", cfg.Store.Key)
	return nil
}
