package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/byteowlz/queryflow/internal/bus"
	"github.com/byteowlz/queryflow/internal/popup"
	"github.com/byteowlz/queryflow/internal/render"
	"github.com/byteowlz/queryflow/internal/search"
	"github.com/byteowlz/queryflow/internal/store"
)

var (
	outputFile   string
	outputFormat string
	lineWidth    int
	color        bool
	gotoResult   int

	agentAddr  string
	retry      bool
	retries    int
	retryDelay int
)

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Search the captured messages",
	Long: `Search the captured messages for a case-insensitive substring and print
the matches with the query highlighted. With --goto N the page agent scrolls
to the Nth result.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var gotoCmd = &cobra.Command{
	Use:   "goto <message...>",
	Short: "Scroll the watched tab to a message and highlight it",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGoto,
}

var tabsCmd = &cobra.Command{
	Use:   "tabs",
	Short: "List the tabs served by the page agent",
	Args:  cobra.NoArgs,
	RunE:  runTabs,
}

func init() {
	sf := searchCmd.Flags()
	sf.StringVarP(&outputFile, "output", "o", "", "output to file (default: stdout)")
	sf.StringVar(&outputFormat, "format", "text", "output format (text|markdown|html|json)")
	sf.IntVar(&lineWidth, "line-width", 80, "max line width for text output (0 = unlimited)")
	sf.BoolVar(&color, "color", false, "highlight matches with reverse video")
	sf.IntVar(&gotoResult, "goto", 0, "scroll the page to the Nth result (1-based)")

	for _, cmd := range []*cobra.Command{searchCmd, gotoCmd, tabsCmd} {
		cmd.Flags().StringVar(&agentAddr, "agent", "", "address of the page agent bus (default from config)")
	}
	for _, cmd := range []*cobra.Command{searchCmd, gotoCmd} {
		f := cmd.Flags()
		f.BoolVar(&retry, "retry", false, "retry when the message cannot be located")
		f.IntVar(&retries, "retries", popup.DefaultRetries, "number of retries with --retry")
		f.IntVar(&retryDelay, "retry-delay", int(popup.DefaultRetryDelay/time.Millisecond), "delay between retries in milliseconds")
	}
}

func newRenderer(cmd *cobra.Command) (*render.Renderer, error) {
	flags := cmd.Flags()
	if !flags.Changed("format") && cfg.Output.DefaultFormat != "" {
		outputFormat = cfg.Output.DefaultFormat
	}
	if !flags.Changed("line-width") {
		lineWidth = cfg.Output.LineWidth
	}
	if !flags.Changed("color") {
		color = cfg.Output.Color
	}
	format, err := render.ParseFormat(outputFormat)
	if err != nil {
		return nil, exitError(ExitInvalidInput, "%v", err)
	}
	return render.New(render.Options{Format: format, LineWidth: lineWidth, Color: color}), nil
}

// loadMessages reads the stored Message Set and its source. A missing set is
// empty, and a source left behind without a set is ignored.
func loadMessages(ctx context.Context, st store.Store) ([]string, *store.Source, error) {
	messages, found, err := st.Get(ctx, cfg.Store.Key)
	if err != nil {
		return nil, nil, exitError(ExitStoreError, "failed to read messages: %v", err)
	}
	if !found {
		return nil, nil, nil
	}
	src, ok, err := store.LoadSource(ctx, st, cfg.Store.Key)
	if err != nil || !ok {
		logger.Debug("no source recorded", "key", cfg.Store.Key, "err", err)
		src = nil
	}
	return messages, src, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	r, err := newRenderer(cmd)
	if err != nil {
		return err
	}

	query := strings.Join(args, " ")
	if strings.TrimSpace(query) == "" {
		return exitError(ExitInvalidInput, "empty search query")
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
	results := search.Search(messages, query)
	logger.Debug("search finished", "query", query, "messages", len(messages), "results", len(results))

	w, closeOut, err := openOutput(outputFile)
	if err != nil {
		return err
	}
	defer closeOut()
	if err := r.Results(w, query, results, len(messages), src); err != nil {
		return exitError(ExitInvalidInput, "failed to write results: %v", err)
	}

	if len(results) == 0 {
		return &exitErr{code: ExitNotFound}
	}
	if !cmd.Flags().Changed("goto") {
		return nil
	}
	if gotoResult < 1 || gotoResult > len(results) {
		return exitError(ExitInvalidInput, "--goto must be between 1 and %d", len(results))
	}
	return locateMessage(cmd, results[gotoResult-1].Text)
}

func runGoto(cmd *cobra.Command, args []string) error {
	message := strings.TrimSpace(strings.Join(args, " "))
	if message == "" {
		return exitError(ExitInvalidInput, "empty message")
	}
	return locateMessage(cmd, message)
}

func dialAgent(ctx context.Context, cmd *cobra.Command) (*bus.Client, error) {
	addr := cfg.Bus.Listen
	if cmd.Flags().Changed("agent") {
		addr = agentAddr
	}
	client, err := bus.Dial(ctx, bus.URLFor(addr))
	if err != nil {
		logger.Debug("dial failed", "err", err)
		return nil, exitError(ExitNetworkError, "no page agent listening on %s (start one with: queryflow watch <url>)", addr)
	}
	return client, nil
}

// locateMessage asks the active tab to scroll to message, printing the
// status banners on stderr.
func locateMessage(cmd *cobra.Command, message string) error {
	flags := cmd.Flags()
	n := cfg.Locate.Retries
	if flags.Changed("retries") {
		n = retries
	}
	delay := cfg.Locate.RetryDelay()
	if flags.Changed("retry-delay") {
		delay = time.Duration(retryDelay) * time.Millisecond
	}

	attempts := 1
	if retry {
		attempts += n
	}
	timeout := time.Duration(attempts)*cfg.Locate.RequestTimeout() + time.Duration(attempts-1)*delay
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	client, err := dialAgent(ctx, cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	pc := popup.NewClient(client, popup.Options{
		Retries:    n,
		RetryDelay: delay,
		Logger:     logger,
	})
	notify := func(s popup.Status) {
		status("%s", s.Text)
	}

	if retry {
		err = pc.GoToWithRetry(ctx, message, notify)
	} else {
		err = pc.GoTo(ctx, message, notify)
	}
	if err == nil {
		return nil
	}
	logger.Debug("locate failed", "err", err)

	// the banner already told the user what went wrong
	var le *popup.LocateError
	switch {
	case errors.As(err, &le), errors.Is(err, popup.ErrNoActiveTab):
		return &exitErr{code: ExitNotFound, msg: err.Error()}
	case errors.Is(err, popup.ErrInvalidTarget):
		return &exitErr{code: ExitInvalidInput, msg: err.Error()}
	default:
		return &exitErr{code: ExitNetworkError, msg: err.Error()}
	}
}

func runTabs(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Locate.RequestTimeout())
	defer cancel()

	client, err := dialAgent(ctx, cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	tabs, err := client.Tabs(ctx)
	if err != nil {
		return exitError(ExitNetworkError, "failed to list tabs: %v", err)
	}
	if len(tabs) == 0 {
		status("No tabs")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTIVE\tID\tTITLE\tURL")
	for _, t := range tabs {
		active := ""
		if t.Active {
			active = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", active, t.ID, t.Title, t.URL)
	}
	return tw.Flush()
}
