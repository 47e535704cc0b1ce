package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/byteowlz/queryflow/internal/config"
	"github.com/byteowlz/queryflow/internal/logging"
	"github.com/byteowlz/queryflow/internal/store"
)

// Exit codes for granular error handling
const (
	ExitSuccess      = 0
	ExitNetworkError = 1 // page agent unreachable or fetch failed
	ExitNotFound     = 2 // no results, or the message is not on the page
	ExitInvalidInput = 3
	ExitConfigError  = 4
	ExitStoreError   = 5
)

var (
	cfgFile      string
	verbose      bool
	quiet        bool
	storeBackend string
	storeKey     string

	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
)

const version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "queryflow",
	Short: "Capture, search and jump to chat messages in a browser tab",
	Long: `queryflow watches a chat page in Chrome, keeps its messages in a shared
store and lets you search them and scroll the page back to any message.

Run "queryflow watch <url>" in one terminal, then use "queryflow search"
and "queryflow goto" from another.`,
	Version:           version,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			closeLog()
		}
	},
	SilenceErrors: true,
	SilenceUsage:  true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		var exitErr *exitErr
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		if !quiet {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(ExitInvalidInput)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/queryflow/config.toml)")
	rootCmd.PersistentFlags().StringVar(&storeBackend, "store", "", "store backend (file|redis|memory)")
	rootCmd.PersistentFlags().StringVar(&storeKey, "key", "", "store key holding the message set")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all non-content output")

	rootCmd.AddCommand(watchCmd, searchCmd, gotoCmd, tabsCmd, scanCmd, exportCmd, clearCmd)
}

// initConfig creates the example config on first run.
func initConfig() {
	if cfgFile != "" {
		return
	}
	configPath := config.DefaultPath()
	if configPath == "" {
		if !quiet {
			fmt.Fprintf(os.Stderr, "Error finding home directory\n")
		}
		return
	}

	// Handle broken symlinks by removing them first
	configDir := filepath.Dir(configPath)
	if fi, lstatErr := os.Lstat(configDir); lstatErr == nil && fi.Mode()&os.ModeSymlink != 0 {
		if _, statErr := os.Stat(configDir); os.IsNotExist(statErr) {
			os.Remove(configDir)
		}
	}

	if _, err := os.Stat(configPath); !os.IsNotExist(err) {
		return
	}
	if err := config.Default().CreateExampleConfig(configPath); err != nil {
		if verbose && !quiet {
			fmt.Fprintf(os.Stderr, "Error creating config: %v\n", err)
		}
		return
	}
	if !quiet {
		fmt.Fprintf(os.Stderr, "Created config file: %s\n", configPath)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return exitError(ExitConfigError, "failed to load config: %v", err)
	}

	// Apply global flags if explicitly set
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store.Backend = storeBackend
	}
	if flags.Changed("key") {
		cfg.Store.Key = storeKey
	}
	if err := cfg.Validate(); err != nil {
		return exitError(ExitConfigError, "invalid configuration: %v", err)
	}

	logger, closeLog, err = logging.New(cfg.Logging, verbose, quiet)
	if err != nil {
		return exitError(ExitConfigError, "failed to set up logging: %v", err)
	}
	slog.SetDefault(logger)
	logger.Debug("configuration loaded", "store", cfg.Store.Backend, "key", cfg.Store.Key)
	return nil
}

func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, store.Options{
		Backend: cfg.Store.Backend,
		Path:    cfg.Store.Path,
		Redis: store.RedisOptions{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		},
	})
	if err != nil {
		return nil, exitError(ExitStoreError, "failed to open %s store: %v", cfg.Store.Backend, err)
	}
	return st, nil
}

// openOutput returns stdout, or the file named by path.
func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, exitError(ExitInvalidInput, "failed to create output file %s: %v", path, err)
	}
	return f, f.Close, nil
}

// status prints a user-facing banner unless --quiet is set.
func status(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string {
	return e.msg
}

func exitError(code int, format string, args ...interface{}) *exitErr {
	msg := fmt.Sprintf(format, args...)
	if msg != "" && !quiet {
		fmt.Fprintf(os.Stderr, "%s\n", msg)
	}
	return &exitErr{code: code, msg: msg}
}
