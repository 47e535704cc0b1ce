package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const appName = "queryflow"

type Config struct {
	Browser BrowserConfig `mapstructure:"browser"`
	Capture CaptureConfig `mapstructure:"capture"`
	Locate  LocateConfig  `mapstructure:"locate"`
	Store   StoreConfig   `mapstructure:"store"`
	Bus     BusConfig     `mapstructure:"bus"`
	Output  OutputConfig  `mapstructure:"output"`
	Network NetworkConfig `mapstructure:"network"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type BrowserConfig struct {
	CDPURL       string `mapstructure:"cdp_url"`
	Headless     bool   `mapstructure:"headless"`
	ProfileDir   string `mapstructure:"profile_dir"`
	ExecPath     string `mapstructure:"exec_path"`
	URL          string `mapstructure:"url"`
	UserAgent    string `mapstructure:"user_agent"`
	BrowserAgent string `mapstructure:"browser_agent"`
	Cookies      string `mapstructure:"cookies"`
}

type CaptureConfig struct {
	MarkerTag       string `mapstructure:"marker_tag"`
	MarkerAttribute string `mapstructure:"marker_attribute"`
	DebounceMS      int    `mapstructure:"debounce_ms"`
}

type LocateConfig struct {
	Retries      int `mapstructure:"retries"`
	RetryDelayMS int `mapstructure:"retry_delay_ms"`
	HighlightMS  int `mapstructure:"highlight_ms"`
	FadeMS       int `mapstructure:"fade_ms"`
	Timeout      int `mapstructure:"timeout"`
}

type StoreConfig struct {
	Backend string      `mapstructure:"backend"`
	Key     string      `mapstructure:"key"`
	Path    string      `mapstructure:"path"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type BusConfig struct {
	Listen string `mapstructure:"listen"`
}

type OutputConfig struct {
	DefaultFormat string `mapstructure:"default_format"`
	LineWidth     int    `mapstructure:"line_width"`
	Color         bool   `mapstructure:"color"`
}

type NetworkConfig struct {
	Timeout         int  `mapstructure:"timeout"`
	FollowRedirects bool `mapstructure:"follow_redirects"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

func Default() *Config {
	return &Config{
		Browser: BrowserConfig{
			CDPURL:       "",
			Headless:     false,
			ProfileDir:   filepath.Join(DataDir(), "chrome-profile"),
			URL:          "",
			UserAgent:    "",
			BrowserAgent: "",
			Cookies:      "none",
		},
		Capture: CaptureConfig{
			MarkerTag:       "div",
			MarkerAttribute: "data-message-id",
			DebounceMS:      500,
		},
		Locate: LocateConfig{
			Retries:      2,
			RetryDelayMS: 1000,
			HighlightMS:  2000,
			FadeMS:       600,
			Timeout:      10,
		},
		Store: StoreConfig{
			Backend: "file",
			Key:     "queryflow_messages",
			Path:    filepath.Join(DataDir(), "messages.json"),
			Redis: RedisConfig{
				Addr: "localhost:6379",
				DB:   0,
			},
		},
		Bus: BusConfig{
			Listen: "127.0.0.1:7345",
		},
		Output: OutputConfig{
			DefaultFormat: "text",
			LineWidth:     80,
			Color:         false,
		},
		Network: NetworkConfig{
			Timeout:         30,
			FollowRedirects: true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// ConfigDir is $XDG_CONFIG_HOME/queryflow.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir is $XDG_DATA_HOME/queryflow.
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func xdgDir(env, fallback string) string {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, fallback)
	}
	return filepath.Join(base, appName)
}

// DefaultPath is the config file used when none is given.
func DefaultPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.toml")
}

// Load reads configFile (or the default config file when empty) on top of
// the defaults. QUERYFLOW_* environment variables override both, e.g.
// QUERYFLOW_STORE_BACKEND=redis.
func Load(configFile string) (*Config, error) {
	cfg := Default()
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(ConfigDir())
		v.SetConfigType("toml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error, we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(configFile == "" && os.IsNotExist(err)) {
			return cfg, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply even
// without a config file.
func setDefaults(v *viper.Viper, cfg *Config) {
	defaults := map[string]any{
		"browser.cdp_url":          cfg.Browser.CDPURL,
		"browser.headless":         cfg.Browser.Headless,
		"browser.profile_dir":      cfg.Browser.ProfileDir,
		"browser.exec_path":        cfg.Browser.ExecPath,
		"browser.url":              cfg.Browser.URL,
		"browser.user_agent":       cfg.Browser.UserAgent,
		"browser.browser_agent":    cfg.Browser.BrowserAgent,
		"browser.cookies":          cfg.Browser.Cookies,
		"capture.marker_tag":       cfg.Capture.MarkerTag,
		"capture.marker_attribute": cfg.Capture.MarkerAttribute,
		"capture.debounce_ms":      cfg.Capture.DebounceMS,
		"locate.retries":           cfg.Locate.Retries,
		"locate.retry_delay_ms":    cfg.Locate.RetryDelayMS,
		"locate.highlight_ms":      cfg.Locate.HighlightMS,
		"locate.fade_ms":           cfg.Locate.FadeMS,
		"locate.timeout":           cfg.Locate.Timeout,
		"store.backend":            cfg.Store.Backend,
		"store.key":                cfg.Store.Key,
		"store.path":               cfg.Store.Path,
		"store.redis.addr":         cfg.Store.Redis.Addr,
		"store.redis.password":     cfg.Store.Redis.Password,
		"store.redis.db":           cfg.Store.Redis.DB,
		"bus.listen":               cfg.Bus.Listen,
		"output.default_format":    cfg.Output.DefaultFormat,
		"output.line_width":        cfg.Output.LineWidth,
		"output.color":             cfg.Output.Color,
		"network.timeout":          cfg.Network.Timeout,
		"network.follow_redirects": cfg.Network.FollowRedirects,
		"logging.level":            cfg.Logging.Level,
		"logging.file":             cfg.Logging.File,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("invalid store.backend %q (available: file, redis, memory)", c.Store.Backend)
	}
	if c.Store.Key == "" {
		return errors.New("store.key must not be empty")
	}
	if c.Capture.DebounceMS <= 0 {
		return fmt.Errorf("capture.debounce_ms must be positive, got %d", c.Capture.DebounceMS)
	}
	if c.Locate.Retries < 0 {
		return fmt.Errorf("locate.retries must not be negative, got %d", c.Locate.Retries)
	}
	if c.Locate.RetryDelayMS <= 0 || c.Locate.HighlightMS <= 0 || c.Locate.FadeMS <= 0 || c.Locate.Timeout <= 0 {
		return errors.New("locate durations must be positive")
	}
	return nil
}

func (c CaptureConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

func (c LocateConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

func (c LocateConfig) Highlight() time.Duration {
	return time.Duration(c.HighlightMS) * time.Millisecond
}

func (c LocateConfig) Fade() time.Duration {
	return time.Duration(c.FadeMS) * time.Millisecond
}

func (c LocateConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func (c *Config) CreateExampleConfig(configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	exampleContent := fmt.Sprintf(`# queryflow configuration file

[browser]
# Connect to a running Chrome instead of launching one
# (start Chrome with --remote-debugging-port=9222)
cdp_url = ""               # e.g. "http://127.0.0.1:9222"
headless = false
profile_dir = %q
exec_path = ""             # Chrome binary (empty = auto-detect)
url = ""                   # Chat page to open when watching
user_agent = ""            # Custom user agent (empty = Chrome's own)
browser_agent = ""         # auto, chrome, edge
cookies = "none"           # Import cookies from: none, auto, chrome, firefox, safari, zen

[capture]
# Message elements are <marker_tag marker_attribute="...">
marker_tag = "div"
marker_attribute = "data-message-id"
debounce_ms = 500          # Quiet window before re-extracting after DOM changes

[locate]
retries = 2                # Extra attempts when a message cannot be located
retry_delay_ms = 1000
highlight_ms = 2000        # How long a located message stays highlighted
fade_ms = 600
timeout = 10               # seconds to wait for the page to answer

[store]
backend = "file"           # file, redis, memory
key = "queryflow_messages"
path = %q

[store.redis]
addr = "localhost:6379"
password = ""
db = 0

[bus]
listen = "127.0.0.1:7345"  # Address the page agent serves the bus on

[output]
default_format = "text"    # text, markdown, html, json
line_width = 80            # Max line width for text output (0 = unlimited)
color = false              # Highlight matches with reverse video

[network]
timeout = 30               # seconds, for scan over HTTP
follow_redirects = true

[logging]
level = "info"             # debug, info, warn, error
file = ""                  # Log file path (empty = stderr only)
`, c.Browser.ProfileDir, c.Store.Path)

	return os.WriteFile(configPath, []byte(exampleContent), 0644)
}
