package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	EnvUsername = "VRS_USERNAME"
	EnvPassword = "VRS_PASSWORD"

	// MaxSettle caps every fixed settle delay.
	MaxSettle = 10 * time.Second
)

// Timings centralises every wait used while driving the page.
type Timings struct {
	// Element waits.
	ElementTimeout  time.Duration `yaml:"element_timeout"`
	ArtifactTimeout time.Duration `yaml:"artifact_timeout"`
	NavigationWait  time.Duration `yaml:"navigation_wait"`
	LoginIdle       time.Duration `yaml:"login_idle"`
	PageIdle        time.Duration `yaml:"page_idle"`

	// Settle delays, clamped to MaxSettle.
	ListSettle   time.Duration `yaml:"list_settle"`
	PreExpand    time.Duration `yaml:"pre_expand"`
	ExpandSettle time.Duration `yaml:"expand_settle"`
	Pacing       time.Duration `yaml:"pacing"`

	// Download materialisation.
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	StableInterval  time.Duration `yaml:"stable_interval"`
	RecentWindow    time.Duration `yaml:"recent_window"`
}

// Config holds scraper configuration.
type Config struct {
	BaseURL       string `yaml:"base_url"`
	HomePath      string `yaml:"home_path"`
	DataPacksPath string `yaml:"data_packs_path"`
	TableMarker   string `yaml:"table_marker"`
	DownloadPath  string `yaml:"download_path"`
	LocatorsFile  string `yaml:"locators_file"`
	ArtifactExt   string `yaml:"artifact_ext"`
	Headless      bool   `yaml:"headless"`

	StartRow       int `yaml:"start_row"`
	MaxNestedItems int `yaml:"max_nested_items"`
	RowAttempts    int `yaml:"row_attempts"`

	MetricsAddr  string `yaml:"metrics_addr"`
	NotifyURL    string `yaml:"notify_url"`
	NotifyAPIKey string `yaml:"notify_api_key"`
	LogLevel     string `yaml:"log_level"`

	Timings Timings `yaml:"timings"`

	// Credentials never come from the YAML file.
	Username string `yaml:"-"`
	Password string `yaml:"-"`
}

// DefaultTimings returns the delays observed to work against the live site.
func DefaultTimings() Timings {
	return Timings{
		ElementTimeout:  5 * time.Second,
		ArtifactTimeout: 3 * time.Second,
		NavigationWait:  10 * time.Second,
		LoginIdle:       30 * time.Second,
		PageIdle:        30 * time.Second,

		ListSettle:   3 * time.Second,
		PreExpand:    1 * time.Second,
		ExpandSettle: 1500 * time.Millisecond,
		Pacing:       1 * time.Second,

		DownloadTimeout: 10 * time.Second,
		PollInterval:    250 * time.Millisecond,
		StableInterval:  500 * time.Millisecond,
		RecentWindow:    10 * time.Second,
	}
}

// Default returns the configuration for the VRS data pack listing.
func Default() *Config {
	return &Config{
		BaseURL:       "https://virtualracingschool.appspot.com",
		HomePath:      "/#/Home",
		DataPacksPath: "/#/DataPacks/B/vrs-free,vrs-premium",
		TableMarker:   "DataPacks",
		DownloadPath:  "./downloads",
		ArtifactExt:   ".sto",
		Headless:      true,

		StartRow:       60,
		MaxNestedItems: 8,
		RowAttempts:    2,

		LogLevel: "info",
		Timings:  DefaultTimings(),
	}
}

// Load returns the defaults overlaid with the YAML file at path, if any.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if err := cfg.LoadFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadEnv reads credentials from the process environment, after loading
// envFile into it when the file exists. Variables already set win.
func (c *Config) LoadEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}
	c.Username = strings.TrimSpace(os.Getenv(EnvUsername))
	c.Password = os.Getenv(EnvPassword)
	return nil
}

// HasCredentials reports whether both credentials are set.
func (c *Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// HomeURL is the landing view holding the start card.
func (c *Config) HomeURL() string {
	return strings.TrimRight(c.BaseURL, "/") + c.HomePath
}

// TableURL is the canonical data pack table view used to resynchronise.
func (c *Config) TableURL() string {
	return strings.TrimRight(c.BaseURL, "/") + c.DataPacksPath
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if c.TableMarker == "" || !strings.Contains(c.DataPacksPath, c.TableMarker) {
		return fmt.Errorf("data packs path %q must contain table marker %q", c.DataPacksPath, c.TableMarker)
	}
	if c.DownloadPath == "" {
		return fmt.Errorf("download path cannot be empty")
	}
	if !strings.HasPrefix(c.ArtifactExt, ".") {
		return fmt.Errorf("artifact extension must start with a dot")
	}
	if c.StartRow < 1 {
		return fmt.Errorf("start row must be at least 1")
	}
	if c.MaxNestedItems < 1 {
		return fmt.Errorf("max nested items must be positive")
	}
	if c.RowAttempts < 1 {
		return fmt.Errorf("row attempts must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return c.Timings.Validate()
}

// Validate rejects negative waits and settle delays above MaxSettle.
func (t Timings) Validate() error {
	waits := map[string]time.Duration{
		"element_timeout":  t.ElementTimeout,
		"artifact_timeout": t.ArtifactTimeout,
		"navigation_wait":  t.NavigationWait,
		"login_idle":       t.LoginIdle,
		"page_idle":        t.PageIdle,
		"download_timeout": t.DownloadTimeout,
		"poll_interval":    t.PollInterval,
		"stable_interval":  t.StableInterval,
		"recent_window":    t.RecentWindow,
	}
	for name, d := range waits {
		if d < 0 {
			return fmt.Errorf("timing %s cannot be negative", name)
		}
	}

	settles := map[string]time.Duration{
		"list_settle":   t.ListSettle,
		"pre_expand":    t.PreExpand,
		"expand_settle": t.ExpandSettle,
		"pacing":        t.Pacing,
	}
	for name, d := range settles {
		if d < 0 || d > MaxSettle {
			return fmt.Errorf("settle %s must be between 0 and %s", name, MaxSettle)
		}
	}
	return nil
}
