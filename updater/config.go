package updater

import (
	"fmt"
	"strings"
	"time"
)

const (
	// GitHub repository publishing release binaries
	RepoOwner = "vrs-scraper"
	RepoName  = "vrs-scraper"

	// Update check interval (default: 6 hours)
	DefaultCheckInterval = 6 * time.Hour

	// Startup delay before first check (allow service to stabilize)
	DefaultStartupDelay = 30 * time.Second
)

// Config holds the updater configuration
type Config struct {
	Owner          string
	Repo           string
	CheckInterval  time.Duration
	StartupDelay   time.Duration
	CurrentVersion string
}

// DefaultConfig returns a default configuration
func DefaultConfig(version string) *Config {
	return &Config{
		Owner:          RepoOwner,
		Repo:           RepoName,
		CheckInterval:  DefaultCheckInterval,
		StartupDelay:   DefaultStartupDelay,
		CurrentVersion: version,
	}
}

// Slug returns the "owner/repo" form used by the release source.
func (c *Config) Slug() string {
	return c.Owner + "/" + c.Repo
}

func (c *Config) Validate() error {
	if c.Owner == "" || c.Repo == "" {
		return fmt.Errorf("updater: owner and repo are required")
	}
	if c.CheckInterval < time.Minute {
		return fmt.Errorf("updater: check interval %s is below one minute", c.CheckInterval)
	}
	return nil
}

// normalizeVersion prefixes a bare semantic version with "v".
func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		return "v" + v
	}
	return v
}
