package scrapers

import (
	"context"
	"log/slog"

	"github.com/vrs-scraper/browser"
	"github.com/vrs-scraper/config"
	"github.com/vrs-scraper/downloads"
	"github.com/vrs-scraper/locator"
)

// Scraper is the interface that all scrapers must implement
type Scraper interface {
	// Initialize sets up the browser and prepares for scraping
	Initialize(ctx context.Context) error
	// Login performs authentication
	Login(ctx context.Context) error
	// Download walks the listing and downloads every new artifact
	Download(ctx context.Context) (*Summary, error)
	// Close cleans up resources
	Close() error
}

// Process runs one scraper through its whole lifecycle. Close is always
// attempted and its error ignored, since it only runs once useful work is over.
func Process(ctx context.Context, scraper Scraper) (*Summary, error) {
	defer scraper.Close()

	if err := scraper.Initialize(ctx); err != nil {
		return nil, err
	}

	if err := scraper.Login(ctx); err != nil {
		return nil, err
	}

	return scraper.Download(ctx)
}

// Launcher opens a browser session.
type Launcher func(ctx context.Context, opts browser.Options) (browser.Session, error)

// ChromeLauncher starts a local Chrome.
func ChromeLauncher(ctx context.Context, opts browser.Options) (browser.Session, error) {
	c, err := browser.Launch(ctx, opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// BaseScraper provides common functionality for all scrapers
type BaseScraper struct {
	Config   *config.Config
	Locators *locator.Locators
	Logger   *slog.Logger
	Session  browser.Session
	Store    *downloads.Store
}

// Close releases the browser. Failures are logged only.
func (b *BaseScraper) Close() error {
	if b.Session == nil {
		return nil
	}
	b.Logger.Info("Closing browser")
	if err := b.Session.Close(); err != nil {
		b.Logger.Warn("Browser close failed", slog.Any("error", err))
	}
	b.Session = nil
	return nil
}
