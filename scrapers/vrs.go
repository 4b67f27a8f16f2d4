package scrapers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/vrs-scraper/browser"
	"github.com/vrs-scraper/config"
	"github.com/vrs-scraper/downloads"
	"github.com/vrs-scraper/locator"
	"github.com/vrs-scraper/metrics"
	"github.com/vrs-scraper/notify"
)

// VRSScraper downloads telemetry data packs from Virtual Racing School.
type VRSScraper struct {
	BaseScraper

	launch    Launcher
	fs        afero.Fs
	metrics   *metrics.Metrics
	publisher notify.Publisher
	runID     string
	processed *ProcessedFiles
}

// Option customises a VRSScraper.
type Option func(*VRSScraper)

// WithLauncher replaces the Chrome launcher.
func WithLauncher(l Launcher) Option {
	return func(s *VRSScraper) { s.launch = l }
}

// WithFs sets the filesystem holding the download root.
func WithFs(fs afero.Fs) Option {
	return func(s *VRSScraper) { s.fs = fs }
}

func WithLocators(l *locator.Locators) Option {
	return func(s *VRSScraper) { s.Locators = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *VRSScraper) { s.metrics = m }
}

// WithPublisher sends progress events for run runID to p.
func WithPublisher(p notify.Publisher, runID string) Option {
	return func(s *VRSScraper) {
		s.publisher = p
		s.runID = runID
	}
}

// WithProcessedFiles shares a dedup set, e.g. across scheduled runs.
func WithProcessedFiles(p *ProcessedFiles) Option {
	return func(s *VRSScraper) { s.processed = p }
}

// NewVRSScraper creates a new VRS scraper instance
func NewVRSScraper(cfg *config.Config, logger *slog.Logger, opts ...Option) *VRSScraper {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, nil)).With(slog.String("scraper", "vrs"))
	}

	s := &VRSScraper{
		BaseScraper: BaseScraper{
			Config:   cfg,
			Locators: locator.Default(),
			Logger:   logger,
		},
		launch:    ChromeLauncher,
		fs:        afero.NewOsFs(),
		publisher: notify.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.processed == nil {
		s.processed = NewProcessedFiles()
	}
	return s
}

// Processed returns the dedup set of this scraper.
func (s *VRSScraper) Processed() *ProcessedFiles {
	return s.processed
}

// Initialize opens the browser session and the download store.
func (s *VRSScraper) Initialize(ctx context.Context) error {
	s.Logger.Info("Initializing browser...")

	t := s.Config.Timings
	store, err := downloads.NewStore(s.fs, s.Config.DownloadPath, downloads.Options{
		Ext:            s.Config.ArtifactExt,
		RecentWindow:   t.RecentWindow,
		Timeout:        t.DownloadTimeout,
		PollInterval:   t.PollInterval,
		StableInterval: t.StableInterval,
	})
	if err != nil {
		return stageErr(DownloadChannelFailed, err)
	}
	s.Store = store

	session, err := s.launch(ctx, browser.Options{
		Headless:      s.Config.Headless,
		DownloadPath:  s.Config.DownloadPath,
		ActionTimeout: t.NavigationWait,
		IdleTimeout:   t.PageIdle,
		Logger:        s.Logger,
	})
	if err != nil {
		return stageErr(sessionKind(err), err)
	}
	s.Session = session
	return nil
}

// Download walks the data pack table.
func (s *VRSScraper) Download(ctx context.Context) (*Summary, error) {
	return s.scrapeTable(ctx, s.processed)
}

// settle is a fixed delay that lets the page finish populating.
func (s *VRSScraper) settle(ctx context.Context, d time.Duration) error {
	if d > config.MaxSettle {
		d = config.MaxSettle
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *VRSScraper) publish(ctx context.Context, typ string, payload any) {
	ev, err := notify.NewEvent(typ, s.runID, payload)
	if err == nil {
		err = s.publisher.Publish(ctx, ev)
	}
	if err != nil {
		s.Logger.Warn("Failed to publish progress event", slog.String("type", typ), slog.Any("error", err))
	}
}

func (s *VRSScraper) recordError(kind Kind, err error, attrs ...any) {
	s.metrics.IncError(string(kind))
	s.Logger.Warn(fmt.Sprintf("%s absorbed", kind), append(attrs, slog.Any("error", err))...)
}
