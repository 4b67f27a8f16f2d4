// Package app runs one complete scrape and reports its outcome.
package app

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/vrs-scraper/config"
	"github.com/vrs-scraper/locator"
	"github.com/vrs-scraper/metrics"
	"github.com/vrs-scraper/notify"
	"github.com/vrs-scraper/scrapers"
	"github.com/vrs-scraper/upload"
)

// Deps are the collaborators of a run. Zero values fall back to the real
// browser, the OS filesystem and no-op publisher and uploader.
type Deps struct {
	Logger    *slog.Logger
	Launcher  scrapers.Launcher
	Fs        afero.Fs
	Locators  *locator.Locators
	Metrics   *metrics.Metrics
	Publisher notify.Publisher
	Uploader  upload.Uploader
	// Processed carries the dedup set across runs of one process.
	Processed *scrapers.ProcessedFiles
}

// Outcome is the single object reported at the end of a run.
type Outcome struct {
	Success bool              `json:"success"`
	RunID   string            `json:"runId"`
	Summary *scrapers.Summary `json:"data,omitempty"`
	Rows    int               `json:"rows"`
	Files   int               `json:"files"`
	Kind    string            `json:"kind,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// RunOnce performs bootstrap, login and the table walk, then hands the
// saved files to the uploader.
func RunOnce(ctx context.Context, cfg *config.Config, deps Deps) (*Outcome, error) {
	deps = withDefaults(deps)
	runID := uuid.NewString()
	logger := deps.Logger.With(slog.String("run_id", runID))

	opts := []scrapers.Option{
		scrapers.WithFs(deps.Fs),
		scrapers.WithMetrics(deps.Metrics),
		scrapers.WithPublisher(deps.Publisher, runID),
	}
	if deps.Launcher != nil {
		opts = append(opts, scrapers.WithLauncher(deps.Launcher))
	}
	if deps.Locators == nil && cfg.LocatorsFile != "" {
		locs, err := locator.Load(cfg.LocatorsFile)
		if err != nil {
			outcome := &Outcome{RunID: runID, Kind: string(scrapers.Unknown), Error: err.Error()}
			deps.Metrics.SetLastRun(false)
			publishDone(ctx, deps, logger, outcome)
			return outcome, err
		}
		deps.Locators = locs
	}
	if deps.Locators != nil {
		opts = append(opts, scrapers.WithLocators(deps.Locators))
	}
	if deps.Processed != nil {
		opts = append(opts, scrapers.WithProcessedFiles(deps.Processed))
	}

	logger.Info("Starting run", slog.String("table", cfg.TableURL()), slog.Int("start_row", cfg.StartRow))
	summary, err := scrapers.Process(ctx, scrapers.NewVRSScraper(cfg, logger, opts...))

	outcome := &Outcome{RunID: runID}
	if err != nil {
		kind := scrapers.KindOf(err)
		outcome.Kind = string(kind)
		outcome.Error = err.Error()
		deps.Metrics.IncError(string(kind))
		deps.Metrics.SetLastRun(false)
		publishDone(ctx, deps, logger, outcome)
		return outcome, err
	}

	files := summary.Files()
	outcome.Success = true
	outcome.Summary = summary
	outcome.Rows = summary.Completed
	outcome.Files = len(files)

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	root, _ := filepath.Abs(cfg.DownloadPath)
	report := upload.Report{RunID: runID, Root: root, Success: true, Items: summary.Items, Files: paths}
	if err := deps.Uploader.Upload(ctx, report); err != nil {
		logger.Warn("Upload failed", slog.Any("error", err))
	}

	deps.Metrics.SetLastRun(true)
	publishDone(ctx, deps, logger, outcome)
	return outcome, nil
}

func withDefaults(deps Deps) Deps {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if deps.Publisher == nil {
		deps.Publisher = notify.Nop{}
	}
	if deps.Uploader == nil {
		deps.Uploader = upload.Nop{Logger: deps.Logger}
	}
	return deps
}

func publishDone(ctx context.Context, deps Deps, logger *slog.Logger, o *Outcome) {
	payload := notify.RunPayload{Success: o.Success, Rows: o.Rows, Files: o.Files, Error: o.Error}
	if o.Summary != nil {
		payload.Message = o.Summary.Message
	}
	ev, err := notify.NewEvent(notify.TypeRunCompleted, o.RunID, payload)
	if err == nil {
		err = deps.Publisher.Publish(ctx, ev)
	}
	if err != nil {
		logger.Warn("Failed to publish run result", slog.Any("error", err))
	}
}

// DialPublisher connects the progress feed when cfg names one. A feed that
// cannot be reached is logged and replaced by a no-op publisher.
func DialPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) notify.Publisher {
	if cfg.NotifyURL == "" {
		return notify.Nop{}
	}
	p, err := notify.Dial(ctx, notify.Config{
		ServerURL: cfg.NotifyURL,
		APIKey:    cfg.NotifyAPIKey,
		Logger:    logger,
	})
	if err != nil {
		logger.Warn("Progress feed unavailable", slog.Any("error", err))
		return notify.Nop{}
	}
	return p
}
