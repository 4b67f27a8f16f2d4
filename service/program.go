package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kardianos/service"

	"github.com/vrs-scraper/app"
	"github.com/vrs-scraper/config"
	"github.com/vrs-scraper/metrics"
	"github.com/vrs-scraper/scrapers"
	"github.com/vrs-scraper/server"
	"github.com/vrs-scraper/updater"
)

// Program implements service.Interface and runs the scraper on a schedule.
type Program struct {
	Logger     *slog.Logger
	Config     *config.Config
	ConfigFile string
	EnvFile    string
	GRPCPort   string
	Interval   time.Duration
	Version    string

	// Auto-update settings
	AutoUpdate     bool
	UpdateInterval time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	status    *server.StatusServer
	metrics   *metrics.Metrics
	processed *scrapers.ProcessedFiles
	logFile   *os.File
}

// Start is called when the service starts
func (p *Program) Start(s service.Service) error {
	svcLogger, _ := s.Logger(nil)

	if err := p.setupFileLogger(); err != nil && svcLogger != nil {
		svcLogger.Error("Failed to setup file logger: " + err.Error())
	}
	if p.Logger == nil {
		p.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if svcLogger != nil {
		svcLogger.Info("Service starting...")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.status = server.NewStatusServer(p.Logger)
	p.metrics = metrics.New()
	p.processed = scrapers.NewProcessedFiles()

	p.wg.Add(1)
	go p.run()

	return nil
}

// Stop is called when the service stops
func (p *Program) Stop(s service.Service) error {
	p.Logger.Info("Service stopping...")
	p.cancel()
	p.status.Stop()

	p.wg.Wait()
	p.Logger.Info("Service stopped")

	if p.logFile != nil {
		p.logFile.Close()
	}
	return nil
}

// setupFileLogger writes logs next to the executable as well as to stdout
func (p *Program) setupFileLogger() error {
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	logDir := filepath.Join(filepath.Dir(exePath), "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log dir %s: %w", logDir, err)
	}

	logFile := filepath.Join(logDir, ServiceName+".log")
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logFile, err)
	}

	p.logFile = f
	mw := io.MultiWriter(os.Stdout, f)
	p.Logger = slog.New(slog.NewTextHandler(mw, &slog.HandlerOptions{Level: logLevel(p.Config.LogLevel)}))
	return nil
}

func logLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// run is the main service loop
func (p *Program) run() {
	defer p.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			p.Logger.Error("run() panic recovered", slog.Any("panic", r))
		}
	}()

	// Relative download paths are relative to the executable, not the
	// service manager's working directory.
	if !filepath.IsAbs(p.Config.DownloadPath) {
		exePath, _ := os.Executable()
		p.Config.DownloadPath = filepath.Join(filepath.Dir(exePath), p.Config.DownloadPath)
	}

	if p.AutoUpdate {
		p.startAutoUpdate()
	}
	if p.Config.MetricsAddr != "" {
		p.metrics.Serve(p.ctx, p.Config.MetricsAddr, p.Logger)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.status.ListenAndServe(p.ctx, p.GRPCPort); err != nil {
			p.Logger.Error("gRPC status server stopped", slog.Any("error", err))
		}
	}()

	p.schedule()
}

// schedule runs a scrape immediately and then every Interval until stopped.
func (p *Program) schedule() {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		p.runOnce()

		select {
		case <-ticker.C:
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Program) runOnce() {
	p.status.SetRunning(true)
	defer p.status.SetRunning(false)

	publisher := app.DialPublisher(p.ctx, p.Config, p.Logger)
	defer publisher.Close()

	outcome, err := app.RunOnce(p.ctx, p.Config, app.Deps{
		Logger:    p.Logger,
		Metrics:   p.metrics,
		Publisher: publisher,
		Processed: p.processed,
	})
	if err != nil {
		p.Logger.Error("Scheduled run failed", slog.String("run_id", outcome.RunID), slog.Any("error", err))
		return
	}
	p.Logger.Info("Scheduled run finished",
		slog.String("run_id", outcome.RunID),
		slog.Int("rows", outcome.Rows),
		slog.Int("files", outcome.Files),
		slog.Duration("next_in", p.Interval),
	)
}

// startAutoUpdate initializes and starts the auto-updater
func (p *Program) startAutoUpdate() {
	cfg := updater.DefaultConfig(p.Version)
	if p.UpdateInterval > 0 {
		cfg.CheckInterval = p.UpdateInterval
	}
	if err := cfg.Validate(); err != nil {
		p.Logger.Warn("Auto-update disabled", slog.Any("error", err))
		return
	}

	u := updater.New(cfg, p.Logger)
	u.StartPeriodicCheck(p.ctx, func() {
		p.Logger.Info("Update applied, restarting service...")
		if err := updater.RestartService(ServiceName, p.Logger); err != nil {
			p.Logger.Error("Failed to restart service", slog.Any("error", err))
		}
	})
}
