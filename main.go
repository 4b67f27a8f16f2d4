package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/vrs-scraper/app"
	"github.com/vrs-scraper/config"
	"github.com/vrs-scraper/metrics"
	"github.com/vrs-scraper/server"
	"github.com/vrs-scraper/service"
	"github.com/vrs-scraper/updater"
)

var (
	configFile   string
	envFile      string
	downloadPath string
	headless     bool
	startRow     int
	locatorsFile string
	metricsAddr  string
	notifyURL    string
	notifyAPIKey string
	logLevel     string
	showTable    bool

	grpcPort       string
	interval       time.Duration
	autoUpdate     bool
	updateInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "vrs-scraper",
	Short:         "Downloads VRS data packs and files them by car and track.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runScrape,
}

var serviceCmd = &cobra.Command{
	Use:       "service <install|uninstall|start|stop|restart|status|run>",
	Short:     "Manages the scheduled scraper service.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"install", "uninstall", "start", "stop", "restart", "status", "run"},
	RunE:      runService,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the version.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), server.Version)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Checks GitHub releases and replaces the binary when a newer one exists.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(logLevel)
		u := updater.New(updater.DefaultConfig(server.Version), logger)
		updated, err := u.CheckAndUpdate(cmd.Context())
		if err != nil {
			return err
		}
		if !updated {
			logger.Info("Already up to date", slog.String("version", server.Version))
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "YAML config file")
	pf.StringVar(&envFile, "env-file", ".env", "File holding VRS_USERNAME and VRS_PASSWORD")
	pf.StringVar(&downloadPath, "download", "", "Download root directory")
	pf.BoolVar(&headless, "headless", false, "Run the browser without a window")
	pf.IntVar(&startRow, "start-row", 0, "First table row to visit")
	pf.StringVar(&locatorsFile, "locators", "", "YAML file overriding page selectors")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	pf.StringVar(&notifyURL, "notify-url", "", "WebSocket URL receiving progress events")
	pf.StringVar(&notifyAPIKey, "notify-api-key", "", "API key for the progress feed")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.Flags().BoolVar(&showTable, "table", false, "Print a summary table after the run")

	sf := serviceCmd.Flags()
	sf.StringVar(&grpcPort, "port", "50061", "gRPC health server port")
	sf.DurationVar(&interval, "interval", 6*time.Hour, "Time between scheduled runs")
	sf.BoolVar(&autoUpdate, "auto-update", false, "Apply new releases automatically")
	sf.DurationVar(&updateInterval, "update-interval", 0, "Time between update checks")

	rootCmd.AddCommand(serviceCmd, versionCmd, updateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	}))
}

// loadConfig layers defaults, the YAML file, the environment and finally
// any flag the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.LoadEnv(envFile); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("download") {
		cfg.DownloadPath = downloadPath
	}
	if flags.Changed("headless") {
		cfg.Headless = headless
	}
	if flags.Changed("start-row") {
		cfg.StartRow = startRow
	}
	if flags.Changed("locators") {
		cfg.LocatorsFile = locatorsFile
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
	if flags.Changed("notify-url") {
		cfg.NotifyURL = notifyURL
	}
	if flags.Changed("notify-api-key") {
		cfg.NotifyAPIKey = notifyAPIKey
	}
	if flags.Changed("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)
	ctx := cmd.Context()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		m.Serve(ctx, cfg.MetricsAddr, logger)
	}

	publisher := app.DialPublisher(ctx, cfg, logger)
	defer publisher.Close()

	outcome, runErr := app.RunOnce(ctx, cfg, app.Deps{
		Logger:    logger,
		Metrics:   m,
		Publisher: publisher,
	})

	if showTable && outcome.Summary != nil {
		app.RenderTable(cmd.OutOrStdout(), outcome)
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	if runErr != nil {
		logger.Error("Run failed", slog.String("kind", outcome.Kind), slog.String("result", string(data)))
		return runErr
	}
	logger.Info("Result", slog.String("result", string(data)))
	return nil
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	prg := &service.Program{
		Logger:         logger,
		Config:         cfg,
		ConfigFile:     configFile,
		EnvFile:        envFile,
		GRPCPort:       grpcPort,
		Interval:       interval,
		Version:        server.Version,
		AutoUpdate:     autoUpdate,
		UpdateInterval: updateInterval,
	}
	if interval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", interval)
	}

	return service.RunServiceCommand(args[0], prg, logger)
}
