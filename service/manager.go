package service

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	svc "github.com/kardianos/service"

	"github.com/vrs-scraper/config"
)

// Manager handles service management operations
type Manager struct {
	service svc.Service
	program *Program
}

// NewManager creates a new service manager
func NewManager(prg *Program) (*Manager, error) {
	cfg := NewServiceConfig(buildServiceArgs(prg))

	s, err := svc.New(prg, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	return &Manager{
		service: s,
		program: prg,
	}, nil
}

// buildServiceArgs builds the command line the service manager starts us with
func buildServiceArgs(prg *Program) []string {
	args := []string{"service", "run", "--port=" + prg.GRPCPort}

	args = append(args, "--download="+absPath(prg.Config.DownloadPath))
	args = append(args, "--headless="+strconv.FormatBool(prg.Config.Headless))
	args = append(args, "--interval="+prg.Interval.String())
	args = append(args, "--auto-update="+strconv.FormatBool(prg.AutoUpdate))

	if prg.AutoUpdate && prg.UpdateInterval > 0 {
		args = append(args, "--update-interval="+prg.UpdateInterval.String())
	}
	if prg.ConfigFile != "" {
		args = append(args, "--config="+absPath(prg.ConfigFile))
	}
	if prg.EnvFile != "" {
		args = append(args, "--env-file="+absPath(prg.EnvFile))
	}
	if prg.Config.MetricsAddr != "" {
		args = append(args, "--metrics-addr="+prg.Config.MetricsAddr)
	}
	if prg.Config.NotifyURL != "" {
		args = append(args, "--notify-url="+prg.Config.NotifyURL)
	}
	if prg.Config.NotifyAPIKey != "" {
		args = append(args, "--notify-api-key="+prg.Config.NotifyAPIKey)
	}
	if prg.Config.LocatorsFile != "" {
		args = append(args, "--locators="+absPath(prg.Config.LocatorsFile))
	}

	defaults := config.Default()
	if prg.Config.StartRow != defaults.StartRow {
		args = append(args, "--start-row="+strconv.Itoa(prg.Config.StartRow))
	}
	if prg.Config.LogLevel != "" && prg.Config.LogLevel != defaults.LogLevel {
		args = append(args, "--log-level="+prg.Config.LogLevel)
	}

	return args
}

func absPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// Run runs the service (called by the service manager)
func (m *Manager) Run() error {
	return m.service.Run()
}

// Status returns the service status
func (m *Manager) Status() (svc.Status, error) {
	return m.service.Status()
}

// Control performs one of svc.ControlAction on the service.
func (m *Manager) Control(action string) error {
	if action == "uninstall" {
		// Try to stop first
		_ = m.service.Stop()
	}
	return svc.Control(m.service, action)
}

// RunServiceCommand handles service management commands
func RunServiceCommand(cmd string, prg *Program, logger *slog.Logger) error {
	mgr, err := NewManager(prg)
	if err != nil {
		return err
	}

	switch cmd {
	case "run":
		return mgr.Run()

	case "status":
		status, err := mgr.Status()
		if err != nil {
			return fmt.Errorf("failed to get service status: %w", err)
		}
		logger.Info("Service status", slog.String("name", ServiceName), slog.String("status", statusText(status)))
		return nil

	case "install", "uninstall", "start", "stop", "restart":
		if err := mgr.Control(cmd); err != nil {
			return fmt.Errorf("failed to %s service: %w", cmd, err)
		}
		logger.Info("Service "+cmd+" succeeded", slog.String("name", ServiceName))
		if cmd == "install" {
			logger.Info("To start the service, run: vrs-scraper service start")
		}
		return nil
	}

	return fmt.Errorf("unknown service command: %s\nValid commands: install, uninstall, start, stop, restart, status, run", cmd)
}

func statusText(status svc.Status) string {
	switch status {
	case svc.StatusRunning:
		return "Running"
	case svc.StatusStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
