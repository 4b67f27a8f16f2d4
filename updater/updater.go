// Package updater replaces the running binary with newer GitHub releases.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/creativeprojects/go-selfupdate"
)

// Updater handles checking for and applying updates
type Updater struct {
	config *Config
	logger *slog.Logger
}

// New creates a new Updater
func New(config *Config, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{
		config: config,
		logger: logger.With(slog.String("component", "updater")),
	}
}

func (u *Updater) source() (*selfupdate.Updater, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub source: %w", err)
	}

	updater, err := selfupdate.NewUpdater(selfupdate.Config{
		Source: source,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create updater: %w", err)
	}
	return updater, nil
}

// CheckForUpdate checks if a newer version is available
func (u *Updater) CheckForUpdate(ctx context.Context) (*selfupdate.Release, bool, error) {
	u.logger.Info("Checking for updates", slog.String("current", u.config.CurrentVersion))

	updater, err := u.source()
	if err != nil {
		return nil, false, err
	}

	latest, found, err := updater.DetectLatest(ctx, selfupdate.ParseSlug(u.config.Slug()))
	if err != nil {
		return nil, false, fmt.Errorf("failed to detect latest version: %w", err)
	}

	if !found {
		u.logger.Info("No release found", slog.String("os", runtime.GOOS), slog.String("arch", runtime.GOARCH))
		return nil, false, nil
	}

	if latest.LessOrEqual(normalizeVersion(u.config.CurrentVersion)) {
		u.logger.Info("Current version is up to date", slog.String("current", u.config.CurrentVersion))
		return latest, false, nil
	}

	u.logger.Info("New version available", slog.String("latest", latest.Version()), slog.String("current", u.config.CurrentVersion))
	return latest, true, nil
}

// Update downloads and applies the update
func (u *Updater) Update(ctx context.Context, release *selfupdate.Release) error {
	u.logger.Info("Downloading update", slog.String("version", release.Version()))

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	updater, err := u.source()
	if err != nil {
		return err
	}

	if err := updater.UpdateTo(ctx, release, exe); err != nil {
		return fmt.Errorf("failed to update: %w", err)
	}

	u.logger.Info("Successfully updated", slog.String("version", release.Version()))
	return nil
}

// CheckAndUpdate checks for updates and applies if available
func (u *Updater) CheckAndUpdate(ctx context.Context) (bool, error) {
	release, needsUpdate, err := u.CheckForUpdate(ctx)
	if err != nil {
		return false, err
	}

	if !needsUpdate {
		return false, nil
	}

	if err := u.Update(ctx, release); err != nil {
		return false, err
	}

	return true, nil
}

// StartPeriodicCheck applies new releases in the background and calls
// onUpdated after each successful update.
func (u *Updater) StartPeriodicCheck(ctx context.Context, onUpdated func()) {
	go func() {
		// Wait before first check to allow service to stabilize
		select {
		case <-time.After(u.config.StartupDelay):
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(u.config.CheckInterval)
		defer ticker.Stop()

		for {
			updated, err := u.CheckAndUpdate(ctx)
			if err != nil {
				u.logger.Warn("Update check error", slog.Any("error", err))
			} else if updated && onUpdated != nil {
				onUpdated()
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				u.logger.Info("Periodic update check stopped")
				return
			}
		}
	}()
}
