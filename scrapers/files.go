package scrapers

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/vrs-scraper/browser"
	"github.com/vrs-scraper/notify"
	"github.com/vrs-scraper/result"
)

const (
	unknownCar   = "unknown-car"
	unknownTrack = "unknown-track"
)

// FileName is the on-disk name of an artifact inside its car folder.
func FileName(info PageInfo, name string) string {
	return fmt.Sprintf("(%s_%s)%s", info.CarName, info.TrackName, pathSeparators.Replace(name))
}

// scrapeFiles downloads every new artifact of the open detail view. It never
// fails: errors are logged and whatever was saved is returned.
func (s *VRSScraper) scrapeFiles(ctx context.Context, processed *ProcessedFiles) []FileRecord {
	files, err := result.Capture(func() ([]FileRecord, error) {
		return s.extractFiles(ctx, processed)
	}).Unwrap()
	if err != nil {
		s.recordError(ArtifactFailed, err, slog.String("stage", "scrapeFiles"))
		return []FileRecord{}
	}
	return files
}

func (s *VRSScraper) extractFiles(ctx context.Context, processed *ProcessedFiles) ([]FileRecord, error) {
	loc, t := s.Locators, s.Config.Timings

	if err := s.Session.WaitPresent(ctx, loc.ArtifactLink, t.ArtifactTimeout); err != nil {
		s.Logger.Debug("No artifacts in detail view", slog.Any("error", err))
		return []FileRecord{}, nil
	}
	if err := s.settle(ctx, t.ListSettle); err != nil {
		return nil, err
	}

	info := s.pageInfo(ctx)
	scope, err := s.Session.OuterHTML(ctx, loc.ArtifactScope)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact list: %w", err)
	}
	artifacts, err := parseArtifacts(scope, loc.ArtifactLink)
	if err != nil {
		return nil, err
	}

	carDir, err := s.Store.CarDir(info.CarName)
	if err != nil {
		return nil, err
	}

	files := []FileRecord{}
	attempted := 0
	for _, a := range artifacts {
		if ctx.Err() != nil {
			break
		}

		name := a.Name()
		key := Key(a.Tooltip, name)
		dst := filepath.Join(carDir, FileName(info, name))

		if processed.Has(key) && s.Store.Exists(dst) {
			s.metrics.IncSkipped()
			continue
		}

		if attempted > 0 {
			if err := s.settle(ctx, t.Pacing); err != nil {
				break
			}
		}
		attempted++

		rec, err := result.Capture(func() (FileRecord, error) {
			return s.downloadArtifact(ctx, a, name, dst)
		}).Unwrap()
		if err != nil {
			s.recordError(ArtifactFailed, err, slog.String("artifact", a.Tooltip))
			continue
		}

		processed.Add(key)
		files = append(files, rec)
		s.metrics.IncSaved()
		s.publish(ctx, notify.TypeFileSaved, notify.FilePayload{Name: rec.Name, URL: rec.URL, Path: rec.Path})
	}

	if len(files) > 0 {
		s.Logger.Info(fmt.Sprintf("Downloaded %d new files out of %d total", len(files), len(artifacts)),
			slog.String("car", info.CarName), slog.String("track", info.TrackName))
	}
	return files, nil
}

// downloadArtifact triggers one download and moves the file to dst.
func (s *VRSScraper) downloadArtifact(ctx context.Context, a artifact, name, dst string) (FileRecord, error) {
	loc, t := s.Locators, s.Config.Timings
	since := time.Now()

	clicked, err := s.Session.ClickDOM(ctx, loc.ArtifactByTooltip(a.Tooltip))
	if err != nil {
		return FileRecord{}, err
	}
	if !clicked {
		return FileRecord{}, fmt.Errorf("%w: artifact %s", browser.ErrNotFound, a.Tooltip)
	}

	if ok, _ := s.Session.Exists(ctx, loc.ConfirmButton); ok {
		if err := s.Session.Click(ctx, loc.ConfirmButton); err != nil {
			s.Logger.Debug("Confirm click failed, clicking in page", slog.Any("error", err))
			_, _ = s.Session.ClickDOM(ctx, loc.ConfirmButton)
		}
	}

	candidates := []string{name}
	if w, ok := s.Session.(browser.DownloadWatcher); ok {
		d, err := w.WaitDownload(ctx, since, t.DownloadTimeout)
		if err != nil {
			s.Logger.Debug("No download event, falling back to directory scan", slog.Any("error", err))
		} else if d.SuggestedName != "" {
			candidates = []string{d.SuggestedName, name}
		}
	}

	src, err := s.Store.Locate(ctx, candidates...)
	if err != nil {
		return FileRecord{}, err
	}
	if err := s.Store.Move(src, dst); err != nil {
		return FileRecord{}, err
	}

	s.Logger.Debug("Saved artifact", slog.String("name", name), slog.String("path", dst))
	return FileRecord{Name: name, URL: a.Tooltip, Path: dst}, nil
}

// pageInfo reads the car and track of the open detail view.
func (s *VRSScraper) pageInfo(ctx context.Context) PageInfo {
	car, _ := s.Session.Text(ctx, s.Locators.CarName)
	track, _ := s.Session.Text(ctx, s.Locators.TrackName)
	return PageInfo{
		CarName:   compact(car, unknownCar),
		TrackName: compact(track, unknownTrack),
	}
}
