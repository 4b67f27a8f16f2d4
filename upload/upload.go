// Package upload hands finished downloads to an external destination.
package upload

import (
	"context"
	"log/slog"

	"github.com/vrs-scraper/scrapers"
)

// Report is the aggregated result of one run.
type Report struct {
	RunID   string
	Root    string
	Success bool
	// Items holds each visited row with the files saved for it.
	Items []scrapers.DataItem
	// Files lists every saved path in the order it was written.
	Files []string
}

// Uploader ships a run's files somewhere else.
type Uploader interface {
	Upload(ctx context.Context, r Report) error
}

// Nop logs the report and uploads nothing.
type Nop struct {
	Logger *slog.Logger
}

func (n Nop) Upload(_ context.Context, r Report) error {
	if n.Logger != nil {
		n.Logger.Info("Upload skipped",
			slog.String("run_id", r.RunID),
			slog.Bool("success", r.Success),
			slog.Int("rows", len(r.Items)),
			slog.Int("files", len(r.Files)),
		)
	}
	return nil
}
