package scrapers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vrs-scraper/browser"
	"github.com/vrs-scraper/notify"
	"github.com/vrs-scraper/result"
)

// scrapeTable walks the table from StartRow to the last row.
func (s *VRSScraper) scrapeTable(ctx context.Context, processed *ProcessedFiles) (*Summary, error) {
	summary, err := result.Capture(func() (*Summary, error) {
		return s.walkTable(ctx, processed)
	}).Unwrap()
	if err != nil {
		return nil, stageErr(TableFailed, err)
	}
	return summary, nil
}

func (s *VRSScraper) walkTable(ctx context.Context, processed *ProcessedFiles) (*Summary, error) {
	loc, t := s.Locators, s.Config.Timings

	if err := s.Session.Navigate(ctx, s.Config.TableURL(), browser.WaitNetworkIdle); err != nil {
		return nil, err
	}
	if err := s.Session.WaitVisible(ctx, loc.TableRows, t.NavigationWait); err != nil {
		return nil, err
	}

	rowCount, err := s.Session.Count(ctx, loc.TableRows)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}
	s.Logger.Info(fmt.Sprintf("Found %d rows to process", rowCount))

	summary := &Summary{Items: []DataItem{}}
	for i := max(s.Config.StartRow, 1); i <= rowCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item, accepted := s.attemptRow(ctx, i, rowCount, processed)
		if accepted {
			summary.Items = append(summary.Items, item)
		}
		s.publish(ctx, notify.TypeRowCompleted, notify.RowPayload{
			Row:      i,
			Cells:    item.RowData,
			Files:    len(item.Files),
			Accepted: accepted,
		})
	}

	summary.Completed = len(summary.Items)
	summary.Message = fmt.Sprintf("completed processing all %d rows", summary.Completed)
	return summary, nil
}

// attemptRow tries a row up to RowAttempts times, returning to the table
// between attempts. A row is accepted once it yields cells or files.
func (s *VRSScraper) attemptRow(ctx context.Context, rowIndex, rowCount int, processed *ProcessedFiles) (DataItem, bool) {
	attempts := max(s.Config.RowAttempts, 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()
		item := s.scrapeRow(ctx, rowIndex, rowCount, processed)
		s.metrics.ObserveRow(time.Since(start))

		if !item.Empty() {
			s.metrics.IncRow("accepted")
			return item, true
		}
		if attempt < attempts && ctx.Err() == nil {
			s.Logger.Info("Row yielded nothing, retrying", slog.Int("row", rowIndex), slog.Int("attempt", attempt))
			s.metrics.IncRetry()
			s.resync(ctx)
		}
	}

	s.metrics.IncRow("empty")
	return DataItem{Row: rowIndex}, false
}
