package scrapers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vrs-scraper/browser"
	"github.com/vrs-scraper/result"
)

// expandRow opens the first row of the nested detail table. It reports
// false when there is nothing to expand.
func (s *VRSScraper) expandRow(ctx context.Context) bool {
	loc, t := s.Locators, s.Config.Timings

	if err := s.settle(ctx, t.PreExpand); err != nil {
		return false
	}
	if err := s.Session.WaitVisible(ctx, loc.ExpandControl, t.ElementTimeout); err != nil {
		s.Logger.Debug("Expand button selector not found")
	}

	clicked, err := s.Session.ClickDOM(ctx, loc.ExpandControl)
	if err != nil || !clicked {
		s.Logger.Debug("Expand button not found or not clickable", slog.Any("error", err))
		return false
	}

	s.Logger.Debug("Clicked expand button")
	_ = s.settle(ctx, t.ExpandSettle)
	return true
}

// scrapeRow opens one table row and downloads the files of its nested
// items. It never fails; on error it returns to the table and yields an
// empty item.
func (s *VRSScraper) scrapeRow(ctx context.Context, rowIndex, totalRows int, processed *ProcessedFiles) DataItem {
	item, err := result.Capture(func() (DataItem, error) {
		return s.visitRow(ctx, rowIndex, totalRows, processed)
	}).Unwrap()
	if err != nil {
		s.recordError(RowFailed, err, slog.Int("row", rowIndex))
		s.resync(ctx)
		return DataItem{Row: rowIndex}
	}
	return item
}

func (s *VRSScraper) visitRow(ctx context.Context, rowIndex, totalRows int, processed *ProcessedFiles) (DataItem, error) {
	loc, t := s.Locators, s.Config.Timings
	item := DataItem{Row: rowIndex}

	s.Logger.Info(fmt.Sprintf("------ Processing row %d/%d ------", rowIndex, totalRows))

	current, _ := s.Session.URL(ctx)
	if !strings.Contains(current, s.Config.TableMarker) {
		if err := s.Session.Navigate(ctx, s.Config.TableURL(), browser.WaitLoad); err != nil {
			return item, err
		}
	}

	if err := s.Session.WaitVisible(ctx, loc.TableRows, t.NavigationWait); err != nil {
		return item, err
	}

	button := loc.RowButton(rowIndex)
	if ok, err := s.Session.Exists(ctx, button); err != nil {
		return item, err
	} else if !ok {
		s.Logger.Debug("Row has no details button", slog.Int("row", rowIndex))
		return item, nil
	}

	// Cell text is gone once the detail view replaces the table.
	rowHTML, err := s.Session.OuterHTML(ctx, loc.Row(rowIndex))
	if err != nil {
		return item, err
	}
	if item.RowData, err = parseCells(rowHTML); err != nil {
		return item, err
	}

	if err := s.Session.ClickNavigate(ctx, button, browser.ClickDOM, t.NavigationWait); err != nil {
		return item, err
	}

	if ok, _ := s.Session.Exists(ctx, loc.DetailView); !ok {
		s.Logger.Info("Not a detail view", slog.Int("row", rowIndex))
		return item, nil
	}

	_ = s.Session.WaitPresent(ctx, loc.NestedButtons, t.ElementTimeout)
	s.expandRow(ctx)

	count, err := s.Session.Count(ctx, loc.NestedButtons)
	if err != nil {
		return item, err
	}
	item.Files = s.scrapeNested(ctx, rowIndex, count, processed)

	if err := s.Session.Navigate(ctx, s.Config.TableURL(), browser.WaitNetworkIdle); err != nil {
		s.Logger.Debug("Return to table did not settle", slog.Any("error", err))
	}
	return item, nil
}

// scrapeNested visits at most MaxNestedItems nested items in order. A failing
// item resynchronises to the table, which also ends the row.
func (s *VRSScraper) scrapeNested(ctx context.Context, rowIndex, count int, processed *ProcessedFiles) []FileRecord {
	loc, t := s.Locators, s.Config.Timings

	limit := min(count, s.Config.MaxNestedItems)
	if count > limit {
		s.Logger.Info(fmt.Sprintf("Skipping %d nested items past the first %d", count-limit, limit), slog.Int("row", rowIndex))
	}

	files := []FileRecord{}
	for i := 0; i < limit; i++ {
		if ctx.Err() != nil {
			break
		}

		if i != 0 {
			if err := s.Session.WaitPresent(ctx, loc.ExpandControl, t.ElementTimeout); err != nil {
				s.Logger.Debug("Expand control missing before nested item", slog.Int("item", i+1), slog.Any("error", err))
			}
			s.expandRow(ctx)
		}

		s.Logger.Info(fmt.Sprintf("Processing button %d/%d", i+1, count))
		s.metrics.IncNested()

		var got []FileRecord
		err := result.Do(func() error {
			var err error
			got, err = s.openNested(ctx, i+1, processed)
			return err
		})
		files = append(files, got...)
		if err != nil {
			s.recordError(RowFailed, err, slog.Int("row", rowIndex), slog.Int("item", i+1))
			s.resync(ctx)
			break
		}
	}
	return files
}

// openNested opens nested item n (1-based), downloads its files if it has
// any, and goes back to the detail view.
func (s *VRSScraper) openNested(ctx context.Context, n int, processed *ProcessedFiles) ([]FileRecord, error) {
	loc, t := s.Locators, s.Config.Timings
	button := loc.NestedButton(n)

	if err := s.Session.WaitPresent(ctx, button, t.ElementTimeout); err != nil {
		return nil, err
	}
	if err := s.Session.ClickNavigate(ctx, button, browser.ClickNative, t.NavigationWait); err != nil {
		return nil, err
	}

	if !s.hasFiles(ctx) {
		s.Logger.Info("No files found, going back")
		if err := s.Session.Back(ctx); err != nil {
			return nil, err
		}
		_ = s.Session.WaitNetworkIdle(ctx, t.NavigationWait)
		return nil, nil
	}

	s.Logger.Info("Files found, scraping...")
	files := s.scrapeFiles(ctx, processed)

	if err := s.Session.Back(ctx); err != nil {
		return files, err
	}
	if err := s.Session.WaitPresent(ctx, button, t.ElementTimeout); err != nil {
		return files, err
	}
	return files, nil
}

func (s *VRSScraper) hasFiles(ctx context.Context) bool {
	for _, marker := range s.Locators.FileMarkers {
		if ok, _ := s.Session.Exists(ctx, marker); ok {
			return true
		}
	}
	return false
}

// resync returns to the canonical table URL.
func (s *VRSScraper) resync(ctx context.Context) {
	if err := s.Session.Navigate(ctx, s.Config.TableURL(), browser.WaitLoad); err != nil {
		s.Logger.Warn("Failed to return to table", slog.Any("error", err))
	}
}
