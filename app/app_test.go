package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/vrs-scraper/browser"
	"github.com/vrs-scraper/config"
	"github.com/vrs-scraper/metrics"
	"github.com/vrs-scraper/notify"
	"github.com/vrs-scraper/scrapers"
	"github.com/vrs-scraper/upload"
)

// emptySite accepts every interaction and lists no rows.
type emptySite struct{ closed bool }

func (*emptySite) Navigate(context.Context, string, browser.WaitUntil) error { return nil }
func (*emptySite) Back(context.Context) error                                { return nil }
func (*emptySite) URL(context.Context) (string, error)                       { return "", nil }
func (*emptySite) WaitNetworkIdle(context.Context, time.Duration) error      { return nil }
func (*emptySite) WaitVisible(context.Context, string, time.Duration) error  { return nil }
func (*emptySite) WaitPresent(context.Context, string, time.Duration) error  { return nil }
func (*emptySite) Exists(context.Context, string) (bool, error)              { return false, nil }
func (*emptySite) Count(context.Context, string) (int, error)                { return 0, nil }
func (*emptySite) Click(context.Context, string) error                       { return nil }
func (*emptySite) ClickDOM(context.Context, string) (bool, error)            { return true, nil }
func (*emptySite) Type(context.Context, string, string) error                { return nil }
func (*emptySite) Text(context.Context, string) (string, error)              { return "", nil }
func (*emptySite) OuterHTML(context.Context, string) (string, error)         { return "", nil }
func (s *emptySite) Close() error                                            { s.closed = true; return nil }
func (*emptySite) ClickNavigate(context.Context, string, browser.ClickMode, time.Duration) error {
	return nil
}

type recordingPublisher struct{ events []notify.Event }

func (r *recordingPublisher) Publish(_ context.Context, ev notify.Event) error {
	r.events = append(r.events, ev)
	return nil
}
func (r *recordingPublisher) Close() error { return nil }

type recordingUploader struct{ reports []upload.Report }

func (r *recordingUploader) Upload(_ context.Context, rep upload.Report) error {
	r.reports = append(r.reports, rep)
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.DownloadPath = "/downloads"
	cfg.Username, cfg.Password = "driver@example.com", "secret"
	cfg.Timings = config.Timings{}
	return cfg
}

func testDeps(launch scrapers.Launcher) (Deps, *recordingPublisher, *recordingUploader) {
	pub := &recordingPublisher{}
	up := &recordingUploader{}
	return Deps{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Launcher:  launch,
		Fs:        afero.NewMemMapFs(),
		Metrics:   metrics.New(),
		Publisher: pub,
		Uploader:  up,
	}, pub, up
}

func TestRunOnceSuccess(t *testing.T) {
	site := &emptySite{}
	deps, pub, up := testDeps(func(context.Context, browser.Options) (browser.Session, error) {
		return site, nil
	})

	outcome, err := RunOnce(context.Background(), testConfig(), deps)
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.NotEmpty(t, outcome.RunID)
	require.Equal(t, "completed processing all 0 rows", outcome.Summary.Message)
	require.True(t, site.closed)

	require.Len(t, up.reports, 1)
	require.Equal(t, outcome.RunID, up.reports[0].RunID)
	require.True(t, up.reports[0].Success)
	require.Equal(t, outcome.Summary.Items, up.reports[0].Items)

	require.Len(t, pub.events, 1)
	require.Equal(t, notify.TypeRunCompleted, pub.events[0].Type)
	require.Equal(t, outcome.RunID, pub.events[0].RunID)
	require.Equal(t, 1.0, testutil.ToFloat64(deps.Metrics.LastRunSuccess))
}

func TestRunOnceFailure(t *testing.T) {
	deps, pub, up := testDeps(func(context.Context, browser.Options) (browser.Session, error) {
		return nil, fmt.Errorf("%w: chrome not found", browser.ErrLaunch)
	})

	outcome, err := RunOnce(context.Background(), testConfig(), deps)
	require.Error(t, err)
	require.True(t, errors.Is(err, browser.ErrLaunch))
	require.False(t, outcome.Success)
	require.Equal(t, string(scrapers.BrowserLaunchFailed), outcome.Kind)

	require.Empty(t, up.reports)
	require.Len(t, pub.events, 1)
	require.Equal(t, 1.0, testutil.ToFloat64(deps.Metrics.ErrorsTotal.WithLabelValues("BrowserLaunchFailed")))
	require.Equal(t, 0.0, testutil.ToFloat64(deps.Metrics.LastRunSuccess))
}

func TestRunOnceMissingLocatorsFile(t *testing.T) {
	launched := false
	deps, pub, _ := testDeps(func(context.Context, browser.Options) (browser.Session, error) {
		launched = true
		return &emptySite{}, nil
	})
	cfg := testConfig()
	cfg.LocatorsFile = filepath.Join(t.TempDir(), "missing.yaml")

	outcome, err := RunOnce(context.Background(), cfg, deps)
	require.Error(t, err)
	require.False(t, outcome.Success)
	require.Equal(t, string(scrapers.Unknown), outcome.Kind)
	require.False(t, launched)
	require.Len(t, pub.events, 1)
}

func TestRenderTable(t *testing.T) {
	outcome := &Outcome{
		Success: true,
		Rows:    2,
		Files:   1,
		Summary: &scrapers.Summary{Items: []scrapers.DataItem{
			{Row: 60, RowData: []string{"Week 1", "Spa"}, Files: []scrapers.FileRecord{
				{Name: "lap1.sto", Path: "/d/Audi/(Audi_Spa)lap1.sto"},
			}},
			{Row: 61, RowData: []string{"Week 2"}},
		}},
	}

	var buf bytes.Buffer
	RenderTable(&buf, outcome)

	out := buf.String()
	require.Contains(t, out, "Week 1 | Spa")
	require.Contains(t, out, "(Audi_Spa)lap1.sto")
	require.Contains(t, out, "Week 2")
}
