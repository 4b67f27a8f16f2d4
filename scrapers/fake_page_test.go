package scrapers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/vrs-scraper/browser"
	"github.com/vrs-scraper/config"
	"github.com/vrs-scraper/locator"
)

const testRoot = "/downloads"

type fakeArtifact struct {
	tooltip string
	text    string
	// diskName is what the browser writes; defaults to text.
	diskName string
	// age backdates the written file.
	age    time.Duration
	noFile bool
}

type fakeNested struct {
	artifacts []fakeArtifact
}

type fakeRow struct {
	cells      []string
	noButton   bool
	notDetail  bool
	car, track string
	nested     []fakeNested
	// failNested makes clicking that nested item (1-based) fail.
	failNested int
}

// fakePage is an in-memory model of the data pack app.
type fakePage struct {
	t   *testing.T
	cfg *config.Config
	loc *locator.Locators
	fs  afero.Fs

	rows          []fakeRow
	hideLoginForm bool
	confirmDialog bool
	// noStartCard hides the home page's start card.
	noStartCard bool
	// failNativeClick makes native clicks on the home page fail.
	failNativeClick bool

	view   string
	url    string
	row    int
	nested int
	typed  map[string]string
	closed bool

	navigations  []string
	openedRows   []int
	buttonChecks map[int]int
	nestedOpened map[int][]int
	expands      int
	confirms     int
	downloads    map[string]int
	domClicks    []string
}

var _ browser.Session = (*fakePage)(nil)

func newFakePage(t *testing.T, cfg *config.Config, fs afero.Fs, rows []fakeRow) *fakePage {
	t.Helper()
	return &fakePage{
		t:            t,
		cfg:          cfg,
		loc:          locator.Default(),
		fs:           fs,
		rows:         rows,
		view:         "blank",
		url:          "about:blank",
		typed:        map[string]string{},
		buttonChecks: map[int]int{},
		nestedOpened: map[int][]int{},
		downloads:    map[string]int{},
	}
}

func (p *fakePage) currentRow() *fakeRow {
	if p.row < 1 || p.row > len(p.rows) {
		return nil
	}
	return &p.rows[p.row-1]
}

func (p *fakePage) currentArtifacts() []fakeArtifact {
	r := p.currentRow()
	if r == nil || p.nested < 1 || p.nested > len(r.nested) {
		return nil
	}
	return r.nested[p.nested-1].artifacts
}

func (p *fakePage) present(sel string) bool {
	loc := p.loc
	switch p.view {
	case "home":
		return sel == loc.StartCard && !p.noStartCard
	case "login":
		if p.hideLoginForm {
			return false
		}
		return sel == loc.Email || sel == loc.Password || sel == loc.Submit
	case "table":
		if sel == loc.TableRows {
			return len(p.rows) > 0
		}
		for i := range p.rows {
			if sel == loc.Row(i+1) {
				return true
			}
			if sel == loc.RowButton(i+1) {
				p.buttonChecks[i+1]++
				return !p.rows[i].noButton
			}
		}
	case "detail":
		r := p.currentRow()
		switch sel {
		case loc.DetailView:
			return true
		case loc.NestedButtons, loc.ExpandControl:
			return len(r.nested) > 0
		}
		for i := range r.nested {
			if sel == loc.NestedButton(i+1) {
				return true
			}
		}
	case "files":
		arts := p.currentArtifacts()
		switch sel {
		case loc.FileMarkers[0]:
			return len(arts) > 0
		case loc.ArtifactLink:
			return len(arts) > 0
		case loc.ConfirmButton:
			return p.confirmDialog
		case loc.CarName, loc.TrackName, loc.ArtifactScope:
			return true
		}
		for _, a := range arts {
			if sel == loc.ArtifactByTooltip(a.tooltip) {
				return true
			}
		}
	}
	return false
}

func (p *fakePage) click(sel string) error {
	loc := p.loc
	if !p.present(sel) {
		return fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
	}

	switch p.view {
	case "home":
		p.view = "login"
	case "login":
		if sel == loc.Submit {
			p.view = "dashboard"
			p.url = p.cfg.BaseURL + "/#/Dashboard"
		}
	case "table":
		for i := range p.rows {
			if sel != loc.RowButton(i+1) {
				continue
			}
			p.openedRows = append(p.openedRows, i+1)
			p.row = i + 1
			p.url = fmt.Sprintf("%s/#/DataPack/%d", p.cfg.BaseURL, i+1)
			if p.rows[i].notDetail {
				p.view = "other"
			} else {
				p.view = "detail"
			}
		}
	case "detail":
		if sel == loc.ExpandControl {
			p.expands++
			return nil
		}
		r := p.currentRow()
		for i := range r.nested {
			if sel != loc.NestedButton(i+1) {
				continue
			}
			p.nestedOpened[p.row] = append(p.nestedOpened[p.row], i+1)
			if r.failNested == i+1 {
				return errors.New("node is detached from document")
			}
			p.nested = i + 1
			p.view = "files"
			p.url = fmt.Sprintf("%s/#/DataPack/%d/%d", p.cfg.BaseURL, p.row, i+1)
		}
	case "files":
		if sel == loc.ConfirmButton {
			p.confirms++
			return nil
		}
		for _, a := range p.currentArtifacts() {
			if sel == loc.ArtifactByTooltip(a.tooltip) {
				p.downloads[a.tooltip]++
				p.write(a)
			}
		}
	}
	return nil
}

func (p *fakePage) write(a fakeArtifact) {
	if a.noFile {
		return
	}
	name := a.diskName
	if name == "" {
		name = a.text
	}
	path := filepath.Join(testRoot, name)
	require.NoError(p.t, afero.WriteFile(p.fs, path, []byte("telemetry:"+a.tooltip), 0o644))
	mtime := time.Now().Add(-a.age)
	require.NoError(p.t, p.fs.Chtimes(path, mtime, mtime))
}

func (p *fakePage) Navigate(_ context.Context, url string, _ browser.WaitUntil) error {
	p.navigations = append(p.navigations, url)
	p.url = url
	p.row, p.nested = 0, 0
	switch url {
	case p.cfg.HomeURL():
		p.view = "home"
	case p.cfg.TableURL():
		p.view = "table"
	default:
		p.view = "other"
	}
	return nil
}

func (p *fakePage) Back(context.Context) error {
	switch p.view {
	case "files":
		p.view = "detail"
		p.nested = 0
		p.url = fmt.Sprintf("%s/#/DataPack/%d", p.cfg.BaseURL, p.row)
	case "detail", "other":
		p.view = "table"
		p.row = 0
		p.url = p.cfg.TableURL()
	}
	return nil
}

func (p *fakePage) URL(context.Context) (string, error) { return p.url, nil }

func (p *fakePage) WaitNetworkIdle(context.Context, time.Duration) error { return nil }

func (p *fakePage) WaitVisible(_ context.Context, sel string, _ time.Duration) error {
	if !p.present(sel) {
		return fmt.Errorf("%w: %s not visible", browser.ErrNotFound, sel)
	}
	return nil
}

func (p *fakePage) WaitPresent(ctx context.Context, sel string, timeout time.Duration) error {
	return p.WaitVisible(ctx, sel, timeout)
}

func (p *fakePage) Exists(_ context.Context, sel string) (bool, error) {
	return p.present(sel), nil
}

func (p *fakePage) Count(_ context.Context, sel string) (int, error) {
	switch {
	case p.view == "table" && sel == p.loc.TableRows:
		return len(p.rows), nil
	case p.view == "detail" && sel == p.loc.NestedButtons:
		return len(p.currentRow().nested), nil
	}
	return 0, nil
}

func (p *fakePage) Click(_ context.Context, sel string) error {
	return p.click(sel)
}

func (p *fakePage) ClickDOM(_ context.Context, sel string) (bool, error) {
	p.domClicks = append(p.domClicks, sel)
	if !p.present(sel) {
		return false, nil
	}
	return true, p.click(sel)
}

func (p *fakePage) ClickNavigate(_ context.Context, sel string, mode browser.ClickMode, _ time.Duration) error {
	if p.view == "home" && mode == browser.ClickNative && p.failNativeClick {
		return fmt.Errorf("failed to click %s: element is not interactable", sel)
	}
	if mode == browser.ClickDOM {
		p.domClicks = append(p.domClicks, sel)
	}
	return p.click(sel)
}

func (p *fakePage) Type(_ context.Context, sel, text string) error {
	if !p.present(sel) {
		return fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
	}
	p.typed[sel] += text
	return nil
}

func (p *fakePage) Text(_ context.Context, sel string) (string, error) {
	r := p.currentRow()
	if p.view != "files" || r == nil {
		return "", fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
	}
	switch sel {
	case p.loc.CarName:
		return r.car, nil
	case p.loc.TrackName:
		return r.track, nil
	}
	return "", fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
}

func (p *fakePage) OuterHTML(_ context.Context, sel string) (string, error) {
	if p.view == "table" {
		for i, r := range p.rows {
			if sel != p.loc.Row(i+1) {
				continue
			}
			var b strings.Builder
			b.WriteString("<tr>")
			for _, c := range r.cells {
				fmt.Fprintf(&b, "<td> %s </td>", html.EscapeString(c))
			}
			b.WriteString(`<td class="view-details-column"><a class="primary-button">View</a></td></tr>`)
			return b.String(), nil
		}
	}
	if p.view == "files" && sel == p.loc.ArtifactScope {
		var b strings.Builder
		b.WriteString("<body><div class=\"card-content\">")
		for _, a := range p.currentArtifacts() {
			fmt.Fprintf(&b, `<a class="gwt-Anchor" data-tooltip="%s">%s</a>`, html.EscapeString(a.tooltip), html.EscapeString(a.text))
		}
		b.WriteString("</div></body>")
		return b.String(), nil
	}
	return "", fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

// watchingPage also reports download events.
type watchingPage struct {
	*fakePage
	suggested string
}

func (w *watchingPage) WaitDownload(context.Context, time.Time, time.Duration) (browser.Download, error) {
	return browser.Download{GUID: "guid-1", SuggestedName: w.suggested, Completed: time.Now()}, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.DownloadPath = testRoot
	cfg.Username = "driver@example.com"
	cfg.Password = "secret"
	cfg.Timings = config.Timings{RecentWindow: 10 * time.Second}
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tableRows returns n plain rows with one detail view each and no nested items.
func tableRows(n int) []fakeRow {
	rows := make([]fakeRow, n)
	for i := range rows {
		rows[i] = fakeRow{cells: []string{fmt.Sprintf("Pack %d", i+1), "GT3"}}
	}
	return rows
}

func newTestScraper(t *testing.T, page browser.Session, fs afero.Fs, cfg *config.Config, opts ...Option) *VRSScraper {
	t.Helper()
	opts = append([]Option{
		WithFs(fs),
		WithLauncher(func(context.Context, browser.Options) (browser.Session, error) {
			return page, nil
		}),
	}, opts...)
	return NewVRSScraper(cfg, testLogger(), opts...)
}
