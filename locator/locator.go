// Package locator keeps every DOM selector used against the VRS web app in one
// place, keyed by the role the element plays rather than by its markup path.
package locator

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// Locators maps semantic roles to CSS selectors. Fields ending in Tmpl are
// fmt templates taking a 1-based position (or a tooltip for ArtifactByTooltipTmpl).
type Locators struct {
	StartCard string `yaml:"start_card"`
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	Submit    string `yaml:"submit"`

	TableRows     string `yaml:"table_rows"`
	RowTmpl       string `yaml:"row"`
	RowButtonTmpl string `yaml:"row_button"`

	DetailView            string   `yaml:"detail_view"`
	NestedButtons         string   `yaml:"nested_buttons"`
	NestedButtonTmpl      string   `yaml:"nested_button"`
	ExpandControl         string   `yaml:"expand_control"`
	FileMarkers           []string `yaml:"file_markers"`
	TrackName             string   `yaml:"track_name"`
	CarName               string   `yaml:"car_name"`
	ArtifactScope         string   `yaml:"artifact_scope"`
	ArtifactLink          string   `yaml:"artifact_link"`
	ArtifactByTooltipTmpl string   `yaml:"artifact_by_tooltip"`
	ConfirmButton         string   `yaml:"confirm_button"`
}

const (
	detailTable = "#gwt-debug-dataPackDetailsView > div:nth-child(4) > div > table > tbody"
	pageInfo    = "#gwt-debug-mainWindow > div > main > div:nth-child(2) > div > div:nth-child(3) > div > div > div > div > div > div:nth-child(1) > div.m8.l9.col > div:nth-child(2) > div.m12.l6.col > div > span"
)

// Default returns the selectors matching the current VRS markup.
func Default() *Locators {
	return &Locators{
		StartCard: "#gwt-debug-dataAndSocialContainer > div.IRGHJVC-H-j > div:nth-child(2) > div > div.card-action > a",
		Email:     "#email",
		Password:  "#password",
		Submit:    "#submitButton",

		TableRows:     "table tbody tr",
		RowTmpl:       "table tbody tr:nth-child(%d)",
		RowButtonTmpl: "table tbody tr:nth-child(%d) td.view-details-column a.primary-button",

		DetailView:       "#gwt-debug-dataPackDetailsView",
		NestedButtons:    "td.view-details-column > a",
		NestedButtonTmpl: detailTable + " > tr:nth-child(%d) > td.view-details-column > a",
		ExpandControl:    detailTable + " > tr:nth-child(1) > td > a",
		FileMarkers:      []string{".card-content", ".vrs-list-view", ".session-file"},
		TrackName:        pageInfo + ":nth-child(5) > span",
		CarName:          pageInfo + ":nth-child(7) > span",

		ArtifactScope:         "body",
		ArtifactLink:          `a.gwt-Anchor[data-tooltip$=".sto"]`,
		ArtifactByTooltipTmpl: `a.gwt-Anchor[data-tooltip="%s"]`,
		ConfirmButton:         `a.default-button.text-button[data-vrs-widget-field="defaultButton"]`,
	}
}

// Load overlays the YAML file at path onto the defaults.
func Load(path string) (*Locators, error) {
	l := Default()
	if path == "" {
		return l, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read locators file: %w", err)
	}
	if err := yaml.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("failed to parse locators file %s: %w", path, err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Validate checks that no role is empty and that templates carry their verb.
func (l *Locators) Validate() error {
	plain := map[string]string{
		"start_card":     l.StartCard,
		"email":          l.Email,
		"password":       l.Password,
		"submit":         l.Submit,
		"table_rows":     l.TableRows,
		"detail_view":    l.DetailView,
		"nested_buttons": l.NestedButtons,
		"expand_control": l.ExpandControl,
		"track_name":     l.TrackName,
		"car_name":       l.CarName,
		"artifact_scope": l.ArtifactScope,
		"artifact_link":  l.ArtifactLink,
		"confirm_button": l.ConfirmButton,
	}
	for role, sel := range plain {
		if strings.TrimSpace(sel) == "" {
			return fmt.Errorf("locator %q cannot be empty", role)
		}
	}

	templates := map[string]struct{ tmpl, verb string }{
		"row":                 {l.RowTmpl, "%d"},
		"row_button":          {l.RowButtonTmpl, "%d"},
		"nested_button":       {l.NestedButtonTmpl, "%d"},
		"artifact_by_tooltip": {l.ArtifactByTooltipTmpl, "%s"},
	}
	for role, t := range templates {
		if strings.Count(t.tmpl, t.verb) != 1 {
			return fmt.Errorf("locator %q must contain exactly one %s", role, t.verb)
		}
	}

	if len(l.FileMarkers) == 0 {
		return fmt.Errorf("at least one file marker locator is required")
	}
	return nil
}

// Row selects the top-level table row at a 1-based position.
func (l *Locators) Row(i int) string { return fmt.Sprintf(l.RowTmpl, i) }

// RowButton selects the detail-open control of a top-level row.
func (l *Locators) RowButton(i int) string { return fmt.Sprintf(l.RowButtonTmpl, i) }

// NestedButton selects the open control of a nested detail row.
func (l *Locators) NestedButton(i int) string { return fmt.Sprintf(l.NestedButtonTmpl, i) }

// ArtifactByTooltip selects one artifact link by its tooltip identifier.
func (l *Locators) ArtifactByTooltip(tooltip string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(tooltip)
	return fmt.Sprintf(l.ArtifactByTooltipTmpl, escaped)
}
