package scrapers

import (
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// artifact is one download link listed in a detail view.
type artifact struct {
	Tooltip string
	Text    string
}

// Name is the on-page file name, falling back to the tooltip's last segment.
func (a artifact) Name() string {
	if a.Text != "" {
		return a.Text
	}
	return path.Base(a.Tooltip)
}

// parseCells returns the trimmed text of every cell in a <tr> fragment.
func parseCells(rowHTML string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<table><tbody>" + rowHTML + "</tbody></table>"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse row: %w", err)
	}

	cells := []string{}
	doc.Find("tr").First().Find("td").Each(func(_ int, s *goquery.Selection) {
		cells = append(cells, strings.TrimSpace(s.Text()))
	})
	return cells, nil
}

// parseArtifacts lists the links matching sel in document order.
func parseArtifacts(scopeHTML, sel string) ([]artifact, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(scopeHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse detail view: %w", err)
	}

	var artifacts []artifact
	doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
		tooltip, _ := s.Attr("data-tooltip")
		artifacts = append(artifacts, artifact{
			Tooltip: tooltip,
			Text:    strings.TrimSpace(s.Text()),
		})
	})
	return artifacts, nil
}

var pathSeparators = strings.NewReplacer("/", "-", `\`, "-")

// compact removes all whitespace and path separators, as car and track names
// become a folder and part of a file name. Names made only of dots fall back.
func compact(s, fallback string) string {
	s = pathSeparators.Replace(strings.Join(strings.Fields(s), ""))
	if strings.Trim(s, ".") == "" {
		return fallback
	}
	return s
}
