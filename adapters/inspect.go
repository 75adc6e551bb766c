package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"order-sla-extractor/internal/site"
	"order-sla-extractor/internal/types"
)

// GridReport describes what the grid currently renders
type GridReport struct {
	Snapshot    site.GridSnapshot
	State       types.PageState
	Headers     []string
	RowCount    int
	SampleRows  [][]string
	DetailLinks []string
	// Selectors reports which profile selectors match the page
	Selectors map[string]bool
}

// GridInspector reports how the profile's selectors and scripts see the grid.
// It is a troubleshooting aid for when the site layout changes.
type GridInspector struct {
	*BaseAdapter
}

// NewGridInspector creates an inspector
func NewGridInspector(base *BaseAdapter) *GridInspector {
	return &GridInspector{BaseAdapter: base}
}

// Inspect reads the grid once without changing the page
func (g *GridInspector) Inspect(ctx context.Context, samples int) (GridReport, error) {
	var report GridReport
	if err := g.page.Evaluate(ctx, g.profile.Scripts.GridInfoSnapshot, &report.Snapshot); err != nil {
		return report, fmt.Errorf("failed to snapshot grid: %w", err)
	}
	if state, err := NewPaginator(g.BaseAdapter).CurrentPageState(ctx); err == nil {
		report.State = state
	} else {
		g.logger.Debugf("Page state unavailable: %v", err)
	}

	report.Selectors = map[string]bool{}
	for _, sel := range []string{g.profile.GridSelector, g.profile.GridRows, g.profile.LoadingIndicator, g.profile.ExportPayload} {
		ok, err := g.page.Exists(ctx, sel)
		report.Selectors[sel] = ok && err == nil
	}
	for _, chain := range [][]site.Locator{g.profile.LoginMarker, g.profile.NextButtons, g.profile.ExportButtons} {
		for _, l := range chain {
			ok, err := g.page.Exists(ctx, l.Selector)
			report.Selectors[l.Selector] = ok && err == nil
		}
	}

	html, err := g.page.OuterHTML(ctx, g.profile.GridSelector)
	if err != nil {
		return report, fmt.Errorf("failed to read grid HTML: %w", err)
	}
	doc, err := g.ParseHTML(html)
	if err != nil {
		return report, fmt.Errorf("failed to parse grid HTML: %w", err)
	}

	doc.Find("thead th").Each(func(i int, s *goquery.Selection) {
		report.Headers = append(report.Headers, strings.TrimSpace(s.Text()))
	})
	rows := g.ExtractTableRows(doc, "tbody tr")
	report.RowCount = len(rows)
	samples = min(max(samples, 0), len(rows))
	report.SampleRows = rows[:samples]

	doc.Find("tbody tr").Each(func(i int, row *goquery.Selection) {
		if href, err := g.ExtractAttribute(row, "a[href*='/so/detail/']", "href"); err == nil {
			report.DetailLinks = append(report.DetailLinks, href)
		}
	})
	return report, nil
}
