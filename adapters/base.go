package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"order-sla-extractor/internal/site"
	"order-sla-extractor/internal/types"
	"order-sla-extractor/utils"

	"github.com/PuerkitoBio/goquery"
)

// BaseAdapter provides common functionality for the site adapters.
// Every adapter drives the same browser page, so they all share one base.
type BaseAdapter struct {
	page    types.Page    // The single automated browser session
	profile *site.Profile // Selectors, markers and scripts of the target site
	config  *types.Config // Timeouts, limits and polling settings
	logger  types.Logger
	clock   types.Clock
}

// NewBaseAdapter creates a base adapter around an already open page.
// A nil clock means the wall clock.
func NewBaseAdapter(page types.Page, profile *site.Profile, config *types.Config, logger types.Logger, clock types.Clock) *BaseAdapter {
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &BaseAdapter{
		page:    page,
		profile: profile,
		config:  config,
		logger:  logger,
		clock:   clock,
	}
}

// WaitFor polls cond until it holds or timeout elapses. On timeout the error
// is a *utils.WaitTimeout.
func (b *BaseAdapter) WaitFor(ctx context.Context, what string, timeout time.Duration, cond utils.Condition) error {
	return utils.Poll(ctx, utils.PollOptionsFrom(b.config, b.clock, what, timeout), cond)
}

// FirstPresent returns the first locator of the chain that matches the current
// DOM. It does not wait.
func (b *BaseAdapter) FirstPresent(ctx context.Context, chain []site.Locator) (site.Locator, bool) {
	for _, loc := range chain {
		ok, err := b.page.Exists(ctx, loc.Selector)
		if err != nil {
			b.logger.Debugf("Locator %s failed: %v", loc.Name, err)
			continue
		}
		if ok {
			return loc, true
		}
	}
	return site.Locator{}, false
}

// FirstVisible is FirstPresent restricted to visible elements.
func (b *BaseAdapter) FirstVisible(ctx context.Context, chain []site.Locator) (site.Locator, bool) {
	for _, loc := range chain {
		ok, err := b.page.Visible(ctx, loc.Selector)
		if err != nil {
			b.logger.Debugf("Locator %s failed: %v", loc.Name, err)
			continue
		}
		if ok {
			return loc, true
		}
	}
	return site.Locator{}, false
}

// WaitForAny polls the chain until one locator matches. The first match in
// chain order wins on every check.
func (b *BaseAdapter) WaitForAny(ctx context.Context, what string, chain []site.Locator, timeout time.Duration) (site.Locator, error) {
	var found site.Locator
	err := b.WaitFor(ctx, what, timeout, func(ctx context.Context) (bool, error) {
		loc, ok := b.FirstPresent(ctx, chain)
		if ok {
			found = loc
		}
		return ok, nil
	})
	return found, err
}

// ParseHTML parses HTML content into a goquery document
func (b *BaseAdapter) ParseHTML(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// ExtractTableRows returns the trimmed cell texts of every row matched by
// rowSelector. Rows without cells are skipped.
func (b *BaseAdapter) ExtractTableRows(doc *goquery.Document, rowSelector string) [][]string {
	var rows [][]string
	doc.Find(rowSelector).Each(func(i int, s *goquery.Selection) {
		var cells []string
		s.Find("td").Each(func(j int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	return rows
}

// ExtractText extracts text from an element using a CSS selector
func (b *BaseAdapter) ExtractText(doc *goquery.Document, selector string) (string, error) {
	element := doc.Find(selector)
	if element.Length() == 0 {
		return "", fmt.Errorf("element not found with selector: %s", selector)
	}

	return strings.TrimSpace(element.Text()), nil
}

// ExtractAttribute extracts an attribute value from an element
func (b *BaseAdapter) ExtractAttribute(doc *goquery.Selection, selector string, attribute string) (string, error) {
	element := doc.Find(selector)
	if element.Length() == 0 {
		return "", fmt.Errorf("element not found with selector: %s", selector)
	}

	value, exists := element.Attr(attribute)
	if !exists {
		return "", fmt.Errorf("attribute %s not found on element %s", attribute, selector)
	}

	return value, nil
}
