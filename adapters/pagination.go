package adapters

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"order-sla-extractor/internal/site"
	"order-sla-extractor/internal/types"
	"order-sla-extractor/utils"
)

// AdvanceOutcome is the result of trying to move to the next grid page
type AdvanceOutcome int

const (
	// Advanced means the rendered rows changed after a navigation attempt
	Advanced AdvanceOutcome = iota
	// NoMoreData means the grid offers no next page
	NoMoreData
	// Stalled means a next page was offered but no strategy changed the rows
	Stalled
)

func (o AdvanceOutcome) String() string {
	switch o {
	case Advanced:
		return "advanced"
	case NoMoreData:
		return "no_more_data"
	case Stalled:
		return "stalled"
	}
	return fmt.Sprintf("AdvanceOutcome(%d)", int(o))
}

var (
	totalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)trong tổng số\s+([\d.,]+)\s+dòng`),
		regexp.MustCompile(`(?i)of\s+([\d.,]+)\s+entries`),
		regexp.MustCompile(`(?i)tổng cộng:?\s+([\d.,]+)`),
		regexp.MustCompile(`(?i)total:?\s+([\d.,]+)`),
	}
	anyNumber = regexp.MustCompile(`\d[\d.,]*`)
	pageParam = regexp.MustCompile(`([?&]page=)(\d+)`)
)

// ParseTotalRecords reads the total record count from a grid status string
// such as "Showing 1 to 2,000 of 15,847 entries". When no known phrasing
// matches, the largest number in the text is returned with approximate set.
func ParseTotalRecords(text string) (total int, approximate bool, err error) {
	for _, re := range totalPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if n, ok := parseCount(m[1]); ok {
				return n, false, nil
			}
		}
	}

	best, found := 0, false
	for _, tok := range anyNumber.FindAllString(text, -1) {
		if n, ok := parseCount(tok); ok && (!found || n > best) {
			best, found = n, true
		}
	}
	if !found {
		return 0, false, ErrNoTotal
	}
	return best, true, nil
}

// parseCount strips thousands separators of either locale
func parseCount(s string) (int, bool) {
	digits := strings.NewReplacer(",", "", ".", "").Replace(strings.TrimRight(s, ".,"))
	n, err := strconv.Atoi(digits)
	return n, err == nil
}

// Paginator reads pagination state and moves through grid pages
type Paginator struct {
	*BaseAdapter
}

// NewPaginator creates a paginator
func NewPaginator(base *BaseAdapter) *Paginator {
	return &Paginator{BaseAdapter: base}
}

// TotalRecords returns the total number of records the grid reports.
func (p *Paginator) TotalRecords(ctx context.Context) (int, bool, error) {
	text, err := p.page.Text(ctx, p.profile.InfoText)
	if err != nil || strings.TrimSpace(text) == "" {
		var info site.PageInfo
		if evalErr := p.page.Evaluate(ctx, p.profile.Scripts.PageState, &info); evalErr != nil {
			return 0, false, fmt.Errorf("failed to read grid status: %w", evalErr)
		}
		text = info.Info
	}

	total, approximate, err := ParseTotalRecords(text)
	if err != nil {
		p.logger.Warnf("No record count in %q", text)
		return 0, false, err
	}
	if approximate {
		p.logger.Warnf("Unrecognised status text %q, assuming largest number %d", text, total)
	}
	return total, approximate, nil
}

// CurrentPageState reads the pager in one in-page call
func (p *Paginator) CurrentPageState(ctx context.Context) (types.PageState, error) {
	var info site.PageInfo
	if err := p.page.Evaluate(ctx, p.profile.Scripts.PageState, &info); err != nil {
		return types.PageState{}, fmt.Errorf("failed to read page state: %w", err)
	}
	state := types.PageState{
		CurrentPage: info.Current,
		HasNext:     info.HasNext,
		HasPrevious: info.HasPrevious,
	}
	if total, _, err := ParseTotalRecords(info.Info); err == nil {
		state.TotalRecords = total
	}
	return state, nil
}

// Fingerprint returns "cell0|cell1" for the first rows of the current page
func (p *Paginator) Fingerprint(ctx context.Context) ([]string, error) {
	var fp []string
	if err := p.page.Evaluate(ctx, p.profile.Scripts.Fingerprint, &fp); err != nil {
		return nil, fmt.Errorf("failed to fingerprint page: %w", err)
	}
	return fp, nil
}

// navStrategy tries to trigger the next page. attempted is false when the
// strategy does not apply to the current page.
type navStrategy struct {
	name string
	run  func(ctx context.Context) (attempted bool, err error)
}

func (p *Paginator) strategies() []navStrategy {
	return []navStrategy{
		{name: "script click", run: p.scriptClick},
		{name: "ui click", run: p.uiClick},
		{name: "url page parameter", run: p.urlPage},
		{name: "grid paging api", run: p.gridAPI},
	}
}

// Advance moves to the next page. Success is only reported once the page
// fingerprint changed; a next control that is acknowledged without the rows
// refreshing yields Stalled.
func (p *Paginator) Advance(ctx context.Context) (AdvanceOutcome, error) {
	if err := ctx.Err(); err != nil {
		return Stalled, err
	}

	state, err := p.CurrentPageState(ctx)
	if err != nil {
		p.logger.Debugf("Page state unavailable: %v", err)
	} else if !state.HasNext {
		if _, ok := p.FirstVisible(ctx, p.profile.NextButtons); !ok {
			p.logger.Infof("Page %d is the last page", state.CurrentPage)
			return NoMoreData, nil
		}
	}

	before, err := p.Fingerprint(ctx)
	if err != nil {
		return Stalled, err
	}
	if len(before) == 0 {
		p.logger.Info("Grid is empty, nothing to page through")
		return NoMoreData, nil
	}

	for _, s := range p.strategies() {
		attempted, err := s.run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Stalled, ctx.Err()
			}
			p.logger.Debugf("Next page via %s failed: %v", s.name, err)
			continue
		}
		if !attempted {
			continue
		}

		err = p.WaitFor(ctx, "page content change", p.config.PageChangeTimeout, func(ctx context.Context) (bool, error) {
			after, err := p.Fingerprint(ctx)
			if err != nil {
				return false, err
			}
			return len(after) > 0 && !slices.Equal(before, after), nil
		})
		if err == nil {
			p.logger.Debugf("Advanced via %s", s.name)
			return Advanced, nil
		}
		if !utils.IsTimeout(err) {
			return Stalled, err
		}
		p.logger.Warnf("Next page via %s did not change the grid", s.name)
	}

	p.logger.Warn("All navigation strategies exhausted, treating current page as the last")
	return Stalled, nil
}

func (p *Paginator) scriptClick(ctx context.Context) (bool, error) {
	var scrolled bool
	if err := p.page.Evaluate(ctx, p.profile.Scripts.ScrollToPager, &scrolled); err != nil {
		p.logger.Debugf("Scroll to pager failed: %v", err)
	}
	var clicked bool
	if err := p.page.Evaluate(ctx, p.profile.Scripts.ClickNext, &clicked); err != nil {
		return false, err
	}
	return clicked, nil
}

func (p *Paginator) uiClick(ctx context.Context) (bool, error) {
	loc, ok := p.FirstVisible(ctx, p.profile.NextButtons)
	if !ok {
		return false, nil
	}
	if err := p.page.Click(ctx, loc.Selector); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Paginator) urlPage(ctx context.Context) (bool, error) {
	loc, err := p.page.Location(ctx)
	if err != nil {
		return false, err
	}
	m := pageParam.FindStringSubmatchIndex(loc)
	if m == nil {
		return false, nil
	}
	n, err := strconv.Atoi(loc[m[4]:m[5]])
	if err != nil {
		return false, nil
	}
	next := loc[:m[4]] + strconv.Itoa(n+1) + loc[m[5]:]
	if err := p.page.Navigate(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Paginator) gridAPI(ctx context.Context) (bool, error) {
	var ok bool
	if err := p.page.Evaluate(ctx, p.profile.Scripts.GridNextPage, &ok); err != nil {
		return false, err
	}
	return ok, nil
}
