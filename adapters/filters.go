package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"order-sla-extractor/internal/site"
	"order-sla-extractor/utils"
)

// TimeBasis selects which timestamp the grid filters on
type TimeBasis string

const (
	// TimeBasisInternal filters on the order management system's own timestamp
	TimeBasisInternal TimeBasis = "odoo"
	// TimeBasisMarketplace filters on the timestamp reported by the marketplace
	TimeBasisMarketplace TimeBasis = "ecom"
)

// ParseTimeBasis accepts "odoo" or "ecom" (case-insensitive)
func ParseTimeBasis(s string) (TimeBasis, error) {
	switch TimeBasis(strings.ToLower(strings.TrimSpace(s))) {
	case TimeBasisInternal:
		return TimeBasisInternal, nil
	case TimeBasisMarketplace:
		return TimeBasisMarketplace, nil
	}
	return "", fmt.Errorf("unknown time basis %q (want odoo or ecom)", s)
}

// AcceptedLimits are the page sizes the grid offers
var AcceptedLimits = []int{100, 200, 300, 500, 1000, 2000}

// SnapLimit rounds n down to the nearest accepted page size, clamped to
// [100, 2000].
func SnapLimit(n int) int {
	snapped := AcceptedLimits[0]
	for _, l := range AcceptedLimits {
		if l <= n {
			snapped = l
		}
	}
	return snapped
}

const filterDateLayout = "2006-01-02"

// FilterOptions is one grid query
type FilterOptions struct {
	From  time.Time
	To    time.Time
	Basis TimeBasis
	Limit int
}

// LastDays covers the calendar days from daysBack days ago through today.
func LastDays(now time.Time, daysBack int, basis TimeBasis, limit int) FilterOptions {
	return FilterOptions{
		From:  now.AddDate(0, 0, -daysBack),
		To:    now,
		Basis: basis,
		Limit: limit,
	}
}

// Preset resolves a named date range: today, yesterday, 7days, 30days,
// this_month or last_month.
func Preset(name string, now time.Time, basis TimeBasis, limit int) (FilterOptions, error) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	opts := FilterOptions{Basis: basis, Limit: limit}
	switch name {
	case "today":
		opts.From, opts.To = day, day
	case "yesterday":
		opts.From, opts.To = day.AddDate(0, 0, -1), day.AddDate(0, 0, -1)
	case "7days":
		opts.From, opts.To = day.AddDate(0, 0, -7), day
	case "30days":
		opts.From, opts.To = day.AddDate(0, 0, -30), day
	case "this_month":
		opts.From, opts.To = day.AddDate(0, 0, 1-day.Day()), day
	case "last_month":
		first := day.AddDate(0, 0, 1-day.Day())
		opts.From, opts.To = first.AddDate(0, -1, 0), first.AddDate(0, 0, -1)
	default:
		return FilterOptions{}, fmt.Errorf("unknown date preset %q", name)
	}
	return opts, nil
}

// FilterConfigurator sets the grid's date range, time basis and page size
type FilterConfigurator struct {
	*BaseAdapter
}

// NewFilterConfigurator creates a filter configurator
func NewFilterConfigurator(base *BaseAdapter) *FilterConfigurator {
	return &FilterConfigurator{BaseAdapter: base}
}

// ApplyFilters sets the filters, submits them and waits for the grid to
// reload. It returns false when the grid did not show rows within the filter
// timeout; errors are reserved for cancellation and script failures.
func (f *FilterConfigurator) ApplyFilters(ctx context.Context, opts FilterOptions) (bool, error) {
	if opts.Basis == "" {
		opts.Basis = TimeBasisMarketplace
	}
	args := site.FilterArgs{
		From:  opts.From.Format(filterDateLayout),
		To:    opts.To.Format(filterDateLayout),
		Basis: string(opts.Basis),
		Limit: SnapLimit(opts.Limit),
	}
	if args.Limit != opts.Limit {
		f.logger.Warnf("Display limit %d not accepted, using %d", opts.Limit, args.Limit)
	}
	f.logger.Infof("Setting filters: %s to %s (%s), limit %d", args.From, args.To, args.Basis, args.Limit)

	var set bool
	if err := f.page.Evaluate(ctx, site.Invoke(f.profile.Scripts.SetFilters, args), &set); err != nil {
		return false, fmt.Errorf("failed to set filters: %w", err)
	}
	if !set {
		f.logger.Warn("Filter inputs did not take the requested values")
		return false, nil
	}

	var submitted bool
	if err := f.page.Evaluate(ctx, f.profile.Scripts.SubmitFilters, &submitted); err != nil {
		return false, fmt.Errorf("failed to submit filters: %w", err)
	}
	if !submitted {
		f.logger.Warn("Filter form not found")
		return false, nil
	}

	return f.waitForLoad(ctx)
}

// waitForLoad watches the loading indicator appear and disappear, then waits
// for data rows. The indicator may come and go between two polls, so its
// transition is not required.
func (f *FilterConfigurator) waitForLoad(ctx context.Context) (bool, error) {
	start := f.clock.Now()
	indicator := f.profile.LoadingIndicator

	err := f.WaitFor(ctx, "loading indicator", f.config.LoadingAppearWait, func(ctx context.Context) (bool, error) {
		return f.page.Exists(ctx, indicator)
	})
	switch {
	case err == nil:
		err = f.WaitFor(ctx, "loading to finish", f.remaining(start), func(ctx context.Context) (bool, error) {
			visible, err := f.page.Visible(ctx, indicator)
			return !visible && err == nil, err
		})
		if err != nil && !utils.IsTimeout(err) {
			return false, err
		}
	case utils.IsTimeout(err):
		f.logger.Debug("Loading indicator not observed")
	default:
		return false, err
	}

	err = f.WaitFor(ctx, "grid rows", f.remaining(start), func(ctx context.Context) (bool, error) {
		return f.page.Exists(ctx, f.profile.GridRows)
	})
	if utils.IsTimeout(err) {
		f.logger.Errorf("Timeout waiting for data load (%v)", f.config.FilterTimeout)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	f.logger.Info("Filters applied")
	return true, nil
}

func (f *FilterConfigurator) remaining(start time.Time) time.Duration {
	left := f.config.FilterTimeout - f.clock.Now().Sub(start)
	if left < 0 {
		return 0
	}
	return left
}
