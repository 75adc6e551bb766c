// Package extractor runs the order pipeline end to end: session, filters,
// page traversal, product enrichment and SLA evaluation.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"order-sla-extractor/adapters"
	"order-sla-extractor/internal/site"
	"order-sla-extractor/internal/types"
	"order-sla-extractor/session"
	"order-sla-extractor/sla"
	"order-sla-extractor/utils"
)

// Stop reasons reported in the run summary
const (
	StopNoMoreData = "no_more_data"
	StopStalled    = "stalled"
	StopMaxPages   = "max_pages"
	StopCancelled  = "cancelled"
)

// Options are the per-run inputs
type Options struct {
	Credentials adapters.Credentials
	// Filters is applied before extraction; nil keeps the grid as it is.
	Filters      *adapters.FilterOptions
	Rules        []types.SLARule
	WarningHours []float64
	// Location is the timezone of grid timestamps and SLA calendar days.
	Location *time.Location
}

// Dependencies are the collaborators a run drives
type Dependencies struct {
	Page    types.Page
	Profile *site.Profile
	Config  *types.Config
	Logger  *logrus.Logger
	Clock   types.Clock
	Store   session.Store
	HTTP    *utils.HTTPClient
}

// Result is everything one run produced
type Result struct {
	Summary  types.RunSummary
	Orders   []types.OrderRecord
	Statuses []types.SLAStatus
	Alerts   []types.Alert
	Report   sla.Report
	Started  time.Time
}

// OrderExtractor orchestrates one pipeline run over a single browser session
type OrderExtractor struct {
	deps Dependencies
	opts Options
}

// NewOrderExtractor creates an extractor
func NewOrderExtractor(deps Dependencies, opts Options) *OrderExtractor {
	if deps.Clock == nil {
		deps.Clock = types.SystemClock{}
	}
	if deps.Profile == nil {
		deps.Profile = site.DefaultProfile()
	}
	if deps.Config == nil {
		deps.Config = types.DefaultConfig()
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if len(opts.WarningHours) == 0 {
		opts.WarningHours = deps.Config.WarningHours
	}
	return &OrderExtractor{deps: deps, opts: opts}
}

// pageLoop is the state carried across grid pages
type pageLoop struct {
	seen       map[string]bool
	orders     []types.OrderRecord
	details    map[string]types.ProductDetail
	pages      int
	degraded   int
	duplicates int
	stop       string
}

// Run executes the pipeline. Only authentication failure, a run that cannot
// read any page, or cancellation before the first page return an error;
// every other problem is reflected in the summary.
func (e *OrderExtractor) Run(ctx context.Context) (*Result, error) {
	d := e.deps
	runID := uuid.NewString()
	log := d.Logger.WithField("run_id", runID)
	start := d.Clock.Now()
	log.Infof("Starting order extraction at %v", start.Format("15:04:05.000"))

	base := adapters.NewBaseAdapter(d.Page, d.Profile, d.Config, log, d.Clock)

	// Step 1: session
	log.Info("Step 1: Acquiring session...")
	auth := adapters.NewAuthenticator(base, d.Store, e.opts.Credentials)
	sess, err := auth.AcquireSession(ctx)
	if err != nil {
		log.Errorf("Authentication failed: %v", err)
		return nil, err
	}

	// Step 2: grid and filters
	log.Info("Step 2: Opening order grid...")
	if err := d.Page.Navigate(ctx, d.Profile.OrdersURL); err != nil {
		return nil, fmt.Errorf("failed to open order grid: %w", err)
	}
	limit := 0
	if e.opts.Filters != nil {
		limit = adapters.SnapLimit(e.opts.Filters.Limit)
		applied, err := adapters.NewFilterConfigurator(base).ApplyFilters(ctx, *e.opts.Filters)
		if err != nil {
			return nil, fmt.Errorf("failed to apply filters: %w", err)
		}
		if !applied {
			log.Warn("Filters not confirmed, extracting the grid as shown")
		}
	}

	paginator := adapters.NewPaginator(base)
	total, approximate, err := paginator.TotalRecords(ctx)
	if err != nil {
		log.Warnf("Total record count unavailable: %v", err)
	}
	if total > 0 && limit > 0 {
		log.Infof("Expecting %d orders over about %d pages", total, int(math.Ceil(float64(total)/float64(limit))))
	}

	// Step 3: pages
	log.Info("Step 3: Extracting pages...")
	enricher, api := e.newEnricher(ctx, base, sess, log)
	loop := &pageLoop{
		seen:    map[string]bool{},
		details: map[string]types.ProductDetail{},
	}
	if err := e.traverse(ctx, base, paginator, enricher, api, loop, log); err != nil {
		return nil, err
	}

	// Step 4: SLA
	log.Info("Step 4: Evaluating SLA...")
	result := &Result{Started: start}
	merged := MergeProductDetails(loop.orders, loop.details)
	evaluator := sla.NewEvaluator(e.opts.Rules, e.opts.Location, log)
	now := d.Clock.Now()
	result.Statuses = evaluator.Evaluate(merged, now)
	result.Alerts = sla.Alerts(result.Statuses, e.opts.WarningHours)
	result.Report = evaluator.Report(merged, result.Statuses, result.Alerts, now)
	result.Orders = evaluator.Annotate(merged, result.Statuses)

	result.Summary = e.summarize(runID, total, approximate, loop, result.Orders, d.Clock.Now().Sub(start))
	critical, warning := result.Report.Counts()
	log.WithFields(logrus.Fields{
		"extracted":  result.Summary.TotalExtracted,
		"expected":   result.Summary.TotalExpected,
		"pages":      result.Summary.PagesProcessed,
		"stop":       result.Summary.StopReason,
		"critical":   critical,
		"warning":    warning,
		"enrichment": fmt.Sprintf("%.1f%%", result.Summary.EnrichmentRate*100),
	}).Infof("Extraction completed in %v, %.1f%% of expected orders", result.Summary.Duration, result.Summary.CompletionRate*100)
	return result, nil
}

// newEnricher returns the enricher and, when an HTTP client is configured,
// the API source so its cookies can be refreshed from the browser.
func (e *OrderExtractor) newEnricher(ctx context.Context, base *adapters.BaseAdapter, sess *types.Session, log types.Logger) (*adapters.ProductEnricher, *adapters.APIDetailSource) {
	cookies, err := e.deps.Page.Cookies(ctx)
	if err != nil || len(cookies) == 0 {
		cookies = sess.Cookies
	}
	var fast adapters.DetailSource = emptySource{}
	var api *adapters.APIDetailSource
	if e.deps.HTTP != nil {
		api = adapters.NewAPIDetailSource(e.deps.HTTP, e.deps.Profile.DetailURL, cookies, log)
		fast = api
	}
	return adapters.NewProductEnricher(fast, adapters.NewUIDetailSource(base), e.deps.Config, log), api
}

// refreshCookies copies the browser cookies into the API source. The export
// view may have renewed the session.
func (e *OrderExtractor) refreshCookies(ctx context.Context, api *adapters.APIDetailSource, log types.Logger) {
	cookies, err := e.deps.Page.Cookies(ctx)
	if err != nil || len(cookies) == 0 {
		log.Debugf("Keeping API cookies: %v", err)
		return
	}
	api.SetCookies(cookies)
}

// traverse extracts and enriches page after page until the grid runs out,
// stalls, hits the page cap or the run is cancelled.
func (e *OrderExtractor) traverse(ctx context.Context, base *adapters.BaseAdapter, paginator *adapters.Paginator, enricher *adapters.ProductEnricher, api *adapters.APIDetailSource, loop *pageLoop, log types.Logger) error {
	rows := adapters.NewRowExtractor(base, e.opts.Location)
	maxPages := e.deps.Config.MaxPages

	for {
		if ctx.Err() != nil {
			loop.stop = StopCancelled
			break
		}

		extraction, err := rows.ExtractCurrentPage(ctx)
		if err != nil {
			if loop.pages == 0 {
				return fmt.Errorf("failed to read any page: %w", err)
			}
			log.Warnf("Failed to read page %d: %v", loop.pages+1, err)
			loop.stop = StopStalled
			break
		}
		loop.pages++
		if extraction.Degraded {
			loop.degraded++
		}

		fresh := e.dedupe(extraction.Records, loop)
		log.Infof("Page %d: %d orders (%d new)", loop.pages, len(extraction.Records), len(fresh))
		loop.orders = append(loop.orders, fresh...)

		ids := make([]string, 0, len(fresh))
		for _, o := range fresh {
			ids = append(ids, o.ID)
		}
		enrichment, err := enricher.Enrich(ctx, ids)
		for id, d := range enrichment.Details {
			loop.details[id] = d
		}
		if err != nil {
			log.Warnf("Enrichment interrupted on page %d: %v", loop.pages, err)
			loop.stop = StopCancelled
			break
		}
		if enrichment.FallbackBatches > 0 && api != nil {
			e.refreshCookies(ctx, api, log)
		}

		if maxPages > 0 && loop.pages >= maxPages {
			log.Infof("Reached page limit %d", maxPages)
			loop.stop = StopMaxPages
			break
		}

		outcome, err := paginator.Advance(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				loop.stop = StopCancelled
			} else {
				log.Warnf("Pagination failed after page %d: %v", loop.pages, err)
				loop.stop = StopStalled
			}
			break
		}
		if outcome != adapters.Advanced {
			loop.stop = outcome.String()
			break
		}
	}

	if loop.stop == StopCancelled && loop.pages == 0 {
		return ctx.Err()
	}
	return nil
}

// dedupe drops records whose id was already seen on an earlier page. Records
// with neither id nor order code are always kept.
func (e *OrderExtractor) dedupe(records []types.OrderRecord, loop *pageLoop) []types.OrderRecord {
	fresh := make([]types.OrderRecord, 0, len(records))
	for _, r := range records {
		key := r.ID
		if key == "" {
			key = r.OrderCode
		}
		if key != "" {
			if loop.seen[key] {
				loop.duplicates++
				continue
			}
			loop.seen[key] = true
		}
		r.Page = loop.pages
		fresh = append(fresh, r)
	}
	return fresh
}

func (e *OrderExtractor) summarize(runID string, total int, approximate bool, loop *pageLoop, orders []types.OrderRecord, elapsed time.Duration) types.RunSummary {
	s := types.RunSummary{
		RunID:             runID,
		TotalExpected:     total,
		TotalApproximate:  approximate,
		TotalExtracted:    len(orders),
		PagesProcessed:    loop.pages,
		DuplicatesDropped: loop.duplicates,
		DegradedPages:     loop.degraded,
		StopReason:        loop.stop,
		Duration:          elapsed,
	}
	for _, o := range orders {
		if o.HasProductDetails {
			s.EnrichedOrders++
		}
	}
	if total > 0 {
		s.CompletionRate = float64(s.TotalExtracted) / float64(total)
	}
	if len(orders) > 0 {
		s.EnrichmentRate = float64(s.EnrichedOrders) / float64(len(orders))
	}
	return s
}

// emptySource stands in for the API when no HTTP client is configured, so
// every batch goes to the export fallback.
type emptySource struct{}

func (emptySource) Fetch(ctx context.Context, ids []string) (map[string]types.ProductDetail, error) {
	return map[string]types.ProductDetail{}, nil
}
