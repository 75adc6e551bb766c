package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"order-sla-extractor/internal/site"
	"order-sla-extractor/internal/types"
	"order-sla-extractor/utils"

	"golang.org/x/sync/errgroup"
)

// DetailSource fetches product details for one batch of order ids.
// Ids without details are simply absent from the result.
type DetailSource interface {
	Fetch(ctx context.Context, ids []string) (map[string]types.ProductDetail, error)
}

// APIDetailSource calls the detail endpoint directly with the session cookies
type APIDetailSource struct {
	client    *utils.HTTPClient
	detailURL string
	logger    types.Logger

	mu      sync.RWMutex
	cookies []types.Cookie
}

// NewAPIDetailSource creates the fast-path source
func NewAPIDetailSource(client *utils.HTTPClient, detailURL string, cookies []types.Cookie, logger types.Logger) *APIDetailSource {
	return &APIDetailSource{client: client, detailURL: detailURL, cookies: cookies, logger: logger}
}

// SetCookies replaces the cookies sent with each request
func (a *APIDetailSource) SetCookies(cookies []types.Cookie) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cookies = cookies
}

// Fetch requests details for ids in a single call
func (a *APIDetailSource) Fetch(ctx context.Context, ids []string) (map[string]types.ProductDetail, error) {
	u, err := url.Parse(a.detailURL)
	if err != nil {
		return nil, fmt.Errorf("invalid detail URL %s: %w", a.detailURL, err)
	}
	q := u.Query()
	q.Set("id", strings.Join(ids, ","))
	u.RawQuery = q.Encode()

	a.mu.RLock()
	cookies := a.cookies
	a.mu.RUnlock()

	var payload detailPayload
	if err := a.client.GetJSON(ctx, u.String(), cookies, &payload); err != nil {
		return nil, err
	}
	return payload.details()
}

// UIDetailSource selects rows in the grid and reads the bulk export. It
// drives the shared page, so it only works for ids on the current page.
type UIDetailSource struct {
	*BaseAdapter
}

// NewUIDetailSource creates the fallback source
func NewUIDetailSource(base *BaseAdapter) *UIDetailSource {
	return &UIDetailSource{BaseAdapter: base}
}

// Fetch ticks the rows for ids, triggers the export and parses its payload
func (u *UIDetailSource) Fetch(ctx context.Context, ids []string) (map[string]types.ProductDetail, error) {
	var selected int
	if err := u.page.Evaluate(ctx, site.Invoke(u.profile.Scripts.SelectOrders, ids), &selected); err != nil {
		return nil, fmt.Errorf("failed to select orders: %w", err)
	}
	if selected == 0 {
		u.logger.Debugf("None of %d orders are on the current page", len(ids))
		return map[string]types.ProductDetail{}, nil
	}
	defer u.restoreGrid(ctx)

	button, ok := u.FirstVisible(ctx, u.profile.ExportButtons)
	if !ok {
		return nil, errors.New("export button not found")
	}
	if err := u.page.Click(ctx, button.Selector); err != nil {
		return nil, fmt.Errorf("failed to click export: %w", err)
	}

	err := u.WaitFor(ctx, "export payload", u.config.PageChangeTimeout, func(ctx context.Context) (bool, error) {
		return u.page.Exists(ctx, u.profile.ExportPayload)
	})
	if err != nil {
		return nil, err
	}

	html, err := u.page.OuterHTML(ctx, u.profile.ExportPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to read export payload: %w", err)
	}
	doc, err := u.ParseHTML(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse export page: %w", err)
	}
	text, err := u.ExtractText(doc, u.profile.ExportPayload)
	if err != nil {
		return nil, err
	}
	return ParseDetailPayload([]byte(text))
}

// restoreGrid leaves the export view and clears the row selection
func (u *UIDetailSource) restoreGrid(ctx context.Context) {
	if loc, err := u.page.Location(ctx); err == nil && strings.Contains(loc, u.profile.ExportURLMarker) {
		if err := u.page.Back(ctx); err != nil {
			u.logger.Warnf("Failed to leave export view: %v", err)
			return
		}
		err := u.WaitFor(ctx, "grid after export", u.config.PageChangeTimeout, func(ctx context.Context) (bool, error) {
			return u.page.Exists(ctx, u.profile.GridRows)
		})
		if err != nil {
			u.logger.Warnf("Grid did not come back after export: %v", err)
		}
	}
	var cleared int
	if err := u.page.Evaluate(ctx, u.profile.Scripts.ClearSelection, &cleared); err != nil {
		u.logger.Debugf("Failed to clear selection: %v", err)
	}
}

// EnrichmentResult is the merged outcome of all batches
type EnrichmentResult struct {
	Details         map[string]types.ProductDetail
	Batches         int
	APIBatches      int
	FallbackBatches int
	Missing         []string
}

// ProductEnricher fetches details batch by batch: fast source first, and the
// fallback only for batches where the fast source returned nothing.
type ProductEnricher struct {
	fast      DetailSource
	fallback  DetailSource
	batchSize int
	workers   int
	logger    types.Logger

	// The fallback drives the browser page, which is not concurrency safe.
	fallbackMu sync.Mutex
}

// NewProductEnricher creates an enricher. fallback may be nil.
func NewProductEnricher(fast, fallback DetailSource, config *types.Config, logger types.Logger) *ProductEnricher {
	batch := config.BatchSize
	if batch <= 0 {
		batch = 5
	}
	workers := config.Workers
	if workers <= 0 {
		workers = 1
	}
	return &ProductEnricher{
		fast:      fast,
		fallback:  fallback,
		batchSize: batch,
		workers:   workers,
		logger:    logger,
	}
}

type batchOutcome struct {
	details  map[string]types.ProductDetail
	api      bool
	fallback bool
}

// Enrich fetches details for ids. Missing details are reported, not failed;
// only cancellation returns an error, together with what was fetched so far.
func (e *ProductEnricher) Enrich(ctx context.Context, ids []string) (EnrichmentResult, error) {
	ids = uniqueIDs(ids)
	batches := chunk(ids, e.batchSize)
	outcomes := make([]batchOutcome, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, batch := range batches {
		if gctx.Err() != nil {
			break
		}
		i, batch := i, batch
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = e.enrichBatch(gctx, i+1, len(batches), batch)
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	result := EnrichmentResult{
		Details: make(map[string]types.ProductDetail, len(ids)),
		Batches: len(batches),
	}
	for _, o := range outcomes {
		if o.api {
			result.APIBatches++
		}
		if o.fallback {
			result.FallbackBatches++
		}
		for id, d := range o.details {
			result.Details[id] = d
		}
	}
	for _, id := range ids {
		if _, ok := result.Details[id]; !ok {
			result.Missing = append(result.Missing, id)
		}
	}
	if len(result.Missing) > 0 && err == nil {
		e.logger.Warnf("No product details for %d of %d orders", len(result.Missing), len(ids))
	}
	return result, err
}

func (e *ProductEnricher) enrichBatch(ctx context.Context, n, total int, ids []string) batchOutcome {
	details, err := e.fast.Fetch(ctx, ids)
	if err != nil {
		e.logger.Warnf("Batch %d/%d: detail request failed: %v", n, total, err)
	}
	if len(details) > 0 {
		e.logger.Debugf("Batch %d/%d: %d/%d details via API", n, total, len(details), len(ids))
		return batchOutcome{details: details, api: true}
	}
	if e.fallback == nil || ctx.Err() != nil {
		return batchOutcome{}
	}

	e.fallbackMu.Lock()
	defer e.fallbackMu.Unlock()
	details, err = e.fallback.Fetch(ctx, ids)
	if err != nil {
		e.logger.Warnf("Batch %d/%d: export fallback failed: %v", n, total, err)
		return batchOutcome{}
	}
	e.logger.Infof("Batch %d/%d: %d/%d details via export fallback", n, total, len(details), len(ids))
	return batchOutcome{details: details, fallback: len(details) > 0}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for size < len(ids) {
		ids, out = ids[size:], append(out, ids[:size:size])
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
