package extractor_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"order-sla-extractor/adapters"
	"order-sla-extractor/extractor"
	"order-sla-extractor/internal/fakepage"
	"order-sla-extractor/internal/site"
	"order-sla-extractor/internal/types"
	"order-sla-extractor/session"
	"order-sla-extractor/utils"
)

var runStart = time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)

// detailHandler knows product details for grid ids 100001 up to lastKnown
func detailHandler(lastKnown int) http.HandlerFunc {
	return sessionDetailHandler("valid", lastKnown)
}

func sessionDetailHandler(sid string, lastKnown int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sid"); err != nil || c.Value != sid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var data []fakepage.DetailItem
		for _, id := range strings.Split(r.URL.Query().Get("id"), ",") {
			n, err := strconv.Atoi(id)
			if err != nil || n > 100000+lastKnown {
				continue
			}
			data = append(data, fakepage.DetailItem{ID: n, Detail: "Ao thun (2), Quan jean", Customer: "C" + id})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": false, "data": data})
	}
}

type pipeline struct {
	page      *fakepage.Page
	config    *types.Config
	deps      extractor.Dependencies
	opts      extractor.Options
	closeHTTP func()
}

func newPipeline(t *testing.T, detailURL string, pages ...[]site.RawRow) *pipeline {
	t.Helper()
	profile := site.DefaultProfile()
	profile.DetailURL = detailURL
	page := fakepage.New(profile)
	page.Pages = pages

	cfg := types.DefaultConfig()
	cfg.RatePerSecond = 0
	cfg.BatchSize = 10

	logger, _ := test.NewNullLogger()
	clock := fakepage.NewClock(runStart)
	store, err := session.NewFileStore(filepath.Join(t.TempDir(), "session.json"), time.Hour, clock)
	require.NoError(t, err)
	client := utils.NewHTTPClient(cfg, logger)

	filters := adapters.LastDays(runStart, 1, adapters.TimeBasisMarketplace, 200)
	return &pipeline{
		page:   page,
		config: cfg,
		deps: extractor.Dependencies{
			Page: page, Profile: profile, Config: cfg, Logger: logger,
			Clock: clock, Store: store, HTTP: client,
		},
		opts: extractor.Options{
			Credentials: adapters.Credentials{Username: "user", Password: "secret"},
			Filters:     &filters,
			Location:    time.UTC,
		},
		closeHTTP: client.Close,
	}
}

func (p *pipeline) run(ctx context.Context) (*extractor.Result, error) {
	return extractor.NewOrderExtractor(p.deps, p.opts).Run(ctx)
}

func TestRun_TwoPagesWithPartialDetails(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	server := httptest.NewServer(detailHandler(140))
	defer server.Close()
	p := newPipeline(t, server.URL+"/so/invoiceJSON", fakepage.OrderRows(1, 100), fakepage.OrderRows(101, 150))
	defer p.closeHTTP()

	result, err := p.run(context.Background())

	require.NoError(t, err)
	s := result.Summary
	assert.Equal(t, 150, s.TotalExtracted)
	assert.Equal(t, 2, s.PagesProcessed)
	assert.Equal(t, 150, s.TotalExpected)
	assert.Equal(t, 1.0, s.CompletionRate)
	assert.Equal(t, extractor.StopNoMoreData, s.StopReason)
	assert.Equal(t, 140, s.EnrichedOrders)
	assert.NotEmpty(t, s.RunID)

	seen := map[string]bool{}
	var missing []string
	for _, o := range result.Orders {
		assert.False(t, seen[o.ID], "duplicate id %s", o.ID)
		seen[o.ID] = true
		if !o.HasProductDetails {
			missing = append(missing, o.ID)
			assert.Equal(t, "Details not available", o.ProductSummary)
			assert.Empty(t, o.Products)
		}
	}
	assert.Len(t, missing, 10)
	assert.Equal(t, "100141", missing[0])

	first := result.Orders[0]
	assert.Equal(t, "100001", first.ID)
	assert.Equal(t, 1, first.Page)
	assert.Equal(t, "Ao thun; Quan jean", first.ProductSummary)
	assert.Equal(t, 3, first.TotalItems)
	assert.Equal(t, "C100001", first.APICustomer)
	assert.Equal(t, 2, result.Orders[149].Page)

	// only the batch the API knew nothing about went through the export
	assert.Equal(t, 1, p.page.Calls("export_click"))
	assert.Empty(t, p.page.Selected())
	require.NotNil(t, p.page.FiltersApplied)
	assert.Equal(t, 200, p.page.FiltersApplied.Limit)
}

func TestRun_RefreshesAPICookiesAfterExport(t *testing.T) {
	server := httptest.NewServer(sessionDetailHandler("renewed", 150))
	defer server.Close()
	p := newPipeline(t, server.URL+"/so/invoiceJSON", fakepage.OrderRows(1, 100), fakepage.OrderRows(101, 150))
	defer p.closeHTTP()
	p.page.ExportCookie = &types.Cookie{Name: "sid", Value: "renewed", Domain: "one.example"}
	p.page.ExportDetails = map[string]fakepage.DetailItem{}
	for n := 100001; n <= 100100; n++ {
		id := strconv.Itoa(n)
		p.page.ExportDetails[id] = fakepage.DetailItem{ID: n, Detail: "Mu bao hiem"}
	}

	result, err := p.run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 150, result.Summary.EnrichedOrders)
	// page one went through the export, page two used the renewed cookie
	assert.Equal(t, 10, p.page.Calls("export_click"))
	assert.Equal(t, "C100150", result.Orders[149].APICustomer)
}

func TestRun_EvaluatesSLA(t *testing.T) {
	server := httptest.NewServer(detailHandler(150))
	defer server.Close()
	p := newPipeline(t, server.URL+"/so/invoiceJSON", fakepage.OrderRows(1, 4))
	defer p.closeHTTP()

	result, err := p.run(context.Background())

	require.NoError(t, err)
	require.Len(t, result.Statuses, 4)
	// odd ids are Shopee orders one hour from their confirmation deadline
	assert.Equal(t, "shopee", result.Orders[0].SLAPlatform)
	assert.Equal(t, "urgent", result.Orders[0].SLAStatus)
	assert.Equal(t, "tiktok", result.Orders[1].SLAPlatform)
	assert.Equal(t, "normal", result.Orders[1].SLAStatus)
	require.Len(t, result.Alerts, 2)
	for _, a := range result.Alerts {
		assert.Equal(t, types.SeverityWarning, a.Severity)
		assert.Equal(t, 1.0, a.Threshold)
	}
	shopee, ok := result.Report.Platform("shopee")
	require.True(t, ok)
	assert.Equal(t, 2, shopee.AfterCutoff)
}

func TestRun_DropsRowsRepeatedAcrossPages(t *testing.T) {
	server := httptest.NewServer(detailHandler(200))
	defer server.Close()
	p := newPipeline(t, server.URL+"/so/invoiceJSON", fakepage.OrderRows(1, 100), fakepage.OrderRows(91, 150))
	defer p.closeHTTP()

	result, err := p.run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 150, result.Summary.TotalExtracted)
	assert.Equal(t, 10, result.Summary.DuplicatesDropped)
	assert.Equal(t, 160, result.Summary.TotalExpected)
	assert.InDelta(t, 150.0/160.0, result.Summary.CompletionRate, 1e-9)
}

func TestRun_StopsAtPageLimit(t *testing.T) {
	server := httptest.NewServer(detailHandler(300))
	defer server.Close()
	p := newPipeline(t, server.URL+"/so/invoiceJSON",
		fakepage.OrderRows(1, 100), fakepage.OrderRows(101, 200), fakepage.OrderRows(201, 300))
	defer p.closeHTTP()
	p.config.MaxPages = 2

	result, err := p.run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, extractor.StopMaxPages, result.Summary.StopReason)
	assert.Equal(t, 2, result.Summary.PagesProcessed)
	assert.Equal(t, 200, result.Summary.TotalExtracted)
	assert.Equal(t, 2, p.page.CurrentPage())
}

func TestRun_StalledPaginationEndsRun(t *testing.T) {
	server := httptest.NewServer(detailHandler(300))
	defer server.Close()
	p := newPipeline(t, server.URL+"/so/invoiceJSON", fakepage.OrderRows(1, 100), fakepage.OrderRows(101, 200))
	defer p.closeHTTP()
	p.page.Stuck = true

	result, err := p.run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, extractor.StopStalled, result.Summary.StopReason)
	assert.Equal(t, 1, result.Summary.PagesProcessed)
	assert.InDelta(t, 0.5, result.Summary.CompletionRate, 1e-9)
}

func TestRun_AuthFailure(t *testing.T) {
	p := newPipeline(t, "http://127.0.0.1:1/so/invoiceJSON", fakepage.OrderRows(1, 10))
	defer p.closeHTTP()
	p.opts.Credentials.Password = "wrong"

	result, err := p.run(context.Background())

	assert.Nil(t, result)
	var authErr *adapters.AuthError
	assert.True(t, errors.As(err, &authErr))
}

func TestRun_Cancelled(t *testing.T) {
	p := newPipeline(t, "http://127.0.0.1:1/so/invoiceJSON", fakepage.OrderRows(1, 10))
	defer p.closeHTTP()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestMergeProductDetails(t *testing.T) {
	orders := []types.OrderRecord{{ID: "1"}, {ID: "2"}, {ID: "3"}, {OrderCode: "SO4"}}
	details := map[string]types.ProductDetail{
		"1": {OrderID: "1", Products: []types.ProductLine{
			{Name: "A", Quantity: 2}, {Name: "B", Quantity: 1}, {Name: "C", Quantity: 1}, {Name: "D", Quantity: 4},
		}, RawDetail: "A (2), B, C, D (4)", Transporter: "GHN"},
		"2": {OrderID: "2", Products: nil, RawDetail: ""},
	}

	merged := extractor.MergeProductDetails(orders, details)

	require.Len(t, merged, 4)
	assert.Equal(t, "A; B; C", merged[0].ProductSummary)
	assert.Equal(t, 4, merged[0].ProductCount)
	assert.Equal(t, 8, merged[0].TotalItems)
	assert.Equal(t, "GHN", merged[0].APITransporter)
	assert.True(t, merged[1].HasProductDetails)
	assert.Equal(t, "No products", merged[1].ProductSummary)
	assert.NotNil(t, merged[1].Products)
	for _, o := range merged[2:] {
		assert.False(t, o.HasProductDetails)
		assert.Equal(t, "Details not available", o.ProductSummary)
	}
	assert.Empty(t, orders[0].ProductSummary, "input is not modified")
}

func TestExports(t *testing.T) {
	server := httptest.NewServer(detailHandler(2))
	defer server.Close()
	p := newPipeline(t, server.URL+"/so/invoiceJSON", fakepage.OrderRows(1, 4))
	defer p.closeHTTP()
	result, err := p.run(context.Background())
	require.NoError(t, err)

	dir := t.TempDir()
	jsonPath := extractor.ExportPath(filepath.Join(dir, "out"), "orders", result.Summary.RunID, result.Started, "json")
	assert.True(t, strings.HasPrefix(filepath.Base(jsonPath), "orders_20250302_080000_"))
	require.NoError(t, extractor.WriteJSON(jsonPath, result.Document()))

	doc, err := extractor.ReadJSON(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 4, doc.Summary.TotalExtracted)
	assert.Len(t, doc.Orders, 4)
	assert.Len(t, doc.SLA.Alerts, len(result.Alerts))
	assert.Equal(t, result.Orders[0].SLAStatus, doc.Orders[0].SLAStatus)

	csvPath := filepath.Join(dir, "alerts.csv")
	require.NoError(t, extractor.WriteAlertsCSV(csvPath, result.Alerts))
	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, len(result.Alerts)+1)
	assert.Equal(t, "type", records[0][0])
	assert.Equal(t, "WARNING", records[1][0])
}
