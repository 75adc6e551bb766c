package adapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"order-sla-extractor/adapters"
	"order-sla-extractor/internal/fakepage"
	"order-sla-extractor/internal/site"
)

func TestGridInspector(t *testing.T) {
	h := newHarness(t)
	h.page.LoggedIn = true
	h.page.URL = h.profile.OrdersURL
	h.page.Pages = [][]site.RawRow{fakepage.OrderRows(1, 5), fakepage.OrderRows(6, 8)}

	report, err := adapters.NewGridInspector(h.base).Inspect(context.Background(), 2)

	require.NoError(t, err)
	assert.Equal(t, 5, report.Snapshot.Rows)
	assert.Equal(t, 5, report.RowCount)
	require.Len(t, report.SampleRows, 2)
	assert.Equal(t, "SO000001", report.SampleRows[0][0])
	assert.Len(t, report.DetailLinks, 5)
	assert.Equal(t, "/so/detail/100001", report.DetailLinks[0])
	assert.Equal(t, 8, report.State.TotalRecords)
	assert.True(t, report.State.HasNext)
	assert.True(t, report.Selectors[h.profile.GridRows])
	assert.False(t, report.Selectors[h.profile.ExportPayload])
	assert.Equal(t, 1, h.page.CurrentPage(), "inspection does not page")
}

func TestGridInspector_EmptyGrid(t *testing.T) {
	h := newHarness(t)

	report, err := adapters.NewGridInspector(h.base).Inspect(context.Background(), 3)

	require.NoError(t, err)
	assert.Zero(t, report.RowCount)
	assert.Empty(t, report.SampleRows)
	assert.Empty(t, report.DetailLinks)
}

func TestGridInspector_NegativeSamples(t *testing.T) {
	h := newHarness(t)
	h.page.URL = h.profile.OrdersURL
	h.page.Pages = [][]site.RawRow{fakepage.OrderRows(1, 3)}

	report, err := adapters.NewGridInspector(h.base).Inspect(context.Background(), -1)

	require.NoError(t, err)
	assert.Equal(t, 3, report.RowCount)
	assert.Empty(t, report.SampleRows)
}
