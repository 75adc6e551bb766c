package adapters_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"order-sla-extractor/adapters"
	"order-sla-extractor/internal/types"
)

func TestParseProductDetail(t *testing.T) {
	got := adapters.ParseProductDetail("A (2), B, C (10)")

	assert.Equal(t, []types.ProductLine{
		{Name: "A", Quantity: 2},
		{Name: "B", Quantity: 1},
		{Name: "C", Quantity: 10},
	}, got)
}

func TestParseProductDetail_EdgeCases(t *testing.T) {
	assert.Empty(t, adapters.ParseProductDetail(""))
	assert.Empty(t, adapters.ParseProductDetail(" , ,"))
	assert.Equal(t, []types.ProductLine{{Name: "Áo thun (size M)", Quantity: 1}, {Name: "Áo thun (size M)", Quantity: 1}},
		adapters.ParseProductDetail("Áo thun (size M), Áo thun (size M)"))
	assert.Equal(t, []types.ProductLine{{Name: "Mug", Quantity: 3}}, adapters.ParseProductDetail("Mug(3)"))
	assert.Equal(t, []types.ProductLine{{Name: "A (0)", Quantity: 1}, {Name: "B (00)", Quantity: 1}},
		adapters.ParseProductDetail("A (0), B (00)"))
}

type productItem struct {
	name   string
	qty    int
	suffix bool
}

func TestParseProductDetail_RoundTrip(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	itemGen := gopter.CombineGens(
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.IntRange(1, 999),
		gen.Bool(),
	).Map(func(v []interface{}) productItem {
		return productItem{name: v[0].(string), qty: v[1].(int), suffix: v[2].(bool)}
	})

	properties.Property("order and quantities are preserved", prop.ForAll(
		func(items []productItem) bool {
			parts := make([]string, len(items))
			for i, it := range items {
				parts[i] = it.name
				if it.suffix {
					parts[i] = fmt.Sprintf("%s (%d)", it.name, it.qty)
				}
			}
			got := adapters.ParseProductDetail(strings.Join(parts, ", "))
			if len(got) != len(items) {
				return false
			}
			for i, it := range items {
				want := 1
				if it.suffix {
					want = it.qty
				}
				if got[i].Name != it.name || got[i].Quantity != want {
					return false
				}
			}
			return true
		},
		gen.SliceOf(itemGen),
	))

	properties.TestingRun(t)
}

func TestParseProductDetail_QuantityAtLeastOne(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("no line has a quantity below 1", prop.ForAll(
		func(names []string, qtys []int) bool {
			parts := make([]string, len(names))
			for i, name := range names {
				parts[i] = name
				if i < len(qtys) {
					parts[i] = fmt.Sprintf("%s (%d)", name, qtys[i])
				}
			}
			for _, line := range adapters.ParseProductDetail(strings.Join(parts, ", ")) {
				if line.Quantity < 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.IntRange(0, 5)),
	))

	properties.TestingRun(t)
}

func TestParseDetailPayload(t *testing.T) {
	payload := `{"error": false, "data": [
		{"id": 100001, "detail": "Tai nghe (2), Cáp sạc", "customer": "Lê C", "amount_total": 350000, "transporter": "GHN", "address": false, "phone": "0900000000"},
		{"id": "100002", "detail": "", "customer": null}
	]}`

	got, err := adapters.ParseDetailPayload([]byte(payload))

	require.NoError(t, err)
	require.Len(t, got, 2)
	first := got["100001"]
	assert.Equal(t, "100001", first.OrderID)
	assert.Equal(t, []types.ProductLine{{Name: "Tai nghe", Quantity: 2}, {Name: "Cáp sạc", Quantity: 1}}, first.Products)
	assert.Equal(t, "350000", first.AmountTotal)
	assert.Equal(t, "GHN", first.Transporter)
	assert.Empty(t, first.Address)
	assert.Empty(t, got["100002"].Products)
}

func TestParseDetailPayload_Errors(t *testing.T) {
	_, err := adapters.ParseDetailPayload([]byte(`{"error": true, "data": []}`))
	assert.ErrorIs(t, err, adapters.ErrDetailRejected)

	_, err = adapters.ParseDetailPayload([]byte(`<html>login</html>`))
	assert.Error(t, err)
}
