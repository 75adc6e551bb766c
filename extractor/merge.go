package extractor

import (
	"strings"

	"order-sla-extractor/internal/types"
)

const (
	summaryNoProducts  = "No products"
	summaryUnavailable = "Details not available"
	summaryNames       = 3
)

// MergeProductDetails returns a copy of orders with product fields filled
// from details, keyed by order id. Orders without details are kept and
// marked has_product_details=false.
func MergeProductDetails(orders []types.OrderRecord, details map[string]types.ProductDetail) []types.OrderRecord {
	out := make([]types.OrderRecord, len(orders))
	for i, o := range orders {
		d, ok := details[o.ID]
		if !ok || o.ID == "" {
			o.Products = []types.ProductLine{}
			o.ProductCount = 0
			o.TotalItems = 0
			o.ProductSummary = summaryUnavailable
			o.HasProductDetails = false
			out[i] = o
			continue
		}

		o.Products = append([]types.ProductLine{}, d.Products...)
		o.ProductCount = len(d.Products)
		o.TotalItems = 0
		for _, p := range d.Products {
			o.TotalItems += p.Quantity
		}
		o.ProductSummary = productSummary(d.Products)
		o.HasProductDetails = true
		o.RawProductDetail = d.RawDetail
		o.APICustomer = d.Customer
		o.APIAmount = d.AmountTotal
		o.APITransporter = d.Transporter
		o.APIAddress = d.Address
		o.APIPhone = d.Phone
		out[i] = o
	}
	return out
}

func productSummary(products []types.ProductLine) string {
	if len(products) == 0 {
		return summaryNoProducts
	}
	names := make([]string, 0, summaryNames)
	for _, p := range products {
		if len(names) == summaryNames {
			break
		}
		names = append(names, p.Name)
	}
	return strings.Join(names, "; ")
}
