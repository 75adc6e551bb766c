package adapters

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"order-sla-extractor/internal/types"
)

var quantitySuffix = regexp.MustCompile(`\((\d+)\)$`)

// ParseProductDetail splits a detail string such as "A (2), B, C (10)" into
// product lines. A missing "(n)" suffix means quantity 1. A suffix below 1
// is not a quantity: it stays part of the name and the quantity is 1. Order is
// kept and repeated names are not merged.
func ParseProductDetail(detail string) []types.ProductLine {
	var lines []types.ProductLine
	for _, item := range strings.Split(detail, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, qty := item, 1
		if m := quantitySuffix.FindStringSubmatchIndex(item); m != nil {
			if n, err := strconv.Atoi(item[m[2]:m[3]]); err == nil && n >= 1 {
				qty = n
				name = strings.TrimSpace(item[:m[0]])
			}
		}
		if name == "" {
			continue
		}
		lines = append(lines, types.ProductLine{Name: name, Quantity: qty})
	}
	return lines
}

// ErrDetailRejected is returned when the detail payload carries error=true
var ErrDetailRejected = errors.New("detail endpoint reported an error")

// looseString accepts JSON strings, numbers, null and false (the backend
// writes false for empty fields).
type looseString string

func (l *looseString) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "null", "false":
		*l = ""
		return nil
	case "true":
		*l = "true"
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*l = looseString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("unexpected value %s", b)
	}
	*l = looseString(n.String())
	return nil
}

type detailPayload struct {
	Error bool `json:"error"`
	Data  []struct {
		ID          looseString `json:"id"`
		Detail      looseString `json:"detail"`
		Customer    looseString `json:"customer"`
		AmountTotal looseString `json:"amount_total"`
		Transporter looseString `json:"transporter"`
		Address     looseString `json:"address"`
		Phone       looseString `json:"phone"`
	} `json:"data"`
}

// ParseDetailPayload decodes the detail endpoint's JSON into product details
// keyed by order id.
func ParseDetailPayload(data []byte) (map[string]types.ProductDetail, error) {
	var payload detailPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode detail payload: %w", err)
	}
	return payload.details()
}

func (payload *detailPayload) details() (map[string]types.ProductDetail, error) {
	if payload.Error {
		return nil, ErrDetailRejected
	}

	out := make(map[string]types.ProductDetail, len(payload.Data))
	for _, item := range payload.Data {
		id := string(item.ID)
		if id == "" {
			continue
		}
		out[id] = types.ProductDetail{
			OrderID:     id,
			Products:    ParseProductDetail(string(item.Detail)),
			RawDetail:   string(item.Detail),
			Customer:    string(item.Customer),
			AmountTotal: string(item.AmountTotal),
			Transporter: string(item.Transporter),
			Address:     string(item.Address),
			Phone:       string(item.Phone),
		}
	}
	return out, nil
}
