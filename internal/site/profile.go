// Package site describes the order management site the pipeline drives:
// selectors, login markers, column positions and the in-page scripts.
package site

import (
	"encoding/json"
	"strings"
)

// Locator is a named CSS selector tried as part of an ordered fallback chain
type Locator struct {
	Name     string `mapstructure:"name"`
	Selector string `mapstructure:"selector"`
}

// Chain builds a locator list from bare selectors, naming each after its selector.
func Chain(selectors ...string) []Locator {
	out := make([]Locator, 0, len(selectors))
	for _, s := range selectors {
		out = append(out, Locator{Name: s, Selector: s})
	}
	return out
}

// Columns maps grid columns to order fields. A negative index means "unknown".
type Columns struct {
	MinColumns      int
	IDWindow        int
	CustomerFrom    int
	CustomerTo      int
	Platform        int
	CreatedAt       int
	CreatedAtLayout []string
}

// Scripts are the in-page JavaScript snippets. Scripts with parameters are
// function expressions meant to be called through Invoke.
type Scripts struct {
	BulkRows         string
	Fingerprint      string
	PageState        string
	ScrollToPager    string
	ClickNext        string
	GridNextPage     string
	SetFilters       string
	SubmitFilters    string
	SelectOrders     string
	ClearSelection   string
	GridInfoSnapshot string
}

// Profile is everything the adapters need to know about the target site
type Profile struct {
	BaseURL   string
	LoginURL  string
	OrdersURL string
	DetailURL string

	LoginMarker       []Locator
	PostLoginPatterns []string
	UsernameFields    []Locator
	PasswordFields    []Locator
	SubmitButtons     []Locator

	GridSelector     string
	GridRows         string
	InfoText         string
	LoadingIndicator string
	NextButtons      []Locator
	ExportButtons    []Locator
	ExportPayload    string
	ExportURLMarker  string

	PlatformNames []string
	Columns       Columns
	Scripts       Scripts
}

// DefaultProfile describes the DataTables-backed sales order grid.
func DefaultProfile() *Profile {
	return &Profile{
		BaseURL:   "https://one.tga.com.vn",
		LoginURL:  "https://one.tga.com.vn/",
		OrdersURL: "https://one.tga.com.vn/so/",
		DetailURL: "https://one.tga.com.vn/so/invoiceJSON",

		LoginMarker:       Chain("[data-testid='user-name']", ".user-name", ".username"),
		PostLoginPatterns: []string{"dashboard", "home", "/so/"},
		UsernameFields: Chain(
			"input[name='username']",
			"input[name='email']",
			"#username",
			"#email",
			"input[type='text']",
		),
		PasswordFields: Chain("input[type='password']"),
		SubmitButtons: Chain(
			"button[type='submit']",
			"input[type='submit']",
			".login-btn",
			".btn-primary",
		),

		GridSelector:     "#orderTB",
		GridRows:         "#orderTB tbody tr",
		InfoText:         "#orderTB_info",
		LoadingIndicator: "#loading-filter",
		NextButtons: Chain(
			".paginate_button.next:not(.disabled)",
			"a.paginate_button.next:not(.disabled)",
			".dataTables_paginate .next:not(.disabled)",
		),
		ExportButtons:   Chain("button[title*='JSON']", ".json-btn", "a[href*='invoiceJSON']"),
		ExportPayload:   "pre",
		ExportURLMarker: "invoiceJSON",

		PlatformNames: []string{"shopee", "tiktok", "lazada", "tiki", "sendo", "facebook", "website"},
		Columns: Columns{
			MinColumns:   3,
			IDWindow:     3,
			CustomerFrom: 3,
			CustomerTo:   7,
			Platform:     -1,
			CreatedAt:    -1,
			CreatedAtLayout: []string{
				"02/01/2006 15:04:05",
				"02/01/2006 15:04",
				"2006-01-02 15:04:05",
				"2006-01-02 15:04",
			},
		},
		Scripts: defaultScripts,
	}
}

// Invoke renders a call of the function expression fn with JSON-encoded args.
func Invoke(fn string, args ...interface{}) string {
	encoded := make([]string, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			b = []byte("null")
		}
		encoded = append(encoded, string(b))
	}
	return "(" + fn + ")(" + strings.Join(encoded, ",") + ")"
}

// ParseInvocation is the inverse of Invoke. It reports false when script is
// not a call of fn.
func ParseInvocation(script, fn string) ([]json.RawMessage, bool) {
	prefix := "(" + fn + ")("
	if !strings.HasPrefix(script, prefix) || !strings.HasSuffix(script, ")") {
		return nil, false
	}
	body := "[" + strings.TrimSuffix(strings.TrimPrefix(script, prefix), ")") + "]"
	var args []json.RawMessage
	if err := json.Unmarshal([]byte(body), &args); err != nil {
		return nil, false
	}
	return args, true
}
