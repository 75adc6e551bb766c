package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"order-sla-extractor/adapters"
	"order-sla-extractor/internal/site"
	"order-sla-extractor/internal/types"
	"order-sla-extractor/session"
	"order-sla-extractor/utils"
)

func newInspectCmd() *cobra.Command {
	var samples int
	var headed bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Log in and print how the site profile sees the order grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := cfg.Runtime()
			if headed {
				rt.Headless = false
			}
			clock := types.SystemClock{}
			store, err := session.NewFileStore(cfg.Session.File, rt.SessionTTL, clock)
			if err != nil {
				return err
			}
			browser := utils.NewBrowserClient(rt, logger)
			defer browser.Close()

			profile := cfg.Profile()
			base := adapters.NewBaseAdapter(browser, profile, rt, logger, clock)
			ctx := cmd.Context()
			if _, err := adapters.NewAuthenticator(base, store, cfg.Creds()).AcquireSession(ctx); err != nil {
				return err
			}
			if err := browser.Navigate(ctx, profile.OrdersURL); err != nil {
				return fmt.Errorf("failed to open order grid: %w", err)
			}
			if _, err := base.WaitForAny(ctx, "grid rows", site.Chain(profile.GridRows), rt.FilterTimeout); err != nil {
				logger.Warnf("Grid rows not found: %v", err)
			}

			report, err := adapters.NewGridInspector(base).Inspect(ctx, samples)
			if err != nil {
				return err
			}
			printReport(cmd, report)
			return nil
		},
	}
	cmd.Flags().IntVar(&samples, "samples", 5, "Number of rows to print")
	cmd.Flags().BoolVar(&headed, "headed", false, "Show the browser window")
	return cmd
}

func printReport(cmd *cobra.Command, r adapters.GridReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "=== Grid at %s ===\n", r.Snapshot.URL)
	fmt.Fprintf(out, "Tables: %d, rows: %d, pager: %v\n", r.Snapshot.Tables, r.Snapshot.Rows, r.Snapshot.Pager)
	fmt.Fprintf(out, "Info: %q\n", r.Snapshot.Info)
	fmt.Fprintf(out, "Page %d, next: %v, previous: %v, total: %d\n",
		r.State.CurrentPage, r.State.HasNext, r.State.HasPrevious, r.State.TotalRecords)
	if len(r.Headers) > 0 {
		fmt.Fprintf(out, "Headers: %s\n", strings.Join(r.Headers, " | "))
	}

	fmt.Fprintln(out, "Selectors:")
	selectors := make([]string, 0, len(r.Selectors))
	for sel := range r.Selectors {
		selectors = append(selectors, sel)
	}
	sort.Strings(selectors)
	for _, sel := range selectors {
		fmt.Fprintf(out, "  [%v] %s\n", r.Selectors[sel], sel)
	}

	fmt.Fprintf(out, "Rows parsed from HTML: %d, detail links: %d\n", r.RowCount, len(r.DetailLinks))
	for i, row := range r.SampleRows {
		fmt.Fprintf(out, "  %d: %s\n", i+1, strings.Join(row, " | "))
	}
}
