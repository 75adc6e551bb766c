package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"order-sla-extractor/extractor"
	"order-sla-extractor/internal/types"
	"order-sla-extractor/session"
	"order-sla-extractor/utils"
)

type runFlags struct {
	maxPages int
	daysBack int
	preset   string
	output   string
	headed   bool
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full extraction and SLA pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, f)
		},
	}
	cmd.Flags().IntVar(&f.maxPages, "max-pages", -1, "Maximum pages to extract (0 = all, default from config)")
	cmd.Flags().IntVar(&f.daysBack, "days-back", -1, "Days back from today to filter on (default from config)")
	cmd.Flags().StringVar(&f.preset, "preset", "", "Date preset: today, yesterday, 7days, 30days, this_month, last_month")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output directory (default from config)")
	cmd.Flags().BoolVar(&f.headed, "headed", false, "Show the browser window")
	return cmd
}

func runPipeline(cmd *cobra.Command, f runFlags) error {
	if f.maxPages >= 0 {
		cfg.Extraction.MaxPages = f.maxPages
	}
	if f.daysBack >= 0 {
		cfg.Filters.DaysBack = f.daysBack
	}
	if f.preset != "" {
		cfg.Filters.Preset = f.preset
	}
	if f.output != "" {
		cfg.Output.Dir = f.output
	}

	rt := cfg.Runtime()
	if f.headed {
		rt.Headless = false
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	rules, warningHours, err := cfg.Rules()
	if err != nil {
		return err
	}
	clock := types.SystemClock{}
	filters, err := cfg.FilterOptions(clock.Now().In(loc))
	if err != nil {
		return err
	}
	store, err := session.NewFileStore(cfg.Session.File, rt.SessionTTL, clock)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, rt.Timeout)
	defer cancel()

	browser := utils.NewBrowserClient(rt, logger)
	defer browser.Close()
	client := utils.NewHTTPClient(rt, logger)
	defer client.Close()

	run := extractor.NewOrderExtractor(extractor.Dependencies{
		Page:    browser,
		Profile: cfg.Profile(),
		Config:  rt,
		Logger:  logger,
		Clock:   clock,
		Store:   store,
		HTTP:    client,
	}, extractor.Options{
		Credentials:  cfg.Creds(),
		Filters:      filters,
		Rules:        rules,
		WarningHours: warningHours,
		Location:     loc,
	})

	result, err := run.Run(ctx)
	if err != nil {
		return err
	}

	jsonPath := extractor.ExportPath(cfg.Output.Dir, "orders", result.Summary.RunID, result.Started.In(loc), "json")
	if err := extractor.WriteJSON(jsonPath, result.Document()); err != nil {
		return err
	}
	logger.Infof("Results saved to %s", jsonPath)

	if cfg.Output.AlertsCSV && len(result.Alerts) > 0 {
		csvPath := extractor.ExportPath(cfg.Output.Dir, "alerts", result.Summary.RunID, result.Started.In(loc), "csv")
		if err := extractor.WriteAlertsCSV(csvPath, result.Alerts); err != nil {
			return err
		}
		logger.Infof("Alerts saved to %s", csvPath)
	}

	s := result.Summary
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Extracted %d/%d orders over %d pages (%.1f%%), stop: %s\n",
		s.TotalExtracted, s.TotalExpected, s.PagesProcessed, s.CompletionRate*100, s.StopReason)
	fmt.Fprintf(out, "Product details: %d orders (%.1f%%)\n", s.EnrichedOrders, s.EnrichmentRate*100)
	critical, warning := result.Report.Counts()
	fmt.Fprintf(out, "SLA alerts: %d critical, %d warning\n", critical, warning)
	return nil
}
