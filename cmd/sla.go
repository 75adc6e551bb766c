package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"order-sla-extractor/extractor"
	"order-sla-extractor/sla"
)

func newSLACmd() *cobra.Command {
	var at string
	var csvPath string
	cmd := &cobra.Command{
		Use:   "sla <export.json>",
		Short: "Evaluate SLA deadlines for a previously exported run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := extractor.ReadJSON(args[0])
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			rules, warningHours, err := cfg.Rules()
			if err != nil {
				return err
			}

			now := time.Now()
			if at != "" {
				now, err = time.ParseInLocation("2006-01-02 15:04", at, loc)
				if err != nil {
					return fmt.Errorf("invalid --at %q: %w", at, err)
				}
			}

			evaluator := sla.NewEvaluator(rules, loc, logger)
			statuses := evaluator.Evaluate(doc.Orders, now)
			alerts := sla.Alerts(statuses, warningHours)
			report := evaluator.Report(doc.Orders, statuses, alerts, now)
			if csvPath != "" {
				if err := extractor.WriteAlertsCSV(csvPath, alerts); err != nil {
					return err
				}
			}
			return report.WriteText(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&at, "at", "", `Evaluate at this local time ("2006-01-02 15:04") instead of now`)
	cmd.Flags().StringVar(&csvPath, "alerts-csv", "", "Also write the alerts to this CSV file")
	return cmd
}
