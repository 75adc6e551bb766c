package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"order-sla-extractor/internal/config"
	"order-sla-extractor/utils"
)

var (
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "order-sla",
	Short: "Extract marketplace orders and check them against SLA deadlines",
	Long: `order-sla logs into the order management site, pages through the sales order
grid, enriches every order with its product lines and evaluates the
confirmation and handover deadlines of each marketplace.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = utils.NewLogger(cfg.LogOptions(verbose))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.AddCommand(newRunCmd(), newSLACmd(), newInspectCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Errorf("Command failed: %v", err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
