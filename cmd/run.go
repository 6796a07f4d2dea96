package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"retail-etl/services"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract the workbook, then load the warehouse and print the report",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.pushMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info("=== Online Retail ETL starting (driver %s) ===", a.cfg.DBDriver)

	if err := a.extract(ctx); err != nil {
		return a.fail("extract", err)
	}
	report, err := a.load(ctx)
	if err != nil {
		return a.fail("load", err)
	}

	services.NewInsightService(a.logger).Print(report)
	a.logger.Info("=== Done ===")
	return nil
}
