package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"retail-etl/services"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the staging CSV into the warehouse and print the report",
	Long: `Clean the staging CSV and load it into the warehouse star schema. With
RESET_SCHEMA=true (the default) the four tables are dropped and recreated first.`,
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.pushMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := a.load(ctx)
	if err != nil {
		return a.fail("load", err)
	}
	services.NewInsightService(a.logger).Print(report)
	return nil
}
