package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var schemaReset bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the warehouse tables and indexes",
	RunE:  runSchema,
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaReset, "reset", false, "Drop the four tables before creating them")
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := a.openWarehouse(ctx)
	if err != nil {
		return a.fail("schema", err)
	}
	defer store.Close()

	if err := store.CreateSchema(ctx, schemaReset); err != nil {
		return a.fail("schema", err)
	}
	a.logger.Info("[schema] Warehouse tables ready (reset=%v)", schemaReset)
	return nil
}
