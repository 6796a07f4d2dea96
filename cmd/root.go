package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Flag overrides for the environment configuration. Empty means unset.
var (
	flagInput   string
	flagStaging string
	flagDriver  string
	flagDSN     string
)

var rootCmd = &cobra.Command{
	Use:   "retail-etl [command]",
	Short: "Online Retail II loader: workbook to staging CSV to star-schema warehouse",
	Long: `Extract the Online Retail II workbook into a staging CSV, clean it and load the
countries, products, customers and transactions tables of the warehouse.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagInput, "input", "", "Source workbook (or INPUT_XLSX env)")
	pf.StringVar(&flagStaging, "staging", "", "Staging CSV path (or STAGING_CSV env)")
	pf.StringVar(&flagDriver, "driver", "", "Warehouse driver: mysql, postgres or sqlite (or DB_DRIVER env)")
	pf.StringVar(&flagDSN, "dsn", "", "Warehouse connection string, or file path for sqlite (or DB_DSN env)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "retail-etl: %v\n", err)
		os.Exit(1)
	}
}
