package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"retail-etl/config"
	"retail-etl/dataset"
	"retail-etl/metrics"
	"retail-etl/models"
	"retail-etl/services"
	"retail-etl/storage"
	"retail-etl/utils"
)

// app is the per-invocation state shared by the subcommands.
type app struct {
	cfg     *config.Config
	runID   string
	logger  *utils.Logger
	metrics *metrics.Recorder
}

func newApp() (*app, error) {
	cfg := config.Load()
	if flagInput != "" {
		cfg.InputXLSX = flagInput
	}
	if flagStaging != "" {
		cfg.StagingCSV = flagStaging
	}
	if flagDriver != "" {
		cfg.UseDriver(flagDriver)
	}
	if flagDSN != "" {
		cfg.DBDSN = flagDSN
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := utils.NewLoggerWith(os.Stdout, cfg.LogLevel, cfg.LogFormat).With("run_id", runID)

	rec, err := metrics.NewRecorder("", cfg.PushgatewayURL)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, runID: runID, logger: logger, metrics: rec}, nil
}

// extract reads the workbook and writes every row to the staging CSV.
func (a *app) extract(ctx context.Context) error {
	a.logger.Info("[extract] Reading %s (sheets %v)", a.cfg.InputXLSX, a.cfg.InputSheets)

	items, err := dataset.NewReader(a.logger).ReadWorkbook(ctx, a.cfg.InputXLSX, a.cfg.InputSheets)
	if err != nil {
		return err
	}

	w, err := storage.NewCSVWriter(a.cfg.StagingCSV)
	if err != nil {
		return err
	}
	if err := writeStaging(w, items); err != nil {
		return err
	}

	a.logger.Info("[extract] Wrote %d rows to %s", len(items), a.cfg.StagingCSV)
	return nil
}

func writeStaging(w storage.RawLineItemWriter, items []*models.RawLineItem) error {
	if err := w.WriteRaw(items); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// openWarehouse connects to the configured warehouse. The caller closes it.
func (a *app) openWarehouse(ctx context.Context) (*storage.SQLWarehouse, error) {
	return storage.NewSQLWarehouse(ctx, a.cfg.DBDriver, a.cfg.DSN(), storage.Options{
		BatchSize:       a.cfg.BatchSize,
		ConnectAttempts: a.cfg.DBConnectAttempts,
		Logger:          a.logger,
	})
}

// load reads the staging CSV and loads it into the warehouse.
func (a *app) load(ctx context.Context) (*models.LoadReport, error) {
	raw, err := storage.ReadRawCSV(a.cfg.StagingCSV)
	if err != nil {
		return nil, err
	}
	a.logger.Info("[load] Read %d rows from %s", len(raw), a.cfg.StagingCSV)

	store, err := a.openWarehouse(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if err := store.CreateSchema(ctx, a.cfg.ResetSchema); err != nil {
		return nil, err
	}

	report, err := services.NewLoader(store, a.metrics, a.logger).Load(ctx, raw)
	if err != nil {
		return nil, err
	}
	report.RunID = a.runID
	return report, nil
}

// pushMetrics runs after the command context may already be cancelled, so it
// uses its own deadline. A push failure is logged, never returned.
func (a *app) pushMetrics() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.metrics.Push(ctx); err != nil {
		a.logger.Warn("[metrics] %v", err)
	}
}

func (a *app) fail(step string, err error) error {
	a.logger.Error("[%s] %v", step, err)
	return fmt.Errorf("%s: %w", step, err)
}
