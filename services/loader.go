package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"retail-etl/metrics"
	"retail-etl/models"
	"retail-etl/storage"
	"retail-etl/utils"
)

// Loader runs the transform-and-load pass: clean, build the country, product
// and customer dimensions, then the transaction facts.
type Loader struct {
	store    storage.Warehouse
	cleaner  *Cleaner
	insights *InsightService
	metrics  *metrics.Recorder
	logger   *utils.Logger
}

// NewLoader creates a Loader writing to store. rec may be nil.
func NewLoader(store storage.Warehouse, rec *metrics.Recorder, logger *utils.Logger) *Loader {
	return &Loader{
		store:    store,
		cleaner:  NewCleaner(logger),
		insights: NewInsightService(logger),
		metrics:  rec,
		logger:   logger,
	}
}

// Load cleans raw and writes the star schema. Countries are loaded before
// customers and transactions, which resolve country ids through them.
// A failure aborts the run; tables already written stay written.
func (l *Loader) Load(ctx context.Context, raw []*models.RawLineItem) (*models.LoadReport, error) {
	start := time.Now()
	report := &models.LoadReport{RawRows: len(raw)}

	var items []*models.LineItem
	err := l.step("clean", func() error {
		var stats CleanStats
		var err error
		items, stats, err = l.cleaner.Clean(raw)
		report.CleanedRows = stats.Output
		report.MissingCust = stats.MissingCustomer
		report.Cancelled = stats.Cancelled
		return err
	})
	if err != nil {
		return nil, err
	}
	l.count("raw", int64(report.RawRows))
	l.count("cleaned", int64(report.CleanedRows))
	l.count("missing_customer", int64(report.MissingCust))
	l.count("cancelled", int64(report.Cancelled))

	// The aggregations read items only and write disjoint results. A run
	// cancelled while they work stops here, before any table is written.
	var (
		countries []string
		products  []*models.Product
		aggs      []*models.CustomerAggregate
	)
	err = l.step("aggregate", func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { countries = DistinctCountries(items); return gctx.Err() })
		g.Go(func() error { products = AggregateProducts(items); return gctx.Err() })
		g.Go(func() error { aggs = AggregateCustomers(items); return gctx.Err() })
		g.Go(func() error { report.CountryConflicts = CountryConflicts(items); return gctx.Err() })
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}
	if report.CountryConflicts > 0 {
		l.logger.Warn("[loader] %d customers have line items in more than one country; "+
			"their dimension row keeps the first-seen country while transactions keep their own",
			report.CountryConflicts)
	}

	var countryIDs map[string]int64
	if err := l.step("countries", func() error {
		var err error
		countryIDs, report.Inserted.Countries, err = l.LoadCountries(ctx, countries)
		return err
	}); err != nil {
		return nil, err
	}

	if err := l.step("products", func() error {
		var err error
		report.Inserted.Products, err = l.LoadProducts(ctx, products)
		return err
	}); err != nil {
		return nil, err
	}

	var customers []*models.Customer
	if err := l.step("customers", func() error {
		var err error
		customers, report.Inserted.Customers, err = l.LoadCustomers(ctx, aggs, countryIDs)
		return err
	}); err != nil {
		return nil, err
	}

	if err := l.step("transactions", func() error {
		var err error
		keys := NewKeyIndex(countryIDs, products, customers)
		report.Inserted.Transactions, err = l.LoadTransactions(ctx, items, keys)
		return err
	}); err != nil {
		return nil, err
	}

	l.count("inserted_countries", report.Inserted.Countries)
	l.count("inserted_products", report.Inserted.Products)
	l.count("inserted_customers", report.Inserted.Customers)
	l.count("inserted_transactions", report.Inserted.Transactions)

	stored, err := l.store.TableCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("loader: read back counts: %w", err)
	}
	report.Stored = stored

	l.insights.Generate(report, items, products)
	report.Duration = time.Since(start)
	if l.metrics != nil {
		l.metrics.MarkSuccess(time.Now())
	}

	l.logger.Info("[loader] Loaded %d transactions, %d customers, %d products, %d countries in %v",
		report.Inserted.Transactions, report.Inserted.Customers, report.Inserted.Products,
		report.Inserted.Countries, report.Duration.Round(time.Millisecond))
	return report, nil
}

// LoadCountries inserts the names that are not yet stored and returns the
// complete name -> id map read back from the store, including countries that
// existed before this run.
func (l *Loader) LoadCountries(ctx context.Context, names []string) (map[string]int64, int64, error) {
	inserted, err := l.store.InsertCountries(ctx, names)
	if err != nil {
		return nil, 0, fmt.Errorf("loader: countries: %w", err)
	}
	ids, err := l.store.CountryIDs(ctx)
	if err != nil {
		return nil, inserted, fmt.Errorf("loader: countries: %w", err)
	}
	l.logger.Info("[loader] Countries: %d distinct, %d new, %d stored", len(names), inserted, len(ids))
	return ids, inserted, nil
}

// LoadProducts inserts products that are not yet stored, keyed on stock code.
func (l *Loader) LoadProducts(ctx context.Context, products []*models.Product) (int64, error) {
	inserted, err := l.store.InsertProducts(ctx, products)
	if err != nil {
		return 0, fmt.Errorf("loader: products: %w", err)
	}
	l.logger.Info("[loader] Products: %d distinct, %d new", len(products), inserted)
	return inserted, nil
}

// LoadCustomers resolves each aggregate's country and inserts customers that
// are not yet stored, keyed on customer id.
func (l *Loader) LoadCustomers(ctx context.Context, aggs []*models.CustomerAggregate, countryIDs map[string]int64) ([]*models.Customer, int64, error) {
	customers, err := ResolveCustomers(aggs, countryIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("loader: customers: %w", err)
	}
	inserted, err := l.store.InsertCustomers(ctx, customers)
	if err != nil {
		return nil, 0, fmt.Errorf("loader: customers: %w", err)
	}
	l.logger.Info("[loader] Customers: %d distinct, %d new", len(customers), inserted)
	return customers, inserted, nil
}

// LoadTransactions builds one fact per line item and inserts them all.
func (l *Loader) LoadTransactions(ctx context.Context, items []*models.LineItem, keys *KeyIndex) (int64, error) {
	txns, err := BuildTransactions(items, keys)
	if err != nil {
		return 0, fmt.Errorf("loader: transactions: %w", err)
	}
	inserted, err := l.store.InsertTransactions(ctx, txns)
	if err != nil {
		return 0, fmt.Errorf("loader: transactions: %w", err)
	}
	l.logger.Info("[loader] Transactions: %d inserted", inserted)
	return inserted, nil
}

func (l *Loader) step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	if l.metrics != nil {
		l.metrics.ObserveStep(name, time.Since(start))
	}
	if err != nil {
		l.logger.Error("[loader] Step %s failed: %v", name, err)
	} else {
		l.logger.Debug("[loader] Step %s done in %v", name, time.Since(start))
	}
	return err
}

func (l *Loader) count(kind string, n int64) {
	if l.metrics != nil {
		l.metrics.AddRows(kind, n)
	}
}
