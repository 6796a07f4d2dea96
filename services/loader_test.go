package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"retail-etl/metrics"
	"retail-etl/models"
	"retail-etl/storage"
)

func newSQLiteWarehouse(t *testing.T) *storage.SQLWarehouse {
	t.Helper()
	ctx := context.Background()
	w, err := storage.NewSQLWarehouse(ctx, "sqlite", ":memory:", storage.Options{
		BatchSize:       2,
		ConnectAttempts: 1,
		Logger:          newTestLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	require.NoError(t, w.CreateSchema(ctx, true))
	return w
}

func sampleRaw() []*models.RawLineItem {
	return []*models.RawLineItem{
		raw("536365", "85123A", "6", "2.55", "17850", "United Kingdom"),
		raw("536365", "71053", "6", "3.39", "17850", "United Kingdom"),
		raw("536366", "22633", "6", "1.85", "17850.0", "United Kingdom"),
		raw("536367", "84879", "32", "1.69", "13047", "United Kingdom"),
		raw("536370", "22728", "24", "3.75", "12583", "France"),
		raw("536370", "POST", "3", "18", "12583", "France"),
		raw("C536379", "D", "-1", "27.50", "14527", "United Kingdom"),
		raw("C536383", "85123A", "-100", "2.55", "17850", "United Kingdom"),
		raw("536414", "22139", "56", "0", "", "United Kingdom"),
	}
}

func TestLoadEndToEnd(t *testing.T) {
	ctx := context.Background()
	w := newSQLiteWarehouse(t)
	rec, err := metrics.NewRecorder("test", "")
	require.NoError(t, err)

	report, err := NewLoader(w, rec, newTestLogger()).Load(ctx, sampleRaw())
	require.NoError(t, err)

	require.Equal(t, 9, report.RawRows)
	require.Equal(t, 6, report.CleanedRows)
	require.Equal(t, 1, report.MissingCust)
	require.Equal(t, 2, report.Cancelled)
	require.Equal(t, models.TableCounts{Countries: 2, Products: 6, Customers: 3, Transactions: 6}, report.Inserted)
	require.Equal(t, report.Inserted, report.Stored)
	require.Zero(t, report.CountryConflicts)

	// 15.30 + 20.34 + 11.10 + 54.08 + 90.00 + 54.00
	require.True(t, report.Revenue.Equal(decimal.RequireFromString("244.82")), "revenue %s", report.Revenue)
	require.Equal(t, "84879", report.TopProducts[0].StockCode)
	require.Equal(t, "France", report.TopCountries[0].Country)
}

func TestLoadScenarioSameInvoiceCountsOnce(t *testing.T) {
	ctx := context.Background()
	w := newSQLiteWarehouse(t)

	_, err := NewLoader(w, nil, newTestLogger()).Load(ctx, []*models.RawLineItem{
		raw("536365", "85123A", "6", "2.55", "17850", "United Kingdom"),
		raw("536365", "71053", "6", "3.39", "17850", "United Kingdom"),
	})
	require.NoError(t, err)

	var orders int64
	var spent decimal.Decimal
	require.NoError(t, w.DB().QueryRowContext(ctx,
		"SELECT total_orders, total_spent FROM customers WHERE customer_id = 17850").Scan(&orders, &spent))
	require.Equal(t, int64(1), orders)
	require.True(t, spent.Equal(decimal.RequireFromString("35.64")), "spent %s", spent)
}

func TestLoadScenarioCancelledInvoiceExcluded(t *testing.T) {
	ctx := context.Background()
	w := newSQLiteWarehouse(t)

	_, err := NewLoader(w, nil, newTestLogger()).Load(ctx, sampleRaw())
	require.NoError(t, err)

	var n int64
	require.NoError(t, w.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE invoice_no LIKE 'C%'").Scan(&n))
	require.Zero(t, n)

	// The cancelled -100 line for 85123A must not reach the product aggregate.
	var sold int64
	require.NoError(t, w.DB().QueryRowContext(ctx,
		"SELECT total_sold FROM products WHERE stock_code = '85123A'").Scan(&sold))
	require.Equal(t, int64(6), sold)

	// Stock code D only appears on the cancelled invoice; customer 14527 likewise.
	require.NoError(t, w.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM products WHERE stock_code = 'D'").Scan(&n))
	require.Zero(t, n)
	require.NoError(t, w.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM customers WHERE customer_id = 14527").Scan(&n))
	require.Zero(t, n)
}

func TestLoadScenarioCountriesRerun(t *testing.T) {
	ctx := context.Background()
	w := newSQLiteWarehouse(t)
	l := NewLoader(w, nil, newTestLogger())

	first, inserted, err := l.LoadCountries(ctx, []string{"United Kingdom"})
	require.NoError(t, err)
	require.Equal(t, int64(1), inserted)

	second, inserted, err := l.LoadCountries(ctx, []string{"United Kingdom", "France"})
	require.NoError(t, err)
	require.Equal(t, int64(1), inserted, "only France is new")
	require.Len(t, second, 2)
	require.Equal(t, first["United Kingdom"], second["United Kingdom"])

	var n int64
	require.NoError(t, w.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM countries WHERE country_name = 'United Kingdom'").Scan(&n))
	require.Equal(t, int64(1), n)
}

func TestLoadReferentialClosure(t *testing.T) {
	ctx := context.Background()
	w := newSQLiteWarehouse(t)

	_, err := NewLoader(w, nil, newTestLogger()).Load(ctx, sampleRaw())
	require.NoError(t, err)

	var orphans int64
	require.NoError(t, w.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions t
		LEFT JOIN products p ON p.stock_code = t.stock_code
		LEFT JOIN customers c ON c.customer_id = t.customer_id
		LEFT JOIN countries k ON k.country_id = t.country_id
		WHERE p.stock_code IS NULL OR c.customer_id IS NULL OR k.country_id IS NULL`).Scan(&orphans))
	require.Zero(t, orphans)
}

func TestLoadMalformedRowAbortsBeforeWrites(t *testing.T) {
	ctx := context.Background()
	w := newSQLiteWarehouse(t)

	in := sampleRaw()
	in[3].Quantity = "lots"
	_, err := NewLoader(w, nil, newTestLogger()).Load(ctx, in)
	require.True(t, errors.Is(err, models.ErrMalformedRow), "got %v", err)

	counts, err := w.TableCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, models.TableCounts{}, counts)
}

func TestLoadCancelledRunWritesNothing(t *testing.T) {
	w := newSQLiteWarehouse(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLoader(w, nil, newTestLogger()).Load(ctx, sampleRaw())
	require.ErrorIs(t, err, context.Canceled)

	counts, err := w.TableCounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.TableCounts{}, counts)
}

// failingWarehouse fails the transaction insert after the dimensions succeed.
type failingWarehouse struct {
	storage.Warehouse
}

func (f failingWarehouse) InsertTransactions(context.Context, []*models.Transaction) (int64, error) {
	return 0, errors.New("disk full")
}

func TestLoadFactFailureLeavesDimensions(t *testing.T) {
	ctx := context.Background()
	w := newSQLiteWarehouse(t)

	_, err := NewLoader(failingWarehouse{w}, nil, newTestLogger()).Load(ctx, sampleRaw())
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "transactions"), "got %v", err)

	counts, err := w.TableCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), counts.Countries)
	require.Zero(t, counts.Transactions)
}

func TestLoadFlagsCountryConflicts(t *testing.T) {
	ctx := context.Background()
	w := newSQLiteWarehouse(t)

	report, err := NewLoader(w, nil, newTestLogger()).Load(ctx, []*models.RawLineItem{
		raw("1", "A", "1", "1", "42", "France"),
		raw("2", "A", "1", "1", "42", "Germany"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.CountryConflicts)

	var dimCountry, factCountry string
	require.NoError(t, w.DB().QueryRowContext(ctx, `
		SELECT k.country_name FROM customers c JOIN countries k ON k.country_id = c.country_id
		WHERE c.customer_id = 42`).Scan(&dimCountry))
	require.NoError(t, w.DB().QueryRowContext(ctx, `
		SELECT k.country_name FROM transactions t JOIN countries k ON k.country_id = t.country_id
		WHERE t.invoice_no = '2'`).Scan(&factCountry))
	require.Equal(t, "France", dimCountry)
	require.Equal(t, "Germany", factCountry)
}
