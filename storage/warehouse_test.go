package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"retail-etl/models"
	"retail-etl/utils"
)

func newTestWarehouse(t *testing.T, batchSize int) *SQLWarehouse {
	t.Helper()
	ctx := context.Background()
	w, err := NewSQLWarehouse(ctx, "sqlite", ":memory:", Options{
		BatchSize:       batchSize,
		ConnectAttempts: 1,
		Logger:          utils.NewLoggerWith(&bytes.Buffer{}, "error", "text"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	require.NoError(t, w.CreateSchema(ctx, true))
	return w
}

func TestNewSQLWarehouseRejectsUnknownDriver(t *testing.T) {
	_, err := NewSQLWarehouse(context.Background(), "oracle", "x", Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported driver")
}

func TestNewSQLWarehouseRejectsEmptyDSN(t *testing.T) {
	_, err := NewSQLWarehouse(context.Background(), "sqlite", " ", Options{})
	require.Error(t, err)
}

func TestNewSQLWarehouseConnectFailure(t *testing.T) {
	// Nothing listens on port 1, so the ping fails immediately.
	_, err := NewSQLWarehouse(context.Background(), "postgres",
		"host=127.0.0.1 port=1 user=x password=x dbname=x sslmode=disable connect_timeout=1",
		Options{ConnectAttempts: 1, Logger: utils.NewLoggerWith(&bytes.Buffer{}, "error", "text")})
	require.Error(t, err)
	require.True(t, errors.Is(err, models.ErrConnect), "want ErrConnect, got %v", err)
}

func TestCountriesInsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	w := newTestWarehouse(t, 2)

	n, err := w.InsertCountries(ctx, []string{"United Kingdom", "France", "Germany"})
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	first, err := w.CountryIDs(ctx)
	require.NoError(t, err)
	require.Len(t, first, 3)

	n, err = w.InsertCountries(ctx, []string{"United Kingdom", "EIRE"})
	require.NoError(t, err)
	require.Equal(t, int64(1), n, "only EIRE is new")

	second, err := w.CountryIDs(ctx)
	require.NoError(t, err)
	require.Len(t, second, 4)
	require.Equal(t, first["United Kingdom"], second["United Kingdom"])

	counts, err := w.TableCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(4), counts.Countries)
}

func TestFullStarSchemaRoundTrip(t *testing.T) {
	ctx := context.Background()
	w := newTestWarehouse(t, 500)

	_, err := w.InsertCountries(ctx, []string{"United Kingdom"})
	require.NoError(t, err)
	ids, err := w.CountryIDs(ctx)
	require.NoError(t, err)
	uk := ids["United Kingdom"]

	n, err := w.InsertProducts(ctx, []*models.Product{
		{StockCode: "85123A", Description: "WHITE HANGING HEART T-LIGHT HOLDER", AvgUnitPrice: decimal.RequireFromString("2.555"), TotalSold: 6},
		{StockCode: "POST", AvgUnitPrice: decimal.RequireFromString("18"), TotalSold: 1},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	first := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)
	n, err = w.InsertCustomers(ctx, []*models.Customer{
		{CustomerID: 17850, CountryID: uk, FirstTransaction: first, TotalOrders: 1, TotalSpent: decimal.RequireFromString("15.3")},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = w.InsertTransactions(ctx, []*models.Transaction{
		{InvoiceNo: "536365", StockCode: "85123A", CustomerID: 17850, Quantity: 6, UnitPrice: decimal.RequireFromString("2.55"),
			InvoiceDate: first, TotalAmount: decimal.RequireFromString("15.30"), CountryID: uk},
		{InvoiceNo: "536365", StockCode: "POST", CustomerID: 17850, Quantity: 1, UnitPrice: decimal.RequireFromString("18"),
			InvoiceDate: first, TotalAmount: decimal.RequireFromString("18"), CountryID: uk},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	var desc *string
	var avg decimal.Decimal
	require.NoError(t, w.db.QueryRowContext(ctx,
		"SELECT description, avg_unit_price FROM products WHERE stock_code = 'POST'").Scan(&desc, &avg))
	require.Nil(t, desc, "empty description is stored as NULL")
	require.True(t, avg.Equal(decimal.NewFromInt(18)))

	require.NoError(t, w.db.QueryRowContext(ctx,
		"SELECT avg_unit_price FROM products WHERE stock_code = '85123A'").Scan(&avg))
	require.True(t, avg.Equal(decimal.RequireFromString("2.56")), "money rounds half away from zero, got %s", avg)

	var day string
	require.NoError(t, w.db.QueryRowContext(ctx,
		"SELECT CAST(first_transaction AS TEXT) FROM customers WHERE customer_id = 17850").Scan(&day))
	require.Equal(t, "2010-12-01", day)

	counts, err := w.TableCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, models.TableCounts{Countries: 1, Products: 2, Customers: 1, Transactions: 2}, counts)
}

func TestTransactionsRequireDimensions(t *testing.T) {
	ctx := context.Background()
	w := newTestWarehouse(t, 10)

	_, err := w.InsertTransactions(ctx, []*models.Transaction{
		{InvoiceNo: "1", StockCode: "NOPE", CustomerID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(1),
			InvoiceDate: time.Now(), TotalAmount: decimal.NewFromInt(1), CountryID: 99},
	})
	require.Error(t, err, "foreign keys must reject orphan facts")

	counts, err := w.TableCounts(ctx)
	require.NoError(t, err)
	require.Zero(t, counts.Transactions)
}

func TestInsertRowsBatchesAcrossStatements(t *testing.T) {
	ctx := context.Background()
	w := newTestWarehouse(t, 3)

	names := []string{"A", "B", "C", "D", "E", "F", "G", "A"}
	n, err := w.InsertCountries(ctx, names)
	require.NoError(t, err)
	require.Equal(t, int64(7), n)
}

func TestCreateSchemaResetDropsRows(t *testing.T) {
	ctx := context.Background()
	w := newTestWarehouse(t, 10)

	_, err := w.InsertCountries(ctx, []string{"France"})
	require.NoError(t, err)

	require.NoError(t, w.CreateSchema(ctx, false))
	counts, err := w.TableCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), counts.Countries, "schema without reset keeps data")

	require.NoError(t, w.CreateSchema(ctx, true))
	counts, err = w.TableCounts(ctx)
	require.NoError(t, err)
	require.Zero(t, counts.Countries)
}

func TestInsertEmptyIsNoop(t *testing.T) {
	w := newTestWarehouse(t, 10)
	n, err := w.InsertTransactions(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, n)
}
