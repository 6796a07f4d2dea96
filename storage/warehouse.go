package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"retail-etl/models"
	"retail-etl/utils"
)

// Options tunes a SQLWarehouse.
type Options struct {
	// BatchSize is the number of rows per INSERT statement.
	BatchSize int
	// ConnectAttempts is how many times the initial ping is tried.
	ConnectAttempts int
	Logger          *utils.Logger
}

// SQLWarehouse persists the star schema through database/sql. It holds a
// single connection for the whole run; every statement auto-commits except
// the batches of one table, which share a transaction.
type SQLWarehouse struct {
	db        *sql.DB
	dialect   dialect
	batchSize int
	logger    *utils.Logger
}

var _ Warehouse = (*SQLWarehouse)(nil)

// NewSQLWarehouse opens a connection for driver (mysql, postgres or sqlite),
// checks it is reachable and returns a ready-to-use SQLWarehouse.
// Connectivity failures wrap models.ErrConnect.
func NewSQLWarehouse(ctx context.Context, driver, dsn string, opts Options) (*SQLWarehouse, error) {
	d, err := lookupDialect(driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("storage: DSN must not be empty")
	}
	if d.name == "sqlite" {
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", d.name, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	logger := opts.Logger
	if logger == nil {
		logger = utils.NewLogger()
	}

	retry := &utils.RetryConfig{MaxAttempts: opts.ConnectAttempts, BaseDelay: 2 * time.Second, Logger: logger}
	err = retry.Do(ctx, d.name+" ping", func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: %w: %w", models.ErrConnect, err)
	}

	if d.name == "sqlite" {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("storage: enable foreign keys: %w", err)
		}
	}

	logger.Info("[storage] Connected to %s warehouse", d.name)
	return &SQLWarehouse{db: db, dialect: d, batchSize: opts.BatchSize, logger: logger}, nil
}

// ensureSQLiteDir creates the parent directory of a plain sqlite file path.
func ensureSQLiteDir(dsn string) error {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
		return fmt.Errorf("storage: create sqlite dir: %w", err)
	}
	return nil
}

// CreateSchema creates the warehouse tables, dropping them first when reset is set.
func (w *SQLWarehouse) CreateSchema(ctx context.Context, reset bool) error {
	var stmts []string
	if reset {
		stmts = append(stmts, dropStatements...)
	}
	stmts = append(stmts, w.dialect.schema...)

	for _, stmt := range stmts {
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: schema: %w", err)
		}
	}
	w.logger.Info("[storage] Schema ready (reset=%t)", reset)
	return nil
}

func (w *SQLWarehouse) InsertCountries(ctx context.Context, names []string) (int64, error) {
	rows := make([][]any, 0, len(names))
	for _, name := range names {
		rows = append(rows, []any{name})
	}
	return w.insertRows(ctx, "countries", []string{"country_name"}, "country_name", rows)
}

func (w *SQLWarehouse) CountryIDs(ctx context.Context) (map[string]int64, error) {
	rows, err := w.db.QueryContext(ctx, "SELECT country_id, country_name FROM countries")
	if err != nil {
		return nil, fmt.Errorf("storage: fetch countries: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]int64)
	for rows.Next() {
		var c models.Country
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("storage: scan country: %w", err)
		}
		ids[c.Name] = c.ID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: fetch countries: %w", err)
	}
	return ids, nil
}

func (w *SQLWarehouse) InsertProducts(ctx context.Context, products []*models.Product) (int64, error) {
	rows := make([][]any, 0, len(products))
	for _, p := range products {
		rows = append(rows, []any{p.StockCode, nullString(p.Description), money(p.AvgUnitPrice), p.TotalSold})
	}
	return w.insertRows(ctx, "products",
		[]string{"stock_code", "description", "avg_unit_price", "total_sold"}, "stock_code", rows)
}

func (w *SQLWarehouse) InsertCustomers(ctx context.Context, customers []*models.Customer) (int64, error) {
	rows := make([][]any, 0, len(customers))
	for _, c := range customers {
		rows = append(rows, []any{
			c.CustomerID, c.CountryID, c.FirstTransaction.Format(time.DateOnly), c.TotalOrders, money(c.TotalSpent),
		})
	}
	return w.insertRows(ctx, "customers",
		[]string{"customer_id", "country_id", "first_transaction", "total_orders", "total_spent"}, "customer_id", rows)
}

func (w *SQLWarehouse) InsertTransactions(ctx context.Context, txns []*models.Transaction) (int64, error) {
	rows := make([][]any, 0, len(txns))
	for _, t := range txns {
		rows = append(rows, []any{
			t.InvoiceNo, t.StockCode, t.CustomerID, t.Quantity, money(t.UnitPrice),
			t.InvoiceDate, money(t.TotalAmount), t.CountryID,
		})
	}
	return w.insertRows(ctx, "transactions", []string{
		"invoice_no", "stock_code", "customer_id", "quantity", "unit_price",
		"invoice_date", "total_amount", "country_id",
	}, "", rows)
}

// TableCounts returns the row count of each warehouse table.
func (w *SQLWarehouse) TableCounts(ctx context.Context) (models.TableCounts, error) {
	var tc models.TableCounts
	targets := []struct {
		table string
		dst   *int64
	}{
		{"countries", &tc.Countries},
		{"products", &tc.Products},
		{"customers", &tc.Customers},
		{"transactions", &tc.Transactions},
	}
	for _, t := range targets {
		if err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.table).Scan(t.dst); err != nil {
			return tc, fmt.Errorf("storage: count %s: %w", t.table, err)
		}
	}
	return tc, nil
}

// DB exposes the underlying handle so callers and tests can inspect the
// loaded tables. The loader itself never uses it.
func (w *SQLWarehouse) DB() *sql.DB {
	return w.db
}

func (w *SQLWarehouse) Close() error {
	return w.db.Close()
}

// insertRows writes rows in multi-row batches inside one transaction, so a
// table is either fully written or left untouched. It returns the number of
// rows the engine reports as inserted, which excludes absorbed duplicates.
func (w *SQLWarehouse) insertRows(ctx context.Context, table string, cols []string, key string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	per := w.dialect.rowsPerStatement(w.batchSize, len(cols))

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage: begin %s: %w", table, err)
	}

	var inserted int64
	args := make([]any, 0, per*len(cols))
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))

		args = args[:0]
		for _, r := range rows[start:end] {
			args = append(args, r...)
		}

		res, err := tx.ExecContext(ctx, w.dialect.insertSQL(table, cols, key, end-start), args...)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("storage: insert %s rows %d-%d: %w", table, start, end-1, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage: commit %s: %w", table, err)
	}

	w.logger.Debug("[storage] %s: %d/%d rows inserted", table, inserted, len(rows))
	return inserted, nil
}

// money rounds to the two decimal places of the NUMERIC(10,2) columns.
func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
