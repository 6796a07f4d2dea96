package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// dialect captures what differs between the supported warehouse engines:
// driver name, bind parameters, the insert-if-absent clause and the DDL.
type dialect struct {
	name      string
	driver    string
	maxParams int
	bind      func(n int) string
	// ignoreDup returns the clause that turns a duplicate of key into a no-op.
	ignoreDup func(key string) string
	schema    []string
}

var dropStatements = []string{
	"DROP TABLE IF EXISTS transactions",
	"DROP TABLE IF EXISTS customers",
	"DROP TABLE IF EXISTS products",
	"DROP TABLE IF EXISTS countries",
}

func questionBind(int) string { return "?" }

func onConflictDoNothing(key string) string {
	return "ON CONFLICT (" + key + ") DO NOTHING"
}

var postgresDialect = dialect{
	name:      "postgres",
	driver:    "postgres",
	maxParams: 65535,
	bind:      func(n int) string { return "$" + strconv.Itoa(n) },
	ignoreDup: onConflictDoNothing,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS countries (
			country_id   SERIAL PRIMARY KEY,
			country_name VARCHAR(100) UNIQUE NOT NULL,
			created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS customers (
			customer_id       INT PRIMARY KEY,
			country_id        INT REFERENCES countries(country_id),
			first_transaction DATE,
			total_orders      INT DEFAULT 0,
			total_spent       NUMERIC(10,2) DEFAULT 0.00,
			created_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			stock_code     VARCHAR(20) PRIMARY KEY,
			description    TEXT,
			avg_unit_price NUMERIC(10,2),
			total_sold     INT DEFAULT 0,
			created_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			transaction_id SERIAL PRIMARY KEY,
			invoice_no     VARCHAR(20) NOT NULL,
			stock_code     VARCHAR(20) REFERENCES products(stock_code),
			customer_id    INT REFERENCES customers(customer_id),
			quantity       INT,
			unit_price     NUMERIC(10,2),
			invoice_date   TIMESTAMP,
			total_amount   NUMERIC(10,2),
			country_id     INT REFERENCES countries(country_id),
			created_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invoice_date ON transactions (invoice_date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_customer_id ON transactions (customer_id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_code ON transactions (stock_code DESC)`,
	},
}

var mysqlDialect = dialect{
	name:      "mysql",
	driver:    "mysql",
	maxParams: 65535,
	bind:      questionBind,
	// Only a duplicate key is absorbed; INSERT IGNORE would also swallow
	// truncation and foreign key errors.
	ignoreDup: func(key string) string {
		return "ON DUPLICATE KEY UPDATE " + key + " = " + key
	},
	schema: []string{
		`CREATE TABLE IF NOT EXISTS countries (
			country_id   INT AUTO_INCREMENT PRIMARY KEY,
			country_name VARCHAR(100) UNIQUE NOT NULL,
			created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS customers (
			customer_id       INT PRIMARY KEY,
			country_id        INT,
			first_transaction DATE,
			total_orders      INT DEFAULT 0,
			total_spent       DECIMAL(10,2) DEFAULT 0.00,
			created_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (country_id) REFERENCES countries(country_id)
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			stock_code     VARCHAR(20) PRIMARY KEY,
			description    TEXT,
			avg_unit_price DECIMAL(10,2),
			total_sold     INT DEFAULT 0,
			created_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			transaction_id INT AUTO_INCREMENT PRIMARY KEY,
			invoice_no     VARCHAR(20) NOT NULL,
			stock_code     VARCHAR(20),
			customer_id    INT,
			quantity       INT,
			unit_price     DECIMAL(10,2),
			invoice_date   DATETIME,
			total_amount   DECIMAL(10,2),
			country_id     INT,
			created_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (stock_code) REFERENCES products(stock_code),
			FOREIGN KEY (customer_id) REFERENCES customers(customer_id),
			FOREIGN KEY (country_id) REFERENCES countries(country_id),
			INDEX idx_invoice_date (invoice_date DESC),
			INDEX idx_customer_id (customer_id DESC),
			INDEX idx_stock_code (stock_code DESC)
		)`,
	},
}

var sqliteDialect = dialect{
	name:      "sqlite",
	driver:    "sqlite",
	maxParams: 32766,
	bind:      questionBind,
	ignoreDup: onConflictDoNothing,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS countries (
			country_id   INTEGER PRIMARY KEY AUTOINCREMENT,
			country_name VARCHAR(100) UNIQUE NOT NULL,
			created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS customers (
			customer_id       INTEGER PRIMARY KEY,
			country_id        INTEGER REFERENCES countries(country_id),
			first_transaction DATE,
			total_orders      INTEGER DEFAULT 0,
			total_spent       NUMERIC(10,2) DEFAULT 0.00,
			created_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			stock_code     VARCHAR(20) PRIMARY KEY,
			description    TEXT,
			avg_unit_price NUMERIC(10,2),
			total_sold     INTEGER DEFAULT 0,
			created_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			transaction_id INTEGER PRIMARY KEY AUTOINCREMENT,
			invoice_no     VARCHAR(20) NOT NULL,
			stock_code     VARCHAR(20) REFERENCES products(stock_code),
			customer_id    INTEGER REFERENCES customers(customer_id),
			quantity       INTEGER,
			unit_price     NUMERIC(10,2),
			invoice_date   DATETIME,
			total_amount   NUMERIC(10,2),
			country_id     INTEGER REFERENCES countries(country_id),
			created_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invoice_date ON transactions (invoice_date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_customer_id ON transactions (customer_id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_code ON transactions (stock_code DESC)`,
	},
}

func lookupDialect(name string) (dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql":
		return postgresDialect, nil
	case "mysql":
		return mysqlDialect, nil
	case "sqlite", "sqlite3":
		return sqliteDialect, nil
	}
	return dialect{}, fmt.Errorf("storage: unsupported driver %q", name)
}

// insertSQL builds a multi-row INSERT for nrows rows. A non-empty key makes
// the statement insert-if-absent on that column.
func (d dialect) insertSQL(table string, cols []string, key string, nrows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")

	n := 0
	for r := 0; r < nrows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range cols {
			if c > 0 {
				b.WriteString(", ")
			}
			n++
			b.WriteString(d.bind(n))
		}
		b.WriteByte(')')
	}

	if key != "" {
		b.WriteByte(' ')
		b.WriteString(d.ignoreDup(key))
	}
	return b.String()
}

// rowsPerStatement caps a batch so that one statement stays under the
// engine's bind parameter limit.
func (d dialect) rowsPerStatement(batchSize, ncols int) int {
	limit := d.maxParams / ncols
	if batchSize < 1 || batchSize > limit {
		return limit
	}
	return batchSize
}
