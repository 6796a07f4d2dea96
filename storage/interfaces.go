package storage

import (
	"context"

	"retail-etl/models"
)

// Warehouse is the relational store the loader writes the star schema into.
// Dimension inserts are insert-if-absent on the documented natural key and
// return the number of rows actually inserted; fact inserts are unconditional.
type Warehouse interface {
	// CreateSchema creates the four tables and their indexes. With reset the
	// existing tables are dropped first.
	CreateSchema(ctx context.Context, reset bool) error

	// InsertCountries is insert-if-absent keyed on country_name.
	InsertCountries(ctx context.Context, names []string) (int64, error)
	// CountryIDs reads back the whole countries table as name -> country_id.
	CountryIDs(ctx context.Context) (map[string]int64, error)

	// InsertProducts is insert-if-absent keyed on stock_code.
	InsertProducts(ctx context.Context, products []*models.Product) (int64, error)
	// InsertCustomers is insert-if-absent keyed on customer_id.
	InsertCustomers(ctx context.Context, customers []*models.Customer) (int64, error)
	// InsertTransactions inserts every row; there is no conflict handling.
	InsertTransactions(ctx context.Context, txns []*models.Transaction) (int64, error)

	TableCounts(ctx context.Context) (models.TableCounts, error)
	Close() error
}

// RawLineItemWriter is the interface for persisting unprocessed extracted rows.
type RawLineItemWriter interface {
	WriteRaw(items []*models.RawLineItem) error
	Close() error
}
