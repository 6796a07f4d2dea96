package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawLineItem holds one spreadsheet row exactly as extracted.
// This is written to the staging CSV before any cleaning or transformation.
// An empty CustomerID is a missing customer.
type RawLineItem struct {
	InvoiceNo   string
	StockCode   string
	Description string
	Quantity    string
	InvoiceDate string
	UnitPrice   string
	CustomerID  string
	Country     string
}

// LineItem is a cleaned, typed invoice line ready for the dimension builders.
type LineItem struct {
	InvoiceNo   string
	StockCode   string
	Description string // empty when the source had none
	Quantity    int64
	UnitPrice   decimal.Decimal
	InvoiceDate time.Time
	CustomerID  int64
	Country     string
	TotalAmount decimal.Decimal
}

// Country is a row of the countries dimension.
type Country struct {
	ID   int64
	Name string
}

// Product is a row of the products dimension, keyed by stock code.
type Product struct {
	StockCode    string
	Description  string // empty is stored as NULL
	AvgUnitPrice decimal.Decimal
	TotalSold    int64
}

// CustomerAggregate is a customer summary before its country is resolved to an id.
type CustomerAggregate struct {
	CustomerID       int64
	CountryName      string
	FirstTransaction time.Time
	TotalOrders      int64
	TotalSpent       decimal.Decimal
}

// Customer is a row of the customers dimension.
type Customer struct {
	CustomerID       int64
	CountryID        int64
	FirstTransaction time.Time // only the date part is persisted
	TotalOrders      int64
	TotalSpent       decimal.Decimal
}

// Transaction is a row of the transactions fact table. The surrogate
// transaction_id is assigned by the warehouse.
type Transaction struct {
	InvoiceNo   string
	StockCode   string
	CustomerID  int64
	Quantity    int64
	UnitPrice   decimal.Decimal
	InvoiceDate time.Time
	TotalAmount decimal.Decimal
	CountryID   int64
}

// TableCounts holds the row count of every warehouse table.
type TableCounts struct {
	Countries    int64
	Products     int64
	Customers    int64
	Transactions int64
}

// ProductVolume is one entry of the top-products ranking.
type ProductVolume struct {
	StockCode   string
	Description string
	TotalSold   int64
}

// CountryRevenue is one entry of the top-countries ranking.
type CountryRevenue struct {
	Country string
	Revenue decimal.Decimal
	Lines   int
}

// LoadReport summarises a completed load pass.
type LoadReport struct {
	RunID        string
	RawRows      int
	CleanedRows  int
	MissingCust  int
	Cancelled    int
	Inserted     TableCounts
	Stored       TableCounts
	Revenue      decimal.Decimal
	TopProducts  []ProductVolume
	TopCountries []CountryRevenue
	// CountryConflicts counts customers whose rows name more than one country.
	CountryConflicts int
	Duration         time.Duration
}
