package services

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"retail-etl/models"
	"retail-etl/utils"
)

// CancellationMarker prefixes the invoice number of a cancelled order.
const CancellationMarker = "C"

// Cleaner transforms RawLineItems into typed, filtered LineItems.
type Cleaner struct {
	logger *utils.Logger
}

// CleanStats counts what the cleaner removed.
type CleanStats struct {
	Input           int
	MissingCustomer int
	Cancelled       int
	Output          int
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean parses and filters the whole dataset. Any row with an unparseable
// date, customer id, quantity or price aborts the run with an error wrapping
// models.ErrMalformedRow; there is no per-row recovery.
func (c *Cleaner) Clean(raw []*models.RawLineItem) ([]*models.LineItem, CleanStats, error) {
	stats := CleanStats{Input: len(raw)}
	result := make([]*models.LineItem, 0, len(raw))

	for i, r := range raw {
		// Row numbers are 1-based after the header line.
		row := i + 2

		date, err := utils.ParseTimestamp(r.InvoiceDate)
		if err != nil {
			return nil, stats, malformed(row, "InvoiceDate", r.InvoiceDate, err)
		}

		custRaw := strings.TrimSpace(r.CustomerID)
		if custRaw == "" {
			stats.MissingCustomer++
			continue
		}
		customerID, err := parseCustomerID(custRaw)
		if err != nil {
			return nil, stats, malformed(row, "CustomerID", r.CustomerID, err)
		}

		qty, err := parseQuantity(r.Quantity)
		if err != nil {
			return nil, stats, malformed(row, "Quantity", r.Quantity, err)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(r.UnitPrice))
		if err != nil {
			return nil, stats, malformed(row, "UnitPrice", r.UnitPrice, err)
		}

		invoice := strings.TrimSpace(r.InvoiceNo)
		if strings.HasPrefix(invoice, CancellationMarker) {
			stats.Cancelled++
			continue
		}

		result = append(result, &models.LineItem{
			InvoiceNo:   invoice,
			StockCode:   strings.TrimSpace(r.StockCode),
			Description: normaliseText(r.Description),
			Quantity:    qty,
			UnitPrice:   price,
			InvoiceDate: date,
			CustomerID:  customerID,
			Country:     normaliseText(r.Country),
			TotalAmount: price.Mul(decimal.NewFromInt(qty)),
		})
	}

	stats.Output = len(result)
	c.logger.Info("[cleaner] Cleaned %d → %d line items (missing customer %d, cancelled %d)",
		stats.Input, stats.Output, stats.MissingCustomer, stats.Cancelled)
	return result, stats, nil
}

func malformed(row int, field, value string, err error) error {
	return fmt.Errorf("cleaner: row %d: %s %q: %w: %v", row, field, value, models.ErrMalformedRow, err)
}

// parseCustomerID accepts "17850" and the float form "17850.0" that a
// column with missing values is exported as. A fractional part is truncated.
// The result must fit the INT key column.
func parseCustomerID(raw string) (int64, error) {
	if n, err := strconv.ParseInt(raw, 10, 32); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a number")
	}
	if f <= math.MinInt32-1 || f >= math.MaxInt32+1 {
		return 0, fmt.Errorf("out of range")
	}
	return int64(f), nil
}

// parseQuantity accepts integers and integral floats such as "6.0" within
// the range of the INT quantity column.
func parseQuantity(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 32); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not an integer")
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("out of range")
	}
	return int64(f), nil
}

// normaliseText applies NFC, strips leading/trailing whitespace and collapses
// internal whitespace.
func normaliseText(s string) string {
	s = norm.NFC.String(s)
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}
