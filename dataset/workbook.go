// Package dataset extracts invoice line items from the Online Retail II
// workbook. Each fiscal year is a separate sheet; rows of all requested
// sheets are concatenated in sheet order.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"retail-etl/models"
	"retail-etl/utils"
)

// field positions in a models.RawLineItem, used to map sheet headers.
const (
	fInvoiceNo = iota
	fStockCode
	fDescription
	fQuantity
	fInvoiceDate
	fUnitPrice
	fCustomerID
	fCountry
	numFields
)

// headerAliases maps a normalised header to its field. The spreadsheet has
// been published with both the InvoiceNo/UnitPrice/CustomerID and the
// Invoice/Price/Customer ID spellings.
var headerAliases = map[string]int{
	"invoiceno":   fInvoiceNo,
	"invoice":     fInvoiceNo,
	"stockcode":   fStockCode,
	"description": fDescription,
	"quantity":    fQuantity,
	"invoicedate": fInvoiceDate,
	"unitprice":   fUnitPrice,
	"price":       fUnitPrice,
	"customerid":  fCustomerID,
	"country":     fCountry,
}

var fieldNames = [numFields]string{
	"InvoiceNo", "StockCode", "Description", "Quantity", "InvoiceDate", "UnitPrice", "CustomerID", "Country",
}

// Reader reads line items out of an xlsx workbook.
type Reader struct {
	logger *utils.Logger
}

// NewReader creates a Reader with the given logger.
func NewReader(logger *utils.Logger) *Reader {
	return &Reader{logger: logger}
}

// ReadWorkbook reads and concatenates the named sheets of the workbook at
// path. InvoiceDate is normalised to utils.TimestampLayout and numeric cells
// to their shortest decimal form. A missing file wraps
// models.ErrInputNotFound; an unparseable date wraps models.ErrMalformedRow.
func (r *Reader) ReadWorkbook(ctx context.Context, path string, sheets []string) ([]*models.RawLineItem, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("dataset: %q: %w", path, models.ErrInputNotFound)
		}
		return nil, fmt.Errorf("dataset: stat %q: %w", path, err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %q: %w", path, err)
	}
	defer f.Close()

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	var items []*models.RawLineItem
	for _, sheet := range sheets {
		before := len(items)
		items, err = r.readSheet(ctx, f, sheet, date1904, items)
		if err != nil {
			return nil, err
		}
		r.logger.Info("[dataset] Sheet %q: %d rows", sheet, len(items)-before)
	}

	r.logger.Info("[dataset] Read %d rows from %d sheets of %s", len(items), len(sheets), path)
	return items, nil
}

func (r *Reader) readSheet(ctx context.Context, f *excelize.File, sheet string, date1904 bool, items []*models.RawLineItem) ([]*models.RawLineItem, error) {
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("dataset: sheet %q not found", sheet)
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("dataset: sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	var pos [numFields]int
	line := 0
	for rows.Next() {
		line++
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		cols, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("dataset: sheet %q row %d: %w", sheet, line, err)
		}

		if line == 1 {
			if pos, err = mapHeader(cols); err != nil {
				return nil, fmt.Errorf("dataset: sheet %q: %w", sheet, err)
			}
			continue
		}
		if blank(cols) {
			continue
		}

		cell := func(field int) string {
			if p := pos[field]; p < len(cols) {
				return strings.TrimSpace(cols[p])
			}
			return ""
		}

		date, err := cellTimestamp(cell(fInvoiceDate), date1904)
		if err != nil {
			return nil, fmt.Errorf("dataset: sheet %q row %d: InvoiceDate: %w: %v", sheet, line, models.ErrMalformedRow, err)
		}

		items = append(items, &models.RawLineItem{
			InvoiceNo:   cell(fInvoiceNo),
			StockCode:   cell(fStockCode),
			Description: cell(fDescription),
			Quantity:    cellNumber(cell(fQuantity)),
			InvoiceDate: date,
			UnitPrice:   cellNumber(cell(fUnitPrice)),
			CustomerID:  cellNumber(cell(fCustomerID)),
			Country:     cell(fCountry),
		})
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("dataset: sheet %q: %w", sheet, err)
	}
	if line == 0 {
		return nil, fmt.Errorf("dataset: sheet %q is empty", sheet)
	}
	return items, nil
}

func mapHeader(cols []string) ([numFields]int, error) {
	var pos [numFields]int
	for i := range pos {
		pos[i] = -1
	}
	for i, c := range cols {
		key := strings.ToLower(strings.NewReplacer(" ", "", "_", "").Replace(strings.TrimSpace(c)))
		if f, ok := headerAliases[key]; ok && pos[f] < 0 {
			pos[f] = i
		}
	}
	for f, p := range pos {
		if p < 0 {
			return pos, fmt.Errorf("missing column %s", fieldNames[f])
		}
	}
	return pos, nil
}

func blank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// cellTimestamp converts an Excel serial date, or a textual timestamp, to
// utils.TimestampLayout.
func cellTimestamp(raw string, date1904 bool) (string, error) {
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, date1904)
		if err != nil {
			return "", err
		}
		return t.Round(time.Second).Format(utils.TimestampLayout), nil
	}
	t, err := utils.ParseTimestamp(raw)
	if err != nil {
		return "", err
	}
	return t.Format(utils.TimestampLayout), nil
}

// cellNumber rewrites a numeric cell in its shortest form, so a stored
// 2.5499999999999998 becomes 2.55. Other values pass through for the
// cleaner to judge.
func cellNumber(raw string) string {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
