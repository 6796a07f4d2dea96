package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"retail-etl/models"
)

// StagingHeader is the column order of the staging CSV.
var StagingHeader = []string{
	"InvoiceNo", "StockCode", "Description", "Quantity", "InvoiceDate", "UnitPrice", "CustomerID", "Country",
}

// CSVWriter writes raw (uncleaned) line items to the staging CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

var _ RawLineItemWriter = (*CSVWriter)(nil)

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(StagingHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteRaw appends the given line items to the file.
func (c *CSVWriter) WriteRaw(items []*models.RawLineItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, it := range items {
		row := []string{
			it.InvoiceNo,
			it.StockCode,
			it.Description,
			it.Quantity,
			it.InvoiceDate,
			it.UnitPrice,
			it.CustomerID,
			it.Country,
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		_ = c.file.Close()
		return fmt.Errorf("csv: flush: %w", err)
	}
	return c.file.Close()
}

// ReadRawCSV reads the staging CSV written by CSVWriter. Columns are matched
// by header name, so extra columns and reordering are tolerated. A missing
// file is reported as models.ErrInputNotFound.
func ReadRawCSV(path string) ([]*models.RawLineItem, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("csv: %q: %w", path, models.ErrInputNotFound)
		}
		return nil, fmt.Errorf("csv: open %q: %w", path, err)
	}
	defer f.Close()

	return DecodeRawCSV(f)
}

// DecodeRawCSV parses staging CSV content from r.
func DecodeRawCSV(r io.Reader) ([]*models.RawLineItem, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv: empty file")
		}
		return nil, fmt.Errorf("csv: read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	pos := make([]int, len(StagingHeader))
	for i, name := range StagingHeader {
		p, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("csv: missing column %q", name)
		}
		pos[i] = p
	}
	cr.FieldsPerRecord = len(header)

	var items []*models.RawLineItem
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: read row %d: %w", len(items)+2, err)
		}
		items = append(items, &models.RawLineItem{
			InvoiceNo:   rec[pos[0]],
			StockCode:   rec[pos[1]],
			Description: rec[pos[2]],
			Quantity:    rec[pos[3]],
			InvoiceDate: rec[pos[4]],
			UnitPrice:   rec[pos[5]],
			CustomerID:  rec[pos[6]],
			Country:     rec[pos[7]],
		})
	}
	return items, nil
}
