package storage

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"retail-etl/models"
)

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "staging.csv")

	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}
	in := []*models.RawLineItem{
		{InvoiceNo: "536365", StockCode: "85123A", Description: "WHITE HANGING HEART, T-LIGHT", Quantity: "6",
			InvoiceDate: "2010-12-01 08:26:00", UnitPrice: "2.55", CustomerID: "17850", Country: "United Kingdom"},
		{InvoiceNo: "536414", StockCode: "22139", Quantity: "56",
			InvoiceDate: "2010-12-01 11:52:00", UnitPrice: "0", Country: "United Kingdom"},
	}
	if err := w.WriteRaw(in); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out, err := ReadRawCSV(path)
	if err != nil {
		t.Fatalf("ReadRawCSV: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("rows: got %d, want 2", len(out))
	}
	if *out[0] != *in[0] || *out[1] != *in[1] {
		t.Errorf("round trip mismatch: %+v / %+v", out[0], out[1])
	}
}

func TestReadRawCSVMissingFile(t *testing.T) {
	_, err := ReadRawCSV(filepath.Join(t.TempDir(), "absent.csv"))
	if !errors.Is(err, models.ErrInputNotFound) {
		t.Errorf("expected ErrInputNotFound, got %v", err)
	}
}

func TestDecodeRawCSVReorderedColumns(t *testing.T) {
	data := "\ufeffCountry,CustomerID,UnitPrice,InvoiceDate,Quantity,Description,StockCode,InvoiceNo,Extra\n" +
		"France,12680,0.85,2011-12-09 12:50:00,12,PACK,22613,581587,x\n"

	out, err := DecodeRawCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeRawCSV: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("rows: got %d, want 1", len(out))
	}
	got := out[0]
	if got.InvoiceNo != "581587" || got.StockCode != "22613" || got.Country != "France" || got.CustomerID != "12680" {
		t.Errorf("unexpected mapping: %+v", got)
	}
}

func TestDecodeRawCSVMissingColumn(t *testing.T) {
	_, err := DecodeRawCSV(strings.NewReader("InvoiceNo,StockCode\n1,2\n"))
	if err == nil || !strings.Contains(err.Error(), "missing column") {
		t.Errorf("expected missing column error, got %v", err)
	}
}

func TestDecodeRawCSVEmpty(t *testing.T) {
	if _, err := DecodeRawCSV(strings.NewReader("")); err == nil {
		t.Error("expected error for empty input")
	}
}
