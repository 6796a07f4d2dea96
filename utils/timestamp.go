package utils

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the form invoice timestamps are written in.
const TimestampLayout = "2006-01-02 15:04:05"

// timestampLayouts are the accepted InvoiceDate forms, most common first.
var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"1/2/2006 15:04",
	"1/2/06 15:04",
}

// ParseTimestamp parses an invoice timestamp in any of the accepted layouts.
// Values without a zone are taken as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}
