package parser

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// isoDateTimeLayouts are tried in order before falling back to epoch millis.
var isoDateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
}

// ParseLong parses a numeric string into an int64, tolerating decimal input
// by truncation. Returns nil when the text is not numeric.
func ParseLong(text string) *int64 {
	dec := ParseDecimal(text)
	if dec == nil {
		return nil
	}

	v := dec.IntPart()

	return &v
}

// ParseDecimal parses a decimal string. Returns nil when parsing fails.
func ParseDecimal(text string) *decimal.Decimal {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	dec, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil
	}

	return &dec
}

// ParseXMLDateTime parses a date-time string into epoch milliseconds.
// ISO-8601 forms are tried first, then a plain epoch-millis numeric string.
// Returns nil when both fail.
func ParseXMLDateTime(text string) *int64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	for _, layout := range isoDateTimeLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			millis := parsed.UnixMilli()

			return &millis
		}
	}

	if millis, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return &millis
	}

	return nil
}
