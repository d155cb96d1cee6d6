package transform

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// strOr returns the first non-empty string among the named fields,
// NFC-normalized and coerced to valid UTF-8. Numbers render as text.
func strOr(rec map[string]any, names ...string) string {
	for _, name := range names {
		v, ok := rec[name]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = strings.TrimSpace(t)
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(t)
		default:
			s = strings.TrimSpace(fmt.Sprint(t))
		}
		if s == "" || s == "null" {
			continue
		}
		return norm.NFC.String(strings.ToValidUTF8(s, ""))
	}
	return ""
}

// intOr coerces the field to an int, returning def on anything unparseable.
// String values may carry a decimal part, which is truncated.
func intOr(rec map[string]any, name string, def int) int {
	v, ok := rec[name]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		t = strings.TrimSpace(t)
		if t == "" || t == "null" {
			return def
		}
		if n, err := strconv.Atoi(t); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return int(f)
		}
	}
	return def
}

// floatOr coerces the field to a float64, returning def on failure.
func floatOr(rec map[string]any, name string, def float64) float64 {
	v, ok := rec[name]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case string:
		if f, err := parseDecimal(t); err == nil {
			return f
		}
	}
	return def
}

// moneyOr coerces a monetary field to float64, defaulting to 0. The POS
// feed sends money under "$"-prefixed field names, sometimes as numbers
// and sometimes as pt-BR formatted strings ("1.234,56"). Both field names
// are probed so callers pass the bare name once.
func moneyOr(rec map[string]any, name string) float64 {
	if _, ok := rec["$"+name]; ok {
		return floatOr(rec, "$"+name, 0)
	}
	return floatOr(rec, name, 0)
}

// parseDecimal parses a decimal string in either en-US ("1,234.56") or
// pt-BR ("1.234,56") convention, with optional currency cruft.
func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return 0, strconv.ErrSyntax
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	if lastComma > lastDot {
		// pt-BR: dots are thousands separators, comma is the decimal mark.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	} else if lastComma >= 0 {
		// en-US: commas are thousands separators.
		s = strings.ReplaceAll(s, ",", "")
	}

	return strconv.ParseFloat(s, 64)
}

// dateOnly reduces an ISO datetime to its YYYY-MM-DD prefix. The feeds
// send business dates as full timestamps ("2025-08-15T03:00:00.000Z");
// only the date part is meaningful.
func dateOnly(rec map[string]any, names ...string) string {
	s := strOr(rec, names...)
	if s == "" {
		return ""
	}
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	return s
}

// dateOrNil is dateOnly but yields NULL for absent dates, so date columns
// accept records the feed sent without one.
func dateOrNil(rec map[string]any, names ...string) any {
	if s := dateOnly(rec, names...); s != "" {
		return s
	}
	return nil
}

// nilIfEmpty converts an empty string to NULL for nullable columns.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// hourOf extracts the hour from values like "18:00", "18", or 18.
func hourOf(rec map[string]any, name string) int {
	v, ok := rec[name]
	if !ok || v == nil {
		return 0
	}
	if s, isStr := v.(string); isStr {
		if i := strings.IndexByte(s, ':'); i >= 0 {
			s = s[:i]
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0
		}
		return n
	}
	return intOr(rec, name, 0)
}

// monthOf extracts the month number from composite encodings like
// "2025-08", falling back to plain integer values.
func monthOf(rec map[string]any, name string) int {
	v, ok := rec[name]
	if !ok || v == nil {
		return 0
	}
	if s, isStr := v.(string); isStr {
		if i := strings.IndexByte(s, '-'); i >= 0 {
			s = s[i+1:]
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0
		}
		return n
	}
	return intOr(rec, name, 0)
}

// nested reads a field from a nested object, e.g. nested(rec, "category", "name").
func nested(rec map[string]any, object, field string) string {
	obj, ok := rec[object].(map[string]any)
	if !ok {
		return ""
	}
	return strOr(obj, field)
}
