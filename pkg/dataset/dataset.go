package dataset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are the formats ParseValue recognises as dates, tried in order.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
}

// Row is one record. Field names are case-sensitive.
type Row map[string]any

// Dataset is an ordered sequence of rows.
type Dataset []Row

// MissingFieldError reports that a row has no value for Field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q", e.Field)
}

// FieldTypeError reports that a field holds a value of the wrong kind.
type FieldTypeError struct {
	Field string
	Value any
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("field %q: value %v (%T) is not numeric", e.Field, e.Value, e.Value)
}

// Has reports whether field is present with a non-nil value.
func (r Row) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

// Number returns field as a float64. Numeric strings are parsed.
func (r Row) Number(field string) (float64, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return 0, &MissingFieldError{Field: field}
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, &FieldTypeError{Field: field, Value: v}
		}
		return f, nil
	default:
		return 0, &FieldTypeError{Field: field, Value: v}
	}
}

// String renders field for display. Missing fields render as "".
func (r Row) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	return FormatValue(v)
}

// Clone returns a shallow copy of r. Scalars are values, so the copy is
// independent of the original.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Clone copies every row of d.
func (d Dataset) Clone() Dataset {
	if d == nil {
		return nil
	}
	out := make(Dataset, len(d))
	for i, r := range d {
		out[i] = r.Clone()
	}
	return out
}

// Fields returns the sorted union of field names across all rows.
func (d Dataset) Fields() []string {
	seen := make(map[string]struct{})
	for _, r := range d {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SortBy stable-sorts d in place by field. Rows missing the field sort last.
func (d Dataset) SortBy(field string) {
	sort.SliceStable(d, func(i, j int) bool {
		a, aok := d[i][field]
		b, bok := d[j][field]
		switch {
		case a == nil || !aok:
			return false
		case b == nil || !bok:
			return true
		}
		return less(a, b)
	})
}

func less(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Before(tb)
		}
	}
	fa, errA := Row{"v": a}.Number("v")
	fb, errB := Row{"v": b}.Number("v")
	if errA == nil && errB == nil {
		return fa < fb
	}
	return FormatValue(a) < FormatValue(b)
}

// ParseValue infers a scalar from its text form: empty is nil, then int64,
// float64, date, and finally the string itself.
func ParseValue(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return s
}

// FormatValue is the inverse of ParseValue, used for CSV export and alert text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}
