// Package csvrow turns a CSV stream into typed rows. Each data row is
// validated on its own: a bad row yields a row error and the stream goes on.
package csvrow

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingHeader = errors.New("CSV header row is missing")
	ErrUnreadable    = errors.New("unable to read CSV file")
)

// RowError is a validation failure scoped to one data row.
type RowError struct {
	Line    int
	Column  string
	Message string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Record holds the parsed values of a valid row, keyed by column name.
type Record struct {
	text    map[string]string
	dates   map[string]time.Time
	amounts map[string]decimal.Decimal
}

// String returns the trimmed text of a column, "" when absent.
func (r *Record) String(col string) string { return r.text[col] }

func (r *Record) Date(col string) time.Time { return r.dates[col] }

func (r *Record) Amount(col string) decimal.Decimal { return r.amounts[col] }

// Has reports whether a column carried a non-blank value (or a default).
func (r *Record) Has(col string) bool {
	_, ok := r.text[col]
	return ok
}

// Row is either a valid Record or a RowError. Raw values are kept in both
// cases so callers can persist what was sent.
type Row struct {
	Line   int
	Raw    map[string]string
	Record *Record
	Err    *RowError
}

func (r Row) Valid() bool { return r.Err == nil }

// Reader streams validated rows from a CSV source.
type Reader struct {
	csv    *csv.Reader
	schema Schema
	index  map[string]int
}

// NewReader consumes the header row. A missing or unreadable header is a
// structural error and no rows can be produced.
func NewReader(r io.Reader, schema Schema) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		if !utf8.ValidString(h) {
			return nil, fmt.Errorf("%w: header is not valid UTF-8", ErrUnreadable)
		}
		name := strings.ToLower(strings.TrimSpace(h))
		if name == "" {
			continue
		}
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	if len(index) == 0 {
		return nil, ErrMissingHeader
	}
	return &Reader{csv: cr, schema: schema, index: index}, nil
}

// HasColumn reports whether the header carried the given name.
func (r *Reader) HasColumn(name string) bool {
	_, ok := r.index[strings.ToLower(name)]
	return ok
}

// Next returns the next non-blank data row, or io.EOF when the stream ends.
func (r *Reader) Next() (Row, error) {
	for {
		record, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			return Row{}, io.EOF
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return Row{Line: perr.Line, Err: &RowError{Line: perr.Line, Message: "malformed CSV row: " + perr.Err.Error()}}, nil
		}
		if err != nil {
			return Row{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}

		line, _ := r.csv.FieldPos(0)
		if blank(record) {
			continue
		}
		return r.validate(line, record), nil
	}
}

// ReadAll drains the reader.
func (r *Reader) ReadAll() ([]Row, error) {
	var rows []Row
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

func (r *Reader) validate(line int, record []string) Row {
	row := Row{Line: line, Raw: make(map[string]string, len(r.schema.Columns))}
	rec := &Record{
		text:    make(map[string]string),
		dates:   make(map[string]time.Time),
		amounts: make(map[string]decimal.Decimal),
	}

	for _, f := range record {
		if !utf8.ValidString(f) {
			row.Err = &RowError{Line: line, Message: "row is not valid UTF-8"}
			return row
		}
	}

	for _, col := range r.schema.Columns {
		value := r.lookup(col, record)
		row.Raw[col.Name] = value
		if row.Err != nil {
			continue
		}
		if err := r.parse(line, col, value, rec); err != nil {
			row.Err = &RowError{Line: line, Column: col.Name, Message: err.Error()}
		}
	}

	if row.Err != nil {
		return row
	}
	row.Record = rec
	return row
}

func (r *Reader) lookup(col Column, record []string) string {
	for _, h := range col.headers() {
		i, ok := r.index[strings.ToLower(h)]
		if !ok || i >= len(record) {
			continue
		}
		if v := strings.TrimSpace(record[i]); v != "" {
			return v
		}
	}
	return ""
}

func (r *Reader) parse(line int, col Column, value string, rec *Record) error {
	if value == "" {
		if col.Default != "" {
			value = col.Default
		} else if col.Required {
			if col.Kind == Text {
				return fmt.Errorf("missing required column '%s' at line %d", col.Name, line)
			}
			return fmt.Errorf("%s is required", col.Name)
		} else {
			return nil
		}
	}
	if col.Upper || col.Kind == Flag {
		value = strings.ToUpper(value)
	}

	switch col.Kind {
	case Date:
		d, err := ParseDate(value, r.schema.DateLayouts)
		if err != nil {
			return fmt.Errorf("invalid %s format. Use %s", col.Name, strings.Join(r.schema.DateLabels, " or "))
		}
		rec.dates[col.Name] = d
	case Amount:
		a, err := ParseAmount(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %s", col.Name, value)
		}
		rec.amounts[col.Name] = a
	case Flag:
		if !contains(col.Allowed, value) {
			return fmt.Errorf("%s must be %s", col.Name, orList(col.Allowed))
		}
	}
	rec.text[col.Name] = value
	return nil
}

// ParseDate tries each layout in order and returns the first success.
func ParseDate(value string, layouts []string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no date layouts configured")
	}
	return time.Time{}, lastErr
}

// ParseAmount parses an exact decimal. Exponents, thousands separators and
// non-finite values are rejected.
func ParseAmount(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.ContainsAny(value, "eE,_ ") {
		return decimal.Zero, fmt.Errorf("not a plain decimal: %q", value)
	}
	return decimal.NewFromString(value)
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func orList(values []string) string {
	switch len(values) {
	case 0:
		return ""
	case 1:
		return values[0]
	}
	return strings.Join(values[:len(values)-1], ", ") + " or " + values[len(values)-1]
}
