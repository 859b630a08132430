// Package frame reshapes a SQL result set into a datetime-indexed table of
// numeric series.
package frame

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IndexColumn is the result-set column used as the time index.
const IndexColumn = "datetime"

var ErrNoDatetime = errors.New("result has no datetime column")

// Rows is the subset of *sql.Rows the frame needs.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// Frame holds series in result-set column order. Values[c][r] is nil for SQL NULL.
type Frame struct {
	Index   []time.Time
	Columns []string
	Values  [][]*float64
}

func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Index)
}

func (f *Frame) Empty() bool {
	return f.Len() == 0
}

// Column returns the values of the named series.
func (f *Frame) Column(name string) ([]*float64, bool) {
	for i, c := range f.Columns {
		if c == name {
			return f.Values[i], true
		}
	}
	return nil, false
}

// FromRows consumes rows. Row order is kept as returned by the store.
func FromRows(rows Rows) (*Frame, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	indexPos := -1
	f := &Frame{}
	var seriesPos []int
	for i, c := range cols {
		if strings.EqualFold(c, IndexColumn) && indexPos < 0 {
			indexPos = i
			continue
		}
		f.Columns = append(f.Columns, c)
		seriesPos = append(seriesPos, i)
	}
	if indexPos < 0 {
		return nil, fmt.Errorf("%w (columns: %s)", ErrNoDatetime, strings.Join(cols, ", "))
	}
	f.Values = make([][]*float64, len(f.Columns))

	cells := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range cells {
		dest[i] = &cells[i]
	}

	row := 0
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", row, err)
		}
		ts, err := ParseTime(cells[indexPos])
		if err != nil {
			return nil, fmt.Errorf("row %d column %s: %w", row, cols[indexPos], err)
		}
		f.Index = append(f.Index, ts)
		for s, pos := range seriesPos {
			v, err := ParseFloat(cells[pos])
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", row, cols[pos], err)
			}
			f.Values[s] = append(f.Values[s], v)
		}
		row++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime converts a datetime cell. Strings without a zone are read as UTC.
func ParseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return parseTimeString(t)
	case []byte:
		return parseTimeString(string(t))
	case nil:
		return time.Time{}, errors.New("null datetime")
	default:
		return time.Time{}, fmt.Errorf("unsupported datetime type %T", v)
	}
}

func parseTimeString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable datetime %q", s)
}

// ParseFloat converts a numeric cell; SQL NULL and NaN-like text become nil.
func ParseFloat(v any) (*float64, error) {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case int:
		f = float64(t)
	case bool:
		if t {
			f = 1
		}
	case string:
		return parseFloatString(t)
	case []byte:
		return parseFloatString(string(t))
	default:
		return nil, fmt.Errorf("unsupported numeric type %T", v)
	}
	return &f, nil
}

func parseFloatString(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "null":
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", s)
	}
	return &f, nil
}
