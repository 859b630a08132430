// Package catalog resolves named chart queries: a parametrized SQL template
// (<name>.sql) and its row of presentation metadata in plotting_inputs.txt.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"regexp"
	"strings"
)

// PropertiesFile is the semicolon separated plotting metadata table.
const PropertiesFile = "plotting_inputs.txt"

var (
	ErrNotFound = errors.New("query not found")
	ErrConfig   = errors.New("query configuration error")
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Metadata is one row of the plotting properties file.
type Metadata struct {
	Name       string `json:"name"`
	PlotTitle  string `json:"plotTitle"`
	YTitle1    string `json:"yTitle1"`
	YTitle2    string `json:"yTitle2"`
	AxisList   []bool `json:"axisList"`
	SecondaryY bool   `json:"secondaryY"`
}

type Query struct {
	Name     string
	Template string
	Metadata Metadata
}

// Catalog reads templates and metadata from fsys on every call.
type Catalog struct {
	fsys fs.FS
}

func New(fsys fs.FS) *Catalog {
	return &Catalog{fsys: fsys}
}

// Resolve returns the template and metadata for name. ErrNotFound is returned
// when either the template file or the metadata row is missing.
func (c *Catalog) Resolve(name string) (Query, error) {
	if !nameRe.MatchString(name) {
		return Query{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	rows, err := c.readProperties()
	if err != nil {
		return Query{}, err
	}
	meta, ok := rows[name]
	if !ok {
		return Query{}, fmt.Errorf("%w: no plotting metadata for %q", ErrNotFound, name)
	}

	body, err := fs.ReadFile(c.fsys, name+".sql")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Query{}, fmt.Errorf("%w: no template %s.sql", ErrNotFound, name)
		}
		return Query{}, fmt.Errorf("read template %s.sql: %w", name, err)
	}

	return Query{Name: name, Template: string(body), Metadata: meta}, nil
}

// Names lists the queries declared in the properties file, in file order.
func (c *Catalog) Names() ([]string, error) {
	f, err := c.fsys.Open(PropertiesFile)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", PropertiesFile, err)
	}
	defer func() { _ = f.Close() }()

	var names []string
	err = scanProperties(f, func(m Metadata) {
		names = append(names, m.Name)
	})
	return names, err
}

func (c *Catalog) readProperties() (map[string]Metadata, error) {
	f, err := c.fsys.Open(PropertiesFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s missing", ErrConfig, PropertiesFile)
		}
		return nil, fmt.Errorf("open %s: %w", PropertiesFile, err)
	}
	defer func() { _ = f.Close() }()

	out := make(map[string]Metadata)
	err = scanProperties(f, func(m Metadata) {
		out[m.Name] = m
	})
	return out, err
}

var propertyColumns = []string{"plot_title", "y_title_1", "y_title_2", "axis_list", "secondary_y_flag"}

// scanProperties parses the properties table. The first column is the query
// name; the remaining columns are looked up by header name.
func scanProperties(r io.Reader, fn func(Metadata)) error {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s is empty", ErrConfig, PropertiesFile)
		}
		return fmt.Errorf("%w: %s header: %v", ErrConfig, PropertiesFile, err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range propertyColumns {
		if _, ok := idx[col]; !ok {
			return fmt.Errorf("%w: %s has no %q column", ErrConfig, PropertiesFile, col)
		}
	}

	seen := make(map[string]bool)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfig, PropertiesFile, err)
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		field := func(col string) string {
			i := idx[col]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		name := strings.TrimSpace(rec[0])
		if seen[name] {
			return fmt.Errorf("%w: duplicate row %q in %s", ErrConfig, name, PropertiesFile)
		}
		seen[name] = true

		axis, err := ParseBoolList(field("axis_list"))
		if err != nil {
			return fmt.Errorf("%w: %s axis_list: %v", ErrConfig, name, err)
		}
		secondary := false
		if s := field("secondary_y_flag"); s != "" {
			secondary, err = ParseBool(s)
			if err != nil {
				return fmt.Errorf("%w: %s secondary_y_flag: %v", ErrConfig, name, err)
			}
		}

		fn(Metadata{
			Name:       name,
			PlotTitle:  field("plot_title"),
			YTitle1:    field("y_title_1"),
			YTitle2:    field("y_title_2"),
			AxisList:   axis,
			SecondaryY: secondary,
		})
	}
}

// ParseBool accepts true/false in any case (including Python's True/False) and 1/0.
func ParseBool(s string) (bool, error) {
	s = strings.Trim(strings.TrimSpace(s), `'"`)
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// ParseBoolList parses "[False, True]", "false,true" or "0,1". An empty string
// or "[]" yields nil.
func ParseBoolList(s string) ([]bool, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]bool, 0, len(parts))
	for i, p := range parts {
		b, err := ParseBool(p)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}
