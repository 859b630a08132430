// Package definitions loads the dashboard layouts from YAML.
package definitions

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"swapit-dashboard/internal/catalog"
	"swapit-dashboard/internal/config"
)

// identRe matches table and column names that may be spliced into SQL.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var idRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidIdentifier reports whether s is safe to use as an unquoted SQL identifier.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}

type File struct {
	Dashboards []Dashboard `yaml:"dashboards"`
}

type Dashboard struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	// Database is the literal database name; DatabaseEnv names the variable
	// holding it. Exactly one is set.
	Database    string   `yaml:"database"`
	DatabaseEnv string   `yaml:"database_env"`
	MinDate     string   `yaml:"min_date"`
	DefaultDays int      `yaml:"default_days"`
	Tables      []string `yaml:"tables"`
	Plots       []Plot   `yaml:"plots"`
}

type Plot struct {
	ID      string `yaml:"id"`
	Heading string `yaml:"heading"`
	Query   string `yaml:"query"`
}

const defaultDays = 7

// Load reads and validates the dashboards file at path.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dashboards: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, rejecting unknown fields, applies defaults and validates.
func Parse(b []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse dashboards: %w", err)
	}
	for i := range f.Dashboards {
		if f.Dashboards[i].DefaultDays == 0 {
			f.Dashboards[i].DefaultDays = defaultDays
		}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) Validate() error {
	if len(f.Dashboards) == 0 {
		return errors.New("no dashboards defined")
	}
	ids := make(map[string]bool)
	for _, d := range f.Dashboards {
		if !idRe.MatchString(d.ID) {
			return fmt.Errorf("dashboard id %q: must match %s", d.ID, idRe)
		}
		if ids[d.ID] {
			return fmt.Errorf("duplicate dashboard id %q", d.ID)
		}
		ids[d.ID] = true
		if err := d.validate(); err != nil {
			return fmt.Errorf("dashboard %s: %w", d.ID, err)
		}
	}
	return nil
}

func (d Dashboard) validate() error {
	if d.Title == "" {
		return errors.New("title is required")
	}
	if (d.Database == "") == (d.DatabaseEnv == "") {
		return errors.New("exactly one of database or database_env is required")
	}
	if d.MinDate != "" {
		if _, err := time.Parse(catalog.DateLayout, d.MinDate); err != nil {
			return fmt.Errorf("min_date %q: expected YYYY-MM-DD", d.MinDate)
		}
	}
	if d.DefaultDays < 0 {
		return fmt.Errorf("default_days must be positive, got %d", d.DefaultDays)
	}
	for _, t := range d.Tables {
		if !ValidIdentifier(t) {
			return fmt.Errorf("table %q is not a valid identifier", t)
		}
	}
	if len(d.Plots) == 0 {
		return errors.New("at least one plot is required")
	}
	plotIDs := make(map[string]bool)
	for _, p := range d.Plots {
		if !idRe.MatchString(p.ID) {
			return fmt.Errorf("plot id %q: must match %s", p.ID, idRe)
		}
		if plotIDs[p.ID] {
			return fmt.Errorf("duplicate plot id %q", p.ID)
		}
		plotIDs[p.ID] = true
		if p.Query == "" {
			return fmt.Errorf("plot %s: query is required", p.ID)
		}
	}
	return nil
}

func (f *File) Find(id string) (Dashboard, bool) {
	for _, d := range f.Dashboards {
		if d.ID == id {
			return d, true
		}
	}
	return Dashboard{}, false
}

// DatabaseName resolves the database the dashboard reads from.
func (d Dashboard) DatabaseName() (string, error) {
	if d.Database != "" {
		return d.Database, nil
	}
	return config.DatabaseName(d.DatabaseEnv)
}

// HasTable reports whether a dashboard reading from database declares table.
func (f *File) HasTable(database, table string) bool {
	for _, d := range f.Dashboards {
		name, err := d.DatabaseName()
		if err != nil || name != database {
			continue
		}
		for _, t := range d.Tables {
			if t == table {
				return true
			}
		}
	}
	return false
}

// Range returns the default [start, end] for the dashboard ending on today.
func (d Dashboard) Range(today time.Time) (time.Time, time.Time) {
	end := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	days := d.DefaultDays
	if days <= 0 {
		days = defaultDays
	}
	return end.AddDate(0, 0, -days), end
}
