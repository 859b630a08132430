package types

import "time"

// ChartRequest fully determines one rendered chart. Start and End are
// calendar dates; both bounds are inclusive.
type ChartRequest struct {
	Query    string
	Database string
	Start    time.Time
	End      time.Time
}

// Measurement is one row written by the ingest path.
type Measurement struct {
	Database string              `json:"database"`
	Table    string              `json:"table"`
	Datetime time.Time           `json:"datetime"`
	Values   map[string]*float64 `json:"values"`
}

type DashboardSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Plots       int    `json:"plots"`
}

type FirstEntry struct {
	DashboardID string    `json:"dashboardId"`
	Database    string    `json:"database"`
	Datetime    time.Time `json:"datetime"`
}
