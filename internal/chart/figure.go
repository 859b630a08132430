// Package chart builds line-chart figures from a time-indexed frame and the
// presentation metadata of a named query.
package chart

import (
	"errors"
	"fmt"
	"time"

	"swapit-dashboard/internal/catalog"
	"swapit-dashboard/internal/frame"
)

// XTitle is the x-axis title of every figure.
const XTitle = "Date"

var ErrConfig = errors.New("chart configuration error")

// Palette is cycled by series position.
var Palette = []string{
	"black", "blue", "red", "green", "orange", "yellow", "brown",
	"violet", "turquoise", "pink", "olive", "magenta", "lightblue", "purple",
}

const (
	AxisPrimary   = 0
	AxisSecondary = 1
)

// Legend is anchored to the top-left corner inside the plot area. X and Y
// are fractions of the plot width and height.
type Legend struct {
	XAnchor string  `json:"xanchor"`
	YAnchor string  `json:"yanchor"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

var TopLeftLegend = Legend{XAnchor: "left", YAnchor: "top", X: 0.01, Y: 0.99}

type Trace struct {
	Name  string      `json:"name"`
	Color string      `json:"color"`
	Axis  int         `json:"axis"`
	X     []time.Time `json:"x"`
	Y     []*float64  `json:"y"`
}

type Figure struct {
	Title     string  `json:"title"`
	XTitle    string  `json:"xTitle"`
	YTitle    string  `json:"yTitle"`
	Y2Title   string  `json:"y2Title,omitempty"`
	Secondary bool    `json:"secondary"`
	Legend    Legend  `json:"legend"`
	Traces    []Trace `json:"traces"`
}

// SeriesNames returns the trace names in order.
func (f *Figure) SeriesNames() []string {
	out := make([]string, len(f.Traces))
	for i, t := range f.Traces {
		out[i] = t.Name
	}
	return out
}

// Points returns the number of x values of the first trace, which equals the
// frame's row count.
func (f *Figure) Points() int {
	if len(f.Traces) == 0 {
		return 0
	}
	return len(f.Traces[0].X)
}

// Empty returns the figure shell for meta with no traces.
func Empty(meta catalog.Metadata) *Figure {
	fig := &Figure{
		Title:     meta.PlotTitle,
		XTitle:    XTitle,
		YTitle:    meta.YTitle1,
		Secondary: meta.SecondaryY,
		Legend:    TopLeftLegend,
		Traces:    []Trace{},
	}
	if meta.SecondaryY {
		fig.Y2Title = meta.YTitle2
	}
	return fig
}

// Build creates one trace per frame column. With a secondary axis the axis
// list must name every column; a length mismatch is a configuration error.
func Build(f *frame.Frame, meta catalog.Metadata) (*Figure, error) {
	fig := Empty(meta)
	if f.Empty() {
		return fig, nil
	}

	if meta.SecondaryY && len(meta.AxisList) != len(f.Columns) {
		return nil, fmt.Errorf("%w: %s has %d series but axis_list has %d entries",
			ErrConfig, meta.Name, len(f.Columns), len(meta.AxisList))
	}

	for i, col := range f.Columns {
		axis := AxisPrimary
		if meta.SecondaryY && meta.AxisList[i] {
			axis = AxisSecondary
		}
		fig.Traces = append(fig.Traces, Trace{
			Name:  col,
			Color: Palette[i%len(Palette)],
			Axis:  axis,
			X:     f.Index,
			Y:     f.Values[i],
		})
	}
	return fig, nil
}
