package chart

import "slices"

// Region is the dropdown value selected on the dashboard.
type Region string

const (
	RegionLA  Region = "LA"
	RegionNYC Region = "NYC"
	RegionMTL Region = "MTL"

	DefaultRegion = RegionLA
)

// Regions lists the dropdown options in display order.
var Regions = []Region{RegionLA, RegionNYC, RegionMTL}

// Known reports whether r is one of the dropdown options.
func (r Region) Known() bool {
	return slices.Contains(Regions, r)
}

// Series is one trace of the figure.
type Series struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// Margin is the plot margin in pixels.
type Margin struct {
	L int `json:"l"`
	R int `json:"r"`
	T int `json:"t"`
	B int `json:"b"`
}

// DefaultMargin matches the dashboard's fixed layout.
var DefaultMargin = Margin{L: 60, R: 10, T: 40, B: 60}

// Layout holds figure metadata that does not depend on the data.
type Layout struct {
	Title  string `json:"title"`
	Margin Margin `json:"margin"`
}

// Result is the figure returned to the page.
type Result struct {
	Data   []Series `json:"data"`
	Layout Layout   `json:"layout"`
}
