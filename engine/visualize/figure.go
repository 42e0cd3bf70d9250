package visualize

import (
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/flightdv/corepipeline/engine/domain"
	"github.com/flightdv/corepipeline/engine/matslice"
	"github.com/flightdv/corepipeline/engine/sampling"
	"github.com/flightdv/corepipeline/engine/tiling"
)

const gridBins = 80

// Trace is one Plotly-shaped trace (spec §4.7). Fields are tagged for
// json.Marshal; unused fields per trace type are simply left zero/omitted.
type Trace struct {
	Type    string      `json:"type"`
	Mode    string      `json:"mode,omitempty"`
	Name    string      `json:"name,omitempty"`
	X       []float64   `json:"x,omitempty"`
	Y       []float64   `json:"y,omitempty"`
	Z       interface{} `json:"z,omitempty"`
	Theta   []float64   `json:"theta,omitempty"`
	R       []float64   `json:"r,omitempty"`
	NBinsX  int         `json:"nbinsx,omitempty"`
	NBinsY  int         `json:"nbinsy,omitempty"`
	BoxMean bool        `json:"boxmean,omitempty"`
	Meanline *MeanlineSpec `json:"meanline,omitempty"`
}

// MeanlineSpec toggles the violin trace's mean line overlay.
type MeanlineSpec struct {
	Visible bool `json:"visible"`
}

// AxisLayout is one Plotly axis layout block.
type AxisLayout struct {
	Type       string `json:"type"` // "linear"|"log"
	TickFormat string `json:"tickformat,omitempty"`
	DTick      int    `json:"dtick,omitempty"`
}

// Layout is the figure's layout block (spec §4.7 "Layout").
type Layout struct {
	Template string     `json:"template"`
	Title    string     `json:"title,omitempty"`
	XAxis    AxisLayout `json:"xaxis"`
	YAxis    AxisLayout `json:"yaxis"`
	Legend   *Legend    `json:"legend,omitempty"`
	Scene    *Scene     `json:"scene,omitempty"`
}

// Legend is the figure's legend block.
type Legend struct {
	Title string `json:"title"`
}

// Scene is the 3D/surface layout block: a square domain with a fixed
// default camera (spec §4.7 "Layout").
type Scene struct {
	Aspectmode string      `json:"aspectmode"`
	Camera     interface{} `json:"camera"`
}

var defaultCamera = map[string]any{"eye": map[string]float64{"x": 1.25, "y": 1.25, "z": 1.25}}

// ZoomSeriesStats carries the per-series stats the embedded zoom loader uses
// to classify a new X range into overview/tile/raw mode.
type ZoomSeriesStats struct {
	SeriesIndex int     `json:"series_index"`
	XMin        float64 `json:"x_min"`
	XMax        float64 `json:"x_max"`
	Rows        int64   `json:"rows"`
	CoarsestLevel int   `json:"coarsest_level"`
	MiddleLevel   int   `json:"middle_level"`
	FinestLevel   int   `json:"finest_level"`
}

// Figure is the Figure Builder's output: a chart spec plus, when any
// series is TILED, the data the embedded zoom loader needs at load time.
type Figure struct {
	Traces      []Trace           `json:"traces"`
	Layout      Layout            `json:"layout"`
	ZoomSeries  []ZoomSeriesStats `json:"zoom_series,omitempty"`
	HasZoomLoader bool            `json:"has_zoom_loader"`
}

// TabularData bundles each tiled series' tiling result (Build embeds its
// coarsest level as the overview) and each raw series' sampled rows, keyed
// by SeriesPlan.Index.
type TabularData struct {
	Tiles   map[int]*tiling.Result
	Samples map[int]*sampling.Result
}

// Build constructs a Figure from a validated tabular Plan and its
// materialized tile/sample data (spec §4.7).
func Build(plan *Plan, data TabularData) (*Figure, error) {
	if plan.Mat != nil {
		return buildMatFigure(plan, data)
	}
	if err := checkAxisAgreement(plan); err != nil {
		return nil, err
	}

	fig := &Figure{
		Layout: Layout{
			Template: "plotly_white",
			XAxis:    axisLayout(plan.Series[0].Series.XScale),
			YAxis:    axisLayout(plan.Series[0].Series.YScale),
		},
	}
	if len(plan.Series) > 1 {
		fig.Layout.Title = "Overplot"
	}
	fig.Layout.Legend = &Legend{Title: "Series"}

	needsScene := false
	for _, sp := range plan.Series {
		if domain.ZRequiredChartTypes[sp.EffectiveType] {
			needsScene = true
		}
	}
	if needsScene {
		fig.Layout.Scene = &Scene{Aspectmode: "cube", Camera: defaultCamera}
	}

	for _, sp := range plan.Series {
		var trace Trace
		var err error
		if sp.Tiled {
			lvl := overviewLevel(data.Tiles[sp.Index])
			trace = traceFromTile(sp, lvl)
			fig.HasZoomLoader = true
			fig.ZoomSeries = append(fig.ZoomSeries, zoomStats(sp, data.Tiles[sp.Index]))
		} else {
			trace, err = traceFromSample(sp, data.Samples[sp.Index])
			if err != nil {
				return nil, err
			}
		}
		trace.Name = sp.Series.Label
		fig.Traces = append(fig.Traces, trace)
	}
	return fig, nil
}

func checkAxisAgreement(plan *Plan) error {
	xScale, yScale := plan.Series[0].Series.XScale, plan.Series[0].Series.YScale
	for i, sp := range plan.Series {
		if sp.Series.XScale != xScale || sp.Series.YScale != yScale {
			return domain.NewJobError(domain.ErrIncompatibleMixedSeries, "series %d axis scale disagrees with series 0", i)
		}
	}
	return nil
}

func axisLayout(scale domain.Scale) AxisLayout {
	if scale == domain.ScaleLog {
		return AxisLayout{Type: "log", DTick: 1, TickFormat: "power"}
	}
	return AxisLayout{Type: "linear"}
}

func overviewLevel(res *tiling.Result) tiling.Level {
	if res == nil || len(res.Levels) == 0 {
		return tiling.Level{}
	}
	return res.Levels[0]
}

func zoomStats(sp SeriesPlan, res *tiling.Result) ZoomSeriesStats {
	zs := ZoomSeriesStats{SeriesIndex: sp.Index, XMin: sp.Stats.XMin, XMax: sp.Stats.XMax, Rows: sp.Stats.Rows}
	if res != nil {
		zs.XMin, zs.XMax, zs.Rows = res.XMin, res.XMax, res.Rows
		if n := len(res.Levels); n > 0 {
			zs.CoarsestLevel = res.Levels[0].BinCount
			zs.FinestLevel = res.Levels[n-1].BinCount
			zs.MiddleLevel = res.Levels[n/2].BinCount
		}
	}
	return zs
}

func traceFromTile(sp SeriesPlan, lvl tiling.Level) Trace {
	switch sp.EffectiveType {
	case domain.ChartBar:
		return Trace{Type: "bar", X: lvl.X, Y: lvl.YMean}
	case domain.ChartLine:
		return Trace{Type: "scatter", Mode: "lines", X: lvl.X, Y: lvl.YMean}
	case domain.ChartScatter:
		return Trace{Type: "scatter", Mode: "markers", X: lvl.X, Y: lvl.YMean}
	case domain.ChartScatterLine:
		return Trace{Type: "scatter", Mode: "lines+markers", X: lvl.X, Y: lvl.YMean}
	default:
		return Trace{Type: "scatter", Mode: "markers", X: lvl.X, Y: lvl.YMean}
	}
}

func traceFromSample(sp SeriesPlan, res *sampling.Result) (Trace, error) {
	if res == nil {
		return Trace{}, domain.NewJobError(domain.ErrEmptySelection, "series %d: no sampled data", sp.Index)
	}
	x := res.Columns[sp.Series.XAxis]
	y := res.Columns[sp.Series.YAxis]

	switch sp.EffectiveType {
	case domain.ChartPolar:
		return Trace{Type: "scatterpolar", Mode: "markers", Theta: x, R: y}, nil
	case domain.ChartHistogram:
		return Trace{Type: "histogram", X: y}, nil
	case domain.ChartBox:
		return Trace{Type: "box", Y: y}, nil
	case domain.ChartViolin:
		return Trace{Type: "violin", Y: y, BoxMean: true, Meanline: &MeanlineSpec{Visible: true}}, nil
	case domain.ChartHeatmap:
		gx, gy, z := heatmapGrid(x, y, gridBins)
		return Trace{Type: "heatmap", X: gx, Y: gy, Z: z}, nil
	case domain.ChartContour:
		return contourTrace(x, y, res.Columns[sp.Series.ZAxis]), nil
	case domain.ChartScatter3D:
		return Trace{Type: "scatter3d", Mode: "markers", X: downsample(x, 200_000), Y: downsample(y, 200_000), Z: downsample(res.Columns[sp.Series.ZAxis], 200_000)}, nil
	case domain.ChartLine3D:
		ox, oy, oz := sortByX(x, y, res.Columns[sp.Series.ZAxis])
		return Trace{Type: "scatter3d", Mode: "lines", X: downsample(ox, 200_000), Y: downsample(oy, 200_000), Z: downsample(oz, 200_000)}, nil
	case domain.ChartSurface:
		gx, gy, z := surfaceGrid(x, y, res.Columns[sp.Series.ZAxis])
		return Trace{Type: "surface", X: gx, Y: gy, Z: z}, nil
	default:
		return Trace{Type: "scatter", Mode: "markers", X: x, Y: y}, nil
	}
}

func downsample(v []float64, max int) []float64 {
	if len(v) <= max {
		return v
	}
	step := float64(len(v)) / float64(max)
	out := make([]float64, 0, max)
	for i := 0; i < max; i++ {
		out = append(out, v[int(float64(i)*step)])
	}
	return out
}

func sortByX(x, y, z []float64) ([]float64, []float64, []float64) {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return x[idx[i]] < x[idx[j]] })
	ox, oy, oz := make([]float64, len(x)), make([]float64, len(x)), make([]float64, len(x))
	for i, j := range idx {
		ox[i], oy[i] = x[j], y[j]
		if z != nil {
			oz[i] = z[j]
		}
	}
	return ox, oy, oz
}

// heatmapGrid bins (x, y) into a gridBins x gridBins 2D histogram.
func heatmapGrid(x, y []float64, bins int) ([]float64, []float64, [][]float64) {
	xMin, xMax := minMax(x)
	yMin, yMax := minMax(y)
	gx := linspace(xMin, xMax, bins)
	gy := linspace(yMin, yMax, bins)
	z := make([][]float64, bins)
	for i := range z {
		z[i] = make([]float64, bins)
	}
	for i := range x {
		bx := clampBin(bucket(x[i], xMin, xMax, bins), bins)
		by := clampBin(bucket(y[i], yMin, yMax, bins), bins)
		z[by][bx]++
	}
	return gx, gy, z
}

// contourTrace decides between a regular grid pivot (when X/Y unique
// counts form a grid-like structure) and a bilinear interpolation of
// scattered points onto an 80x80 grid, per spec §4.7.
func contourTrace(x, y, z []float64) Trace {
	ux, uy := uniqueSorted(x), uniqueSorted(y)
	rows := len(x)
	if len(ux) >= 3 && len(uy) >= 3 && float64(len(ux)*len(uy)) <= 1.2*float64(rows) {
		grid := pivotGrid(x, y, z, ux, uy)
		return Trace{Type: "contour", X: ux, Y: uy, Z: grid}
	}
	gx, gy, grid := interpolateScattered(x, y, z, gridBins)
	return Trace{Type: "contour", X: gx, Y: gy, Z: grid}
}

// surfaceGrid pivots (X,Y,Z) onto sorted unique X/Y, linearly
// interpolating missing cells along both axes (spec §4.7 "surface").
func surfaceGrid(x, y, z []float64) ([]float64, []float64, [][]float64) {
	ux, uy := uniqueSorted(x), uniqueSorted(y)
	grid := pivotGrid(x, y, z, ux, uy)
	fillGapsBilinear(grid, ux, uy)
	return ux, uy, grid
}

// pivotGrid places each (x,y,z) sample into its exact grid cell, leaving
// NaN where no sample lands.
func pivotGrid(x, y, z []float64, ux, uy []float64) [][]float64 {
	grid := make([][]float64, len(uy))
	for i := range grid {
		grid[i] = make([]float64, len(ux))
		for j := range grid[i] {
			grid[i][j] = nan
		}
	}
	xi := indexOfSorted(ux)
	yi := indexOfSorted(uy)
	for k := range x {
		if j, ok := xi[x[k]]; ok {
			if i, ok := yi[y[k]]; ok {
				grid[i][j] = z[k]
			}
		}
	}
	return grid
}

// interpolateScattered bilinearly interpolates scattered (x,y,z) points
// onto a bins x bins regular grid: a 1D monotone interpolant fit per axis
// (gonum.org/v1/gonum/interp) over bin-averaged cross sections, falling
// back to the cross section's bin mean where a fit is under-determined.
func interpolateScattered(x, y, z []float64, bins int) ([]float64, []float64, [][]float64) {
	xMin, xMax := minMax(x)
	yMin, yMax := minMax(y)
	gx := linspace(xMin, xMax, bins)
	gy := linspace(yMin, yMax, bins)

	// Bin-mean Z per (row, col) cell first; this is also the documented
	// fallback when a row/column has too few points to interpolate.
	sum := make([][]float64, bins)
	cnt := make([][]int, bins)
	for i := range sum {
		sum[i] = make([]float64, bins)
		cnt[i] = make([]int, bins)
	}
	for k := range x {
		bx := clampBin(bucket(x[k], xMin, xMax, bins), bins)
		by := clampBin(bucket(y[k], yMin, yMax, bins), bins)
		sum[by][bx] += z[k]
		cnt[by][bx]++
	}

	grid := make([][]float64, bins)
	for i := range grid {
		grid[i] = make([]float64, bins)
		var knownX []float64
		var knownZ []float64
		for j := 0; j < bins; j++ {
			if cnt[i][j] > 0 {
				knownX = append(knownX, gx[j])
				knownZ = append(knownZ, sum[i][j]/float64(cnt[i][j]))
			}
		}
		if len(knownX) < 2 {
			for j := 0; j < bins; j++ {
				if cnt[i][j] > 0 {
					grid[i][j] = sum[i][j] / float64(cnt[i][j])
				} else {
					grid[i][j] = nan
				}
			}
			continue
		}
		var pc interp.PiecewiseLinear
		if err := pc.Fit(knownX, knownZ); err != nil {
			for j := 0; j < bins; j++ {
				grid[i][j] = nan
			}
			continue
		}
		lo, hi := knownX[0], knownX[len(knownX)-1]
		for j, gxv := range gx {
			if gxv < lo || gxv > hi {
				grid[i][j] = nan
				continue
			}
			grid[i][j] = pc.Predict(gxv)
		}
	}
	// Second axis: fill the cells still empty by interpolating each column
	// along Y.
	fillGapsBilinear(grid, gx, gy)
	return gx, gy, grid
}

// fillGapsBilinear fills NaN cells in grid by interpolating each row, then
// each column, along the existing known values.
func fillGapsBilinear(grid [][]float64, ux, uy []float64) {
	for i := range grid {
		interpolateRow(grid[i], ux)
	}
	for j := range ux {
		col := make([]float64, len(uy))
		for i := range uy {
			col[i] = grid[i][j]
		}
		interpolateRow(col, uy)
		for i := range uy {
			grid[i][j] = col[i]
		}
	}
}

func interpolateRow(row []float64, axis []float64) {
	var knownX, knownZ []float64
	for i, v := range row {
		if !isNaN(v) {
			knownX = append(knownX, axis[i])
			knownZ = append(knownZ, v)
		}
	}
	if len(knownX) < 2 {
		return
	}
	var pc interp.PiecewiseLinear
	if err := pc.Fit(knownX, knownZ); err != nil {
		return
	}
	lo, hi := knownX[0], knownX[len(knownX)-1]
	for i, v := range axis {
		if !isNaN(row[i]) {
			continue
		}
		if v < lo || v > hi {
			continue
		}
		row[i] = pc.Predict(v)
	}
}

// buildMatFigure rejects a MAT plan passed to Build with
// ErrUnsupportedFormat: the Visualization Coordinator resolves the slice
// via matslice.Slice and passes it to BuildMatFigure below instead.
func buildMatFigure(plan *Plan, data TabularData) (*Figure, error) {
	return nil, domain.NewJobError(domain.ErrUnsupportedFormat, "mat figures are built via BuildMatFigure, not Build")
}

// BuildMatFigure builds a figure for a MAT-sourced visualization directly
// from a resolved N-D slice (spec §4.6 "hand off to §4.8 ... then to §4.7
// to build a minimal figure").
func BuildMatFigure(chartType domain.ChartType, slice *matslice.SliceResult) (*Figure, error) {
	fig := &Figure{Layout: Layout{Template: "plotly_white", XAxis: AxisLayout{Type: "linear"}, YAxis: AxisLayout{Type: "linear"}}}

	switch chartType {
	case domain.ChartLine, domain.ChartScatter:
		if len(slice.Coords) < 1 {
			return nil, domain.NewJobError(domain.ErrEmptySelection, "mat slice has no free dimension")
		}
		mode := "markers"
		if chartType == domain.ChartLine {
			mode = "lines"
		}
		fig.Traces = append(fig.Traces, Trace{Type: "scatter", Mode: mode, X: slice.Coords[0], Y: slice.Values})
	case domain.ChartHeatmap:
		if len(slice.Coords) < 2 {
			return nil, domain.NewJobError(domain.ErrEmptySelection, "mat heatmap requires 2 free dimensions")
		}
		grid := reshapeRowMajor(slice.Values, slice.Shape)
		fig.Traces = append(fig.Traces, Trace{Type: "heatmap", X: slice.Coords[0], Y: slice.Coords[1], Z: grid})
	case domain.ChartContour, domain.ChartSurface:
		if len(slice.Coords) < 2 {
			return nil, domain.NewJobError(domain.ErrEmptySelection, "mat %s requires 2 free dimensions", chartType)
		}
		grid := reshapeRowMajor(slice.Values, slice.Shape)
		typ := "contour"
		if chartType == domain.ChartSurface {
			typ = "surface"
			fig.Layout.Scene = &Scene{Aspectmode: "cube", Camera: defaultCamera}
		}
		fig.Traces = append(fig.Traces, Trace{Type: typ, X: slice.Coords[0], Y: slice.Coords[1], Z: grid})
	default:
		return nil, domain.NewJobError(domain.ErrUnsupportedFormat, "unsupported mat chart type %s", chartType)
	}
	return fig, nil
}

// reshapeRowMajor reshapes a flattened row-major shape=[len(x),len(y)]
// value array into a [y][x] grid, matching the slice's AxisDims order
// (the last axis, Y, varies fastest, as matslice.Slice lays it out).
func reshapeRowMajor(values []float64, shape []int) [][]float64 {
	if len(shape) < 2 {
		return nil
	}
	nx, ny := shape[0], shape[1]
	grid := make([][]float64, ny)
	for i := range grid {
		grid[i] = make([]float64, nx)
	}
	for idx, v := range values {
		x := (idx / ny) % nx
		y := idx % ny
		grid[y][x] = v
	}
	return grid
}
