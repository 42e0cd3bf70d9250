// Package tiling implements the Tile Materializer (spec §4.4): a two-pass
// streaming aggregation that produces fixed bin-count overview tables at
// several levels of detail, so the zoom query surface can serve a
// coarse-to-fine progression without re-scanning the full series.
package tiling

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/flightdv/corepipeline/engine/derived"
	"github.com/flightdv/corepipeline/engine/domain"
	"github.com/flightdv/corepipeline/pkg/columnar"
)

// Source streams chunks of a frame; it is the same shape the reader and
// parser layers already expose, so the materializer can run either over a
// freshly-parsed job or a previously written columnar artifact.
type Source interface {
	Chunks(columns []string, filter *columnar.RangeFilter, fn func(*columnar.Frame) bool) error
}

// Level is one materialized bin table for a series at a given bin count.
type Level struct {
	BinCount int
	X        []float64 // bin center
	Count    []int64
	YMean    []float64
	YMin     []float64
	YMax     []float64
}

// Result is everything the coordinator needs to persist one series'
// tiles, plus the stats block used by the planner and zoom query surface.
type Result struct {
	XMin, XMax float64
	Rows       int64
	Levels     []Level
}

// Options parameterizes one Materialize call.
type Options struct {
	XColumn     string
	YColumn     string
	XScale      domain.Scale
	YScale      domain.Scale
	BinCounts   []int // defaults to domain.DefaultLevels
	DerivedSpecs []derived.Spec
}

// Materialize runs the two-pass algorithm against src (spec §4.4).
func Materialize(ctx context.Context, src Source, opts Options) (*Result, error) {
	levels := opts.BinCounts
	if len(levels) == 0 {
		levels = domain.DefaultLevels
	}

	xMin, xMax, rows, err := axisBounds(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	if xMin == xMax {
		xMax = xMin + 1e-9
	}

	result := &Result{XMin: xMin, XMax: xMax, Rows: rows}
	for _, n := range levels {
		lvl, err := accumulate(ctx, src, opts, n, xMin, xMax)
		if err != nil {
			return nil, err
		}
		result.Levels = append(result.Levels, lvl)
	}
	return result, nil
}

// axisBounds is pass 1: stream X only, coerce numeric, drop NaN, enforce
// positivity for log scale, and return {x_min, x_max, rows_seen}.
func axisBounds(ctx context.Context, src Source, opts Options) (xMin, xMax float64, rows int64, err error) {
	xMin, xMax = math.Inf(1), math.Inf(-1)
	readCols := requiredColumnsForX(opts)

	scanErr := src.Chunks(readCols, nil, func(f *columnar.Frame) bool {
		if ctx.Err() != nil {
			err = ctx.Err()
			return false
		}
		x, evalErr := resolveX(f, opts)
		if evalErr != nil {
			err = evalErr
			return false
		}
		for _, v := range x {
			if columnar.IsNull(v) {
				continue
			}
			if opts.XScale == domain.ScaleLog && v <= 0 {
				err = domain.ErrLogScaleInvalid
				return false
			}
			rows++
			if v < xMin {
				xMin = v
			}
			if v > xMax {
				xMax = v
			}
		}
		return true
	})
	if err == nil {
		err = scanErr
	}
	if err != nil {
		return 0, 0, 0, err
	}
	return xMin, xMax, rows, nil
}

// accumulate is pass 2 for one bin count: build edges, stream X and Y,
// digitize, and aggregate {count, sum, min, max} per bin.
func accumulate(ctx context.Context, src Source, opts Options, n int, xMin, xMax float64) (Level, error) {
	edges := binEdges(opts.XScale, xMin, xMax, n)

	count := make([]int64, n)
	sum := make([]float64, n)
	ymin := make([]float64, n)
	ymax := make([]float64, n)
	for i := range ymin {
		ymin[i] = math.Inf(1)
		ymax[i] = math.Inf(-1)
	}

	readCols := requiredColumns(opts)
	var walkErr error
	err := src.Chunks(readCols, nil, func(f *columnar.Frame) bool {
		if ctx.Err() != nil {
			walkErr = ctx.Err()
			return false
		}
		x, err := resolveX(f, opts)
		if err != nil {
			walkErr = err
			return false
		}
		y, err := resolveY(f, opts)
		if err != nil {
			walkErr = err
			return false
		}
		for i := range x {
			xv, yv := x[i], y[i]
			if columnar.IsNull(xv) || columnar.IsNull(yv) {
				continue
			}
			if opts.XScale == domain.ScaleLog && xv <= 0 {
				continue
			}
			if opts.YScale == domain.ScaleLog && yv <= 0 {
				continue
			}
			bin := digitize(edges, xv)
			count[bin]++
			sum[bin] += yv
			if yv < ymin[bin] {
				ymin[bin] = yv
			}
			if yv > ymax[bin] {
				ymax[bin] = yv
			}
		}
		return true
	})
	if walkErr != nil {
		return Level{}, walkErr
	}
	if err != nil {
		return Level{}, err
	}

	lvl := Level{BinCount: n}
	for i := 0; i < n; i++ {
		if count[i] == 0 {
			continue
		}
		lvl.X = append(lvl.X, binCenter(edges, i))
		lvl.Count = append(lvl.Count, count[i])
		lvl.YMean = append(lvl.YMean, sum[i]/float64(count[i]))
		lvl.YMin = append(lvl.YMin, ymin[i])
		lvl.YMax = append(lvl.YMax, ymax[i])
	}
	return lvl, nil
}

// binEdges returns level+1 edges; linear uses linspace(xMin,xMax,level+1),
// log uses logspace(log10(xMin),log10(xMax),level+1).
func binEdges(scale domain.Scale, xMin, xMax float64, level int) []float64 {
	edges := make([]float64, level+1)
	if scale == domain.ScaleLog {
		lo, hi := math.Log10(xMin), math.Log10(xMax)
		floats.Span(edges, lo, hi)
		for i, v := range edges {
			edges[i] = math.Pow(10, v)
		}
		return edges
	}
	floats.Span(edges, xMin, xMax)
	return edges
}

// digitize assigns x to a bin in [0, len(edges)-2] using left-inclusive
// interior edges: a value exactly on an interior edge belongs to the
// higher bin; x==x_max falls in the last bin (spec §4.4 tie-breaks).
func digitize(edges []float64, x float64) int {
	n := len(edges) - 1
	last := edges[n]
	if x >= last {
		return n - 1
	}
	// sort.Search finds the first edge index i such that edges[i] > x;
	// the bin is i-1, left-inclusive at interior edges.
	i := sort.Search(len(edges), func(i int) bool { return edges[i] > x })
	bin := i - 1
	if bin < 0 {
		bin = 0
	}
	if bin >= n {
		bin = n - 1
	}
	return bin
}

func binCenter(edges []float64, i int) float64 {
	return (edges[i] + edges[i+1]) / 2
}

func requiredColumnsForX(opts Options) []string {
	if len(opts.DerivedSpecs) == 0 {
		return []string{opts.XColumn}
	}
	return allBaseRefs(opts)
}

func requiredColumns(opts Options) []string {
	if len(opts.DerivedSpecs) == 0 {
		return []string{opts.XColumn, opts.YColumn}
	}
	return allBaseRefs(opts)
}

// allBaseRefs returns nil so the reader projects every column; precise
// minimization is handled upstream by derived.BuildPlan against the full
// job schema, since Source here only knows the artifact's own columns.
func allBaseRefs(opts Options) []string { return nil }

func resolveX(f *columnar.Frame, opts Options) ([]float64, error) {
	return resolveColumn(f, opts.XColumn, opts.DerivedSpecs)
}

func resolveY(f *columnar.Frame, opts Options) ([]float64, error) {
	return resolveColumn(f, opts.YColumn, opts.DerivedSpecs)
}

// resolveColumn returns a column directly if present, else evaluates it
// from the frame's base columns using the supplied derived specs.
func resolveColumn(f *columnar.Frame, name string, specs []derived.Spec) ([]float64, error) {
	if v := f.Column(name); v != nil {
		return v, nil
	}
	if len(specs) == 0 {
		return nil, domain.NewJobError(domain.ErrColumnNotFound, name)
	}
	env := derived.Environment{}
	for _, colName := range f.Schema.Names {
		env[colName] = f.Column(colName)
	}
	if err := derived.Evaluate(env, specs); err != nil {
		return nil, err
	}
	v, ok := env[name]
	if !ok {
		return nil, domain.NewJobError(domain.ErrColumnNotFound, name)
	}
	return v, nil
}

// ToFrame converts a Level into a columnar Frame with the schema
// {x, count, y_mean, y_min, y_max} for artifact writing (spec §4.4).
func ToFrame(lvl Level) *columnar.Frame {
	schema := columnar.Schema{
		Names: []string{"x", "count", "y_mean", "y_min", "y_max"},
		Types: []columnar.ColumnType{
			columnar.ColumnFloat64, columnar.ColumnFloat64, columnar.ColumnFloat64,
			columnar.ColumnFloat64, columnar.ColumnFloat64,
		},
	}
	f := columnar.NewFrame(schema)
	countAsFloat := make([]float64, len(lvl.Count))
	for i, c := range lvl.Count {
		countAsFloat[i] = float64(c)
	}
	f.Floats["x"] = lvl.X
	f.Floats["count"] = countAsFloat
	f.Floats["y_mean"] = lvl.YMean
	f.Floats["y_min"] = lvl.YMin
	f.Floats["y_max"] = lvl.YMax
	f.Rows = len(lvl.X)
	return f
}
