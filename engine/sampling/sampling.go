// Package sampling implements the Sampler (spec §4.5): deterministic,
// streaming reservoir sampling down to a fixed point budget for the RAW
// chart families the tile materializer doesn't serve.
package sampling

import (
	"context"
	"math/rand"

	"github.com/flightdv/corepipeline/engine/derived"
	"github.com/flightdv/corepipeline/engine/domain"
	"github.com/flightdv/corepipeline/pkg/columnar"
)

// Source is the same streaming contract the tile materializer consumes.
type Source interface {
	Chunks(columns []string, filter *columnar.RangeFilter, fn func(*columnar.Frame) bool) error
}

// Options parameterizes one Sample call. Columns lists every axis column
// needed (2 for XY chart families, 3 for XYZ); row-level grouping across
// columns is preserved by sampling indices, not per-column independently.
type Options struct {
	Columns      []string
	LogScaleAxes map[string]bool // columns requiring x>0-style positivity filtering
	MaxPoints    int
	DerivedSpecs []derived.Spec
}

// Result holds the sampled rows, one slice per requested column, all the
// same length and row-aligned.
type Result struct {
	Columns map[string][]float64
	Rows    int
}

// Sample streams src, reservoir-sampling rows down to opts.MaxPoints with
// a fixed seed (spec §4.5 "deterministic given identical inputs and
// order"). gonum's stat/sampleuv targets weighted/importance sampling, not
// the plain uniform-without-replacement bounded reservoir this needs, so
// this uses a small stdlib math/rand-based reservoir instead.
func Sample(ctx context.Context, src Source, opts Options) (*Result, error) {
	rng := rand.New(rand.NewSource(domain.SampleSeed))

	reservoir := make(map[string][]float64, len(opts.Columns))
	for _, c := range opts.Columns {
		reservoir[c] = make([]float64, 0, opts.MaxPoints)
	}
	seen := 0

	readCols := opts.Columns
	if len(opts.DerivedSpecs) > 0 {
		readCols = nil
	}

	var walkErr error
	err := src.Chunks(readCols, nil, func(f *columnar.Frame) bool {
		if ctx.Err() != nil {
			walkErr = ctx.Err()
			return false
		}
		cols, err := resolveColumns(f, opts)
		if err != nil {
			walkErr = err
			return false
		}
		n := columnLen(cols)
		for i := 0; i < n; i++ {
			if rowHasNull(cols, i) {
				continue
			}
			if rowFailsPositivity(cols, i, opts.LogScaleAxes) {
				continue
			}
			seen++
			acceptReservoirRow(rng, reservoir, cols, i, seen, opts.MaxPoints)
		}
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	if err != nil {
		return nil, err
	}

	rows := 0
	for _, v := range reservoir {
		rows = len(v)
		break
	}
	return &Result{Columns: reservoir, Rows: rows}, nil
}

func columnLen(cols map[string][]float64) int {
	for _, v := range cols {
		return len(v)
	}
	return 0
}

func rowHasNull(cols map[string][]float64, i int) bool {
	for _, v := range cols {
		if columnar.IsNull(v[i]) {
			return true
		}
	}
	return false
}

func rowFailsPositivity(cols map[string][]float64, i int, logAxes map[string]bool) bool {
	for col, isLog := range logAxes {
		if !isLog {
			continue
		}
		if v, ok := cols[col]; ok && v[i] <= 0 {
			return true
		}
	}
	return false
}

// acceptReservoirRow implements Algorithm R: the first MaxPoints rows are
// always kept; thereafter row `seen` (1-based) replaces a uniformly chosen
// existing slot with probability MaxPoints/seen.
func acceptReservoirRow(rng *rand.Rand, reservoir map[string][]float64, cols map[string][]float64, i, seen, maxPoints int) {
	if seen <= maxPoints {
		for col, vals := range reservoir {
			reservoir[col] = append(vals, cols[col][i])
		}
		return
	}
	j := rng.Intn(seen)
	if j >= maxPoints {
		return
	}
	for col, vals := range reservoir {
		vals[j] = cols[col][i]
	}
}

// resolveColumns returns a float64 slice per requested column, evaluating
// derived specs against the frame's base columns when a requested column
// isn't already present.
func resolveColumns(f *columnar.Frame, opts Options) (map[string][]float64, error) {
	out := make(map[string][]float64, len(opts.Columns))
	var env derived.Environment
	for _, name := range opts.Columns {
		if v := f.Column(name); v != nil {
			out[name] = v
			continue
		}
		if env == nil {
			env = derived.Environment{}
			for _, colName := range f.Schema.Names {
				env[colName] = f.Column(colName)
			}
			if err := derived.Evaluate(env, opts.DerivedSpecs); err != nil {
				return nil, err
			}
		}
		v, ok := env[name]
		if !ok {
			return nil, domain.NewJobError(domain.ErrColumnNotFound, name)
		}
		out[name] = v
	}
	return out, nil
}
