package sampling

import (
	"context"
	"math"
	"testing"

	"github.com/flightdv/corepipeline/pkg/columnar"
)

type fakeSource struct {
	frames []*columnar.Frame
}

func (s fakeSource) Chunks(columns []string, filter *columnar.RangeFilter, fn func(*columnar.Frame) bool) error {
	for _, f := range s.frames {
		if !fn(f) {
			return nil
		}
	}
	return nil
}

func newFrame(x, y []float64) *columnar.Frame {
	schema := columnar.Schema{Names: []string{"x", "y"}, Types: []columnar.ColumnType{columnar.ColumnFloat64, columnar.ColumnFloat64}}
	f := columnar.NewFrame(schema)
	f.Floats["x"] = x
	f.Floats["y"] = y
	f.Rows = len(x)
	return f
}

func TestSampleUnderBudgetKeepsAllRows(t *testing.T) {
	x := make([]float64, 50)
	y := make([]float64, 50)
	for i := range x {
		x[i] = float64(i)
		y[i] = float64(i) * 2
	}
	src := fakeSource{frames: []*columnar.Frame{newFrame(x, y)}}

	res, err := Sample(context.Background(), src, Options{Columns: []string{"x", "y"}, MaxPoints: 100})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if res.Rows != 50 {
		t.Fatalf("rows = %d, want 50", res.Rows)
	}
}

func TestSampleOverBudgetIsDeterministic(t *testing.T) {
	x := make([]float64, 1000)
	y := make([]float64, 1000)
	for i := range x {
		x[i] = float64(i)
		y[i] = float64(i)
	}
	src := fakeSource{frames: []*columnar.Frame{newFrame(x, y)}}

	run := func() []float64 {
		res, err := Sample(context.Background(), src, Options{Columns: []string{"x", "y"}, MaxPoints: 100})
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		if res.Rows != 100 {
			t.Fatalf("rows = %d, want 100", res.Rows)
		}
		return res.Columns["x"]
	}

	first := run()
	second := run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("sampling not deterministic at index %d: %v != %v", i, first[i], second[i])
		}
	}
}

func TestSampleDropsNullRows(t *testing.T) {
	x := []float64{1, math.NaN(), 3}
	y := []float64{1, 2, math.NaN()}
	src := fakeSource{frames: []*columnar.Frame{newFrame(x, y)}}

	res, err := Sample(context.Background(), src, Options{Columns: []string{"x", "y"}, MaxPoints: 100})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if res.Rows != 1 {
		t.Fatalf("rows = %d, want 1 (only the fully non-null row)", res.Rows)
	}
}

func TestSampleLogScalePositivityFilter(t *testing.T) {
	x := []float64{-1, 2, 3}
	y := []float64{1, 2, 3}
	src := fakeSource{frames: []*columnar.Frame{newFrame(x, y)}}

	res, err := Sample(context.Background(), src, Options{
		Columns: []string{"x", "y"}, MaxPoints: 100,
		LogScaleAxes: map[string]bool{"x": true},
	})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if res.Rows != 2 {
		t.Fatalf("rows = %d, want 2 (non-positive x dropped)", res.Rows)
	}
}
