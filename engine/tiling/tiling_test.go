package tiling

import (
	"context"
	"math"
	"testing"

	"github.com/flightdv/corepipeline/engine/domain"
	"github.com/flightdv/corepipeline/pkg/columnar"
)

// fakeSource replays a single in-memory frame, mirroring the shape a
// columnar.Reader or freshly-parsed job would stream.
type fakeSource struct {
	frame *columnar.Frame
}

func (s fakeSource) Chunks(columns []string, filter *columnar.RangeFilter, fn func(*columnar.Frame) bool) error {
	fn(s.frame)
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

func TestMaterializeBinsAndAggregates(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	y := []float64{0, 2, 4, 6, 8, 10, 12, 14, 16, 18}
	src := fakeSource{frame: newFrame(x, y)}

	res, err := Materialize(context.Background(), src, Options{
		XColumn: "x", YColumn: "y", XScale: domain.ScaleLinear, YScale: domain.ScaleLinear,
		BinCounts: []int{2},
	})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if res.XMin != 0 || res.XMax != 9 {
		t.Fatalf("bounds = [%v,%v], want [0,9]", res.XMin, res.XMax)
	}
	if res.Rows != 10 {
		t.Fatalf("rows = %d, want 10", res.Rows)
	}
	if len(res.Levels) != 1 || res.Levels[0].BinCount != 2 {
		t.Fatalf("unexpected levels: %+v", res.Levels)
	}

	var totalCount int64
	for _, c := range res.Levels[0].Count {
		totalCount += c
	}
	if totalCount != 10 {
		t.Fatalf("total binned count = %d, want 10", totalCount)
	}
}

func TestMaterializeRejectsNonPositiveLogX(t *testing.T) {
	x := []float64{1, math.NaN(), -1, 2}
	y := []float64{1, 2, 3, 4}
	src := fakeSource{frame: newFrame(x, y)}

	res, err := Materialize(context.Background(), src, Options{
		XColumn: "x", YColumn: "y", XScale: domain.ScaleLog, YScale: domain.ScaleLinear,
		BinCounts: []int{2},
	})
	if err == nil {
		t.Fatalf("expected log-scale error for non-positive x, got bounds %+v", res)
	}
}

func TestMaterializeSingleValueWidensRange(t *testing.T) {
	x := []float64{5, 5, 5}
	y := []float64{1, 2, 3}
	src := fakeSource{frame: newFrame(x, y)}

	res, err := Materialize(context.Background(), src, Options{
		XColumn: "x", YColumn: "y", XScale: domain.ScaleLinear, YScale: domain.ScaleLinear,
		BinCounts: []int{4},
	})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if res.XMax <= res.XMin {
		t.Fatalf("expected widened range, got [%v,%v]", res.XMin, res.XMax)
	}
}
