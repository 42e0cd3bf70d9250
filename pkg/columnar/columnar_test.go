package columnar

import (
	"bytes"
	"math"
	"testing"
)

func roundTripFrame(t *testing.T, f *Frame) *Frame {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	rd, err := OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	out, err := rd.ReadAll(nil)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return out
}

func TestWriteReadRoundTrip(t *testing.T) {
	schema := Schema{Names: []string{"a", "b"}, Types: []ColumnType{ColumnFloat64, ColumnFloat64}}
	f := NewFrame(schema)
	f.Floats["a"] = []float64{1, 2, 3}
	f.Floats["b"] = []float64{4, 5, 6}
	f.Rows = 3

	out := roundTripFrame(t, f)
	if out.Rows != 3 {
		t.Fatalf("rows = %d, want 3", out.Rows)
	}
	for i, want := range []float64{1, 2, 3} {
		if out.Floats["a"][i] != want {
			t.Errorf("a[%d] = %v, want %v", i, out.Floats["a"][i], want)
		}
	}
}

func TestRowGroupSpanningWrite(t *testing.T) {
	schema := Schema{Names: []string{"x"}, Types: []ColumnType{ColumnFloat64}}
	f := NewFrame(schema)
	n := RowGroupSize + 10
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i)
	}
	f.Floats["x"] = vals
	f.Rows = n

	out := roundTripFrame(t, f)
	if out.Rows != n {
		t.Fatalf("rows = %d, want %d", out.Rows, n)
	}
	if out.Floats["x"][n-1] != float64(n-1) {
		t.Fatalf("last value = %v, want %v", out.Floats["x"][n-1], n-1)
	}
}

func TestRangeFilterSkipsGroups(t *testing.T) {
	schema := Schema{Names: []string{"x", "y"}, Types: []ColumnType{ColumnFloat64, ColumnFloat64}}
	f := NewFrame(schema)
	var xs, ys []float64
	for i := 0; i < RowGroupSize*2; i++ {
		xs = append(xs, float64(i))
		ys = append(ys, float64(i)*2)
	}
	f.Floats["x"] = xs
	f.Floats["y"] = ys
	f.Rows = len(xs)

	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	rd, err := OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}

	wr, err := Window(rd, "x", "y", 5, 15, 0, 100)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if wr.TotalInWindow != 11 {
		t.Fatalf("total = %d, want 11", wr.TotalInWindow)
	}
	if len(wr.Rows) != 11 {
		t.Fatalf("rows = %d, want 11", len(wr.Rows))
	}
}

func TestCoerceFloat(t *testing.T) {
	cases := map[string]float64{
		"3.14": 3.14,
		"":     math.NaN(),
		"abc":  math.NaN(),
		" 7 ":  7,
	}
	for in, want := range cases {
		got := CoerceFloat(in)
		if math.IsNaN(want) {
			if !math.IsNaN(got) {
				t.Errorf("CoerceFloat(%q) = %v, want NaN", in, got)
			}
			continue
		}
		if got != want {
			t.Errorf("CoerceFloat(%q) = %v, want %v", in, got, want)
		}
	}
}
