package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/flightdv/corepipeline/engine/derived"
	"github.com/flightdv/corepipeline/engine/domain"
	"github.com/flightdv/corepipeline/pkg/columnar"
)

func TestMergeStatsIntoExpandsRange(t *testing.T) {
	acc := map[string]domain.ColumnStats{"x": {Min: 0, Max: 10}}
	mergeStatsInto(acc, map[string]domain.ColumnStats{"x": {Min: -5, Max: 20}, "y": {Min: 1, Max: 2}})

	if acc["x"].Min != -5 || acc["x"].Max != 20 {
		t.Fatalf("x stats = %+v, want [-5,20]", acc["x"])
	}
	if acc["y"].Min != 1 || acc["y"].Max != 2 {
		t.Fatalf("y stats = %+v, want [1,2]", acc["y"])
	}
}

func TestMergeSampleCapsAtSampleRowLimit(t *testing.T) {
	schema := columnar.Schema{Names: []string{"x"}, Types: []columnar.ColumnType{columnar.ColumnFloat64}}
	f := columnar.NewFrame(schema)
	xs := make([]float64, sampleRowLimit+5)
	for i := range xs {
		xs[i] = float64(i)
	}
	f.Floats["x"] = xs
	f.Rows = len(xs)

	var sample []map[string]any
	mergeSample(&sample, f)

	if len(sample) != sampleRowLimit {
		t.Fatalf("sample len = %d, want %d", len(sample), sampleRowLimit)
	}
	if sample[0]["x"] != 0.0 {
		t.Fatalf("sample[0][x] = %v, want 0", sample[0]["x"])
	}
}

func TestSpecNames(t *testing.T) {
	specs := []derived.Spec{{Name: "a"}, {Name: "b"}}
	names := specNames(specs)
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestGuardedCallWithoutBreakerCallsDirectly(t *testing.T) {
	called := false
	err := guardedCall(Deps{}, context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("guardedCall: %v", err)
	}
	if !called {
		t.Fatal("expected op to be called")
	}
}

func TestGuardedCallPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	err := guardedCall(Deps{}, context.Background(), func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}
