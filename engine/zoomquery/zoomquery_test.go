package zoomquery

import (
	"errors"
	"testing"

	"github.com/flightdv/corepipeline/engine/domain"
)

func tileSet() []domain.TileDescriptor {
	return []domain.TileDescriptor{
		{SeriesIndex: 0, Level: 4096, ObjectKey: "fine"},
		{SeriesIndex: 0, Level: 256, ObjectKey: "coarse"},
		{SeriesIndex: 0, Level: 1024, ObjectKey: "mid"},
		{SeriesIndex: 1, Level: 256, ObjectKey: "other-series"},
	}
}

func TestSelectTileDefaultsToCoarsest(t *testing.T) {
	got, err := selectTile(tileSet(), 0, nil)
	if err != nil {
		t.Fatalf("selectTile: %v", err)
	}
	if got.Level != 256 || got.ObjectKey != "coarse" {
		t.Fatalf("got %+v, want coarsest level 256", got)
	}
}

func TestSelectTileExplicitLevel(t *testing.T) {
	lvl := 1024
	got, err := selectTile(tileSet(), 0, &lvl)
	if err != nil {
		t.Fatalf("selectTile: %v", err)
	}
	if got.ObjectKey != "mid" {
		t.Fatalf("got %+v, want mid", got)
	}
}

func TestSelectTileUnknownSeries(t *testing.T) {
	_, err := selectTile(tileSet(), 7, nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSelectTileUnknownLevel(t *testing.T) {
	lvl := 99
	_, err := selectTile(tileSet(), 0, &lvl)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFilterByRangeNoBoundsReturnsAll(t *testing.T) {
	data := map[string][]float64{"x": {1, 2, 3}, "y": {10, 20, 30}}
	rows := filterByRange(data, "x", nil, nil)
	if rows != 3 {
		t.Fatalf("rows = %d, want 3", rows)
	}
}

func TestFilterByRangeAppliesMinMax(t *testing.T) {
	data := map[string][]float64{"x": {1, 2, 3, 4, 5}, "y": {10, 20, 30, 40, 50}}
	min, max := 2.0, 4.0
	rows := filterByRange(data, "x", &min, &max)
	if rows != 3 {
		t.Fatalf("rows = %d, want 3", rows)
	}
	for _, v := range data["x"] {
		if v < min || v > max {
			t.Fatalf("x value %v outside [%v,%v]", v, min, max)
		}
	}
	if len(data["y"]) != 3 {
		t.Fatalf("y column not filtered in lockstep: %v", data["y"])
	}
}
