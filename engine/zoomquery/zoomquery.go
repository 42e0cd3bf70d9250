// Package zoomquery implements the Zoom Query Surface (spec §4.9): the
// read-only tiles/raw operations the front-end's zoom loader calls as a
// user pans and zooms a chart, backed by the columnar tile/artifact store
// rather than re-running the visualization pipeline.
package zoomquery

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/flightdv/corepipeline/engine/domain"
	"github.com/flightdv/corepipeline/pkg/columnar"
	"github.com/flightdv/corepipeline/pkg/objectstore"
	"github.com/flightdv/corepipeline/pkg/repo"
)

// yAxisLegacyColumn is the mean-value column name the tile materializer
// writes (tiling.ToFrame), aliased to y_axis on read when a tile has no
// y_axis column of its own.
const yAxisLegacyColumn = "y_mean"

// tileXColumn is the bin-center column name the tile materializer writes
// (spec §4.4 "a table with columns {x=center, ...}").
const tileXColumn = "x"

// Service answers tiles()/raw() queries against persisted visualization
// jobs and their tile/processed artifacts.
type Service struct {
	Jobs    repo.Repository[domain.VisualizationJob, string]
	Objects *objectstore.Gateway
}

// New builds a Service.
func New(jobs repo.Repository[domain.VisualizationJob, string], objects *objectstore.Gateway) *Service {
	return &Service{Jobs: jobs, Objects: objects}
}

// TilesRequest is the input to Tiles.
type TilesRequest struct {
	VizID       string
	SeriesIndex int
	Level       *int
	XMin        *float64
	XMax        *float64
}

// TilesResult is the {series, level, tile, rows, data} response (spec §4.9).
type TilesResult struct {
	Series int                  `json:"series"`
	Level  int                  `json:"level"`
	Tile   domain.TileDescriptor `json:"tile"`
	Rows   int                  `json:"rows"`
	Data   map[string][]float64 `json:"data"`
}

// Tiles resolves the tile for (series_index, level?) — the smallest
// (coarsest) level when level is omitted — reads its frame aliasing the
// y_mean column to y_axis, and filters rows to [x_min, x_max].
func (s *Service) Tiles(ctx context.Context, req TilesRequest) (*TilesResult, error) {
	job, err := s.Jobs.Get(ctx, req.VizID)
	if err != nil {
		return nil, err
	}

	desc, err := selectTile(job.Tiles, req.SeriesIndex, req.Level)
	if err != nil {
		return nil, err
	}

	body, err := s.Objects.Get(ctx, desc.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	defer body.Close()

	rd, err := columnar.OpenReader(body)
	if err != nil {
		return nil, fmt.Errorf("%w: tile %s: %v", domain.ErrReadError, desc.ObjectKey, err)
	}

	data := map[string][]float64{}
	var walkErr error
	err = rd.Chunks(nil, nil, func(f *columnar.Frame) bool {
		for _, name := range f.Schema.Names {
			data[name] = append(data[name], f.Column(name)...)
		}
		return true
	})
	if err != nil {
		walkErr = err
	}
	if walkErr != nil {
		return nil, fmt.Errorf("%w: tile %s: %v", domain.ErrReadError, desc.ObjectKey, walkErr)
	}

	if _, ok := data["y_axis"]; !ok {
		if legacy, ok := data[yAxisLegacyColumn]; ok {
			data["y_axis"] = legacy
		}
	}

	rows := filterByRange(data, tileXColumn, req.XMin, req.XMax)

	return &TilesResult{
		Series: req.SeriesIndex,
		Level:  desc.Level,
		Tile:   desc,
		Rows:   rows,
		Data:   data,
	}, nil
}

// selectTile finds the descriptor for seriesIndex/level; when level is nil
// it picks the entry with the smallest Level (coarsest).
func selectTile(tiles []domain.TileDescriptor, seriesIndex int, level *int) (domain.TileDescriptor, error) {
	var candidates []domain.TileDescriptor
	for _, t := range tiles {
		if t.SeriesIndex == seriesIndex {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return domain.TileDescriptor{}, domain.NewJobError(domain.ErrNotFound, "no tiles for series %d", seriesIndex)
	}
	if level != nil {
		for _, t := range candidates {
			if t.Level == *level {
				return t, nil
			}
		}
		return domain.TileDescriptor{}, domain.NewJobError(domain.ErrNotFound, "series %d has no level %d", seriesIndex, *level)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Level < candidates[j].Level })
	return candidates[0], nil
}

// filterByRange drops, in place, every row index where xColumn falls
// outside [xMin, xMax] (when given), returning the surviving row count.
func filterByRange(data map[string][]float64, xColumn string, xMin, xMax *float64) int {
	if xMin == nil && xMax == nil {
		for _, v := range data {
			return len(v)
		}
		return 0
	}
	x, ok := data[xColumn]
	if !ok {
		for _, v := range data {
			return len(v)
		}
		return 0
	}
	keep := make([]int, 0, len(x))
	for i, v := range x {
		if xMin != nil && v < *xMin {
			continue
		}
		if xMax != nil && v > *xMax {
			continue
		}
		keep = append(keep, i)
	}
	for col, vals := range data {
		filtered := make([]float64, len(keep))
		for i, idx := range keep {
			filtered[i] = vals[idx]
		}
		data[col] = filtered
	}
	return len(keep)
}

// RawRequest is the input to Raw.
type RawRequest struct {
	VizID       string
	SeriesIndex int
	XMin        *float64
	XMax        *float64
	MaxPoints   int
	Cap         int
}

const (
	defaultMaxPoints = 200_000
	defaultCap       = 2_000_000
)

// RawResult is the {series, rows, x_axis, y_axis, data} response (spec §4.9).
type RawResult struct {
	Series int                  `json:"series"`
	Rows   int                  `json:"rows"`
	XAxis  string               `json:"x_axis"`
	YAxis  string               `json:"y_axis"`
	Data   map[string][]float64 `json:"data"`
}

// Raw requires a columnar-artifact-backed series, reads only the X/Y
// columns (pushing an X range filter to the reader), numeric-coerces,
// drops NaN, reservoir-samples down to max_points if needed, and returns
// rows sorted ascending by X.
func (s *Service) Raw(ctx context.Context, req RawRequest) (*RawResult, error) {
	job, err := s.Jobs.Get(ctx, req.VizID)
	if err != nil {
		return nil, err
	}
	if req.SeriesIndex < 0 || req.SeriesIndex >= len(job.Series) {
		return nil, domain.NewJobError(domain.ErrNotFound, "series %d", req.SeriesIndex)
	}
	series := job.Series[req.SeriesIndex]

	if job.ArtifactKey == nil {
		return nil, domain.NewJobError(domain.ErrRawNotAvailable, "series %d has no columnar artifact", req.SeriesIndex)
	}

	maxPoints := req.MaxPoints
	if maxPoints <= 0 {
		maxPoints = defaultMaxPoints
	}
	rowCap := req.Cap
	if rowCap <= 0 {
		rowCap = defaultCap
	}

	body, err := s.Objects.Get(ctx, *job.ArtifactKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	defer body.Close()

	rd, err := columnar.OpenReader(body)
	if err != nil {
		return nil, fmt.Errorf("%w: artifact %s: %v", domain.ErrReadError, *job.ArtifactKey, err)
	}

	var filter *columnar.RangeFilter
	if req.XMin != nil || req.XMax != nil {
		lo, hi := math.Inf(-1), math.Inf(1)
		if req.XMin != nil {
			lo = *req.XMin
		}
		if req.XMax != nil {
			hi = *req.XMax
		}
		filter = &columnar.RangeFilter{Column: series.XAxis, Min: lo, Max: hi}
	}

	var xs, ys []float64
	seen := 0
	rng := rand.New(rand.NewSource(domain.SampleSeed))
	err = rd.Chunks([]string{series.XAxis, series.YAxis}, filter, func(f *columnar.Frame) bool {
		xCol, yCol := f.Column(series.XAxis), f.Column(series.YAxis)
		for i := range xCol {
			x, y := xCol[i], yCol[i]
			if columnar.IsNull(x) || columnar.IsNull(y) {
				continue
			}
			if req.XMin != nil && x < *req.XMin {
				continue
			}
			if req.XMax != nil && x > *req.XMax {
				continue
			}
			seen++
			if seen > rowCap {
				return false
			}
			if seen <= maxPoints {
				xs = append(xs, x)
				ys = append(ys, y)
				continue
			}
			j := rng.Intn(seen)
			if j < maxPoints {
				xs[j], ys[j] = x, y
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("%w: artifact %s: %v", domain.ErrReadError, *job.ArtifactKey, err)
	}

	order := make([]int, len(xs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return xs[order[i]] < xs[order[j]] })
	sortedX := make([]float64, len(xs))
	sortedY := make([]float64, len(ys))
	for i, idx := range order {
		sortedX[i] = xs[idx]
		sortedY[i] = ys[idx]
	}

	return &RawResult{
		Series: req.SeriesIndex,
		Rows:   len(sortedX),
		XAxis:  series.XAxis,
		YAxis:  series.YAxis,
		Data:   map[string][]float64{series.XAxis: sortedX, series.YAxis: sortedY},
	}, nil
}
