// Package visualize implements the Visualization Planner and Figure
// Builder (spec §4.6/§4.7): turning a VisualizationJob into a validated
// plan, then into a renderable chart artifact.
package visualize

import (
	"context"
	"fmt"

	"github.com/flightdv/corepipeline/engine/domain"
	"github.com/flightdv/corepipeline/pkg/repo"
)

// cartesian2D is the chart-type subset every series must agree to when any
// series carries a per-series chart_type override (spec §4.6 "Mixed-series
// policy").
var cartesian2D = map[domain.ChartType]bool{
	domain.ChartScatter: true, domain.ChartLine: true,
	domain.ChartBar: true, domain.ChartScatterLine: true,
}

// matPlannableCharts are the chart types a MAT-sourced visualization may
// request.
var matPlannableCharts = map[domain.ChartType]bool{
	domain.ChartLine: true, domain.ChartScatter: true, domain.ChartHeatmap: true,
	domain.ChartContour: true, domain.ChartSurface: true,
}

// SeriesPlan is one validated, source-resolved series ready for tiling/
// sampling and figure construction.
type SeriesPlan struct {
	Index         int
	Series        domain.Series
	EffectiveType domain.ChartType
	Tiled         bool
	DataKey       string // object key chosen for this series: processed (preferred) or raw
	Stats         domain.SeriesStats
}

// Plan is the Visualization Planner's output: a fully validated set of
// series plans (tabular) or a MAT plan, ready for the Figure Builder.
type Plan struct {
	Job    *domain.VisualizationJob
	Series []SeriesPlan
	Mat    *MatPlan
}

// MatPlan carries the resolved MAT source for a source=mat visualization.
type MatPlan struct {
	IngestionJob domain.IngestionJob
	Request      domain.MatRequest
	ChartType    domain.ChartType
}

// Build validates job and resolves a Plan per spec §4.6.
func Build(ctx context.Context, job *domain.VisualizationJob, ingestJobs repo.Repository[domain.IngestionJob, string]) (*Plan, error) {
	if job.Source == domain.SourceMat {
		return buildMatPlan(ctx, job, ingestJobs)
	}
	return buildTabularPlan(ctx, job, ingestJobs)
}

func buildMatPlan(ctx context.Context, job *domain.VisualizationJob, ingestJobs repo.Repository[domain.IngestionJob, string]) (*Plan, error) {
	if job.Mat == nil || job.Mat.JobID == "" || job.Mat.Var == "" || len(job.Mat.Mapping) == 0 {
		return nil, domain.NewJobError(domain.ErrEmptySelection, "mat request requires job_id, var, mapping")
	}
	ij, err := ingestJobs.Get(ctx, job.Mat.JobID)
	if err != nil {
		return nil, err
	}
	if ij.Status != domain.StatusSuccess {
		return nil, domain.NewJobError(domain.ErrEmptySelection, "mat source job %s is not success", ij.ID)
	}
	if ij.MatIndex == nil {
		return nil, domain.NewJobError(domain.ErrUnsupportedFormat, "job %s is not a MAT file", ij.ID)
	}
	if !matPlannableCharts[job.ChartType] {
		return nil, domain.NewJobError(domain.ErrUnsupportedFormat, "chart type %s not supported for mat source", job.ChartType)
	}
	return &Plan{
		Job: job,
		Mat: &MatPlan{IngestionJob: ij, Request: *job.Mat, ChartType: job.ChartType},
	}, nil
}

func buildTabularPlan(ctx context.Context, job *domain.VisualizationJob, ingestJobs repo.Repository[domain.IngestionJob, string]) (*Plan, error) {
	if len(job.Series) == 0 {
		return nil, domain.NewJobError(domain.ErrEmptySelection, "tabular visualization requires at least one series")
	}

	hasOverride := false
	for _, s := range job.Series {
		if s.ChartType != nil {
			hasOverride = true
		}
	}

	plans := make([]SeriesPlan, len(job.Series))
	for i, s := range job.Series {
		ij, err := ingestJobs.Get(ctx, s.SourceJobID)
		if err != nil {
			return nil, err
		}
		if ij.Status != domain.StatusSuccess {
			return nil, domain.NewJobError(domain.ErrEmptySelection, "series %d source job %s is not success", i, s.SourceJobID)
		}
		if ij.ProjectID != job.ProjectID {
			return nil, domain.NewJobError(domain.ErrEmptySelection, "series %d source job belongs to a different project", i)
		}
		if err := requireColumn(ij, s.XAxis); err != nil {
			return nil, fmt.Errorf("series %d: %w", i, err)
		}
		if err := requireColumn(ij, s.YAxis); err != nil {
			return nil, fmt.Errorf("series %d: %w", i, err)
		}

		effective := job.ChartType
		if s.ChartType != nil {
			effective = *s.ChartType
		}
		if domain.ZRequiredChartTypes[effective] && s.ZAxis == "" {
			return nil, domain.NewJobError(domain.ErrEmptySelection, "series %d: chart type %s requires z_axis", i, effective)
		}
		if s.ZAxis != "" {
			if err := requireColumn(ij, s.ZAxis); err != nil {
				return nil, fmt.Errorf("series %d: %w", i, err)
			}
		}

		if err := checkLogBounds(ij, s.XAxis, s.XScale, i, "x"); err != nil {
			return nil, err
		}
		if err := checkLogBounds(ij, s.YAxis, s.YScale, i, "y"); err != nil {
			return nil, err
		}

		dataKey := ij.RawKey
		if ij.ProcessedKey != nil {
			dataKey = *ij.ProcessedKey
		}

		plans[i] = SeriesPlan{
			Index:         i,
			Series:        s,
			EffectiveType: effective,
			Tiled:         domain.TiledChartTypes[effective],
			DataKey:       dataKey,
			Stats:         statsFor(ij, s.XAxis),
		}
	}

	if hasOverride {
		for i, p := range plans {
			if !cartesian2D[p.EffectiveType] {
				return nil, domain.NewJobError(domain.ErrIncompatibleMixedSeries,
					"series %d effective type %s is outside the 2D cartesian subset", i, p.EffectiveType)
			}
		}
	}

	return &Plan{Job: job, Series: plans}, nil
}

func requireColumn(ij domain.IngestionJob, name string) error {
	for _, c := range ij.Columns {
		if c == name {
			return nil
		}
	}
	return fmt.Errorf("%w: column %q", domain.ErrColumnNotFound, name)
}

// checkLogBounds fast-fails a log-scale axis whose recorded stats min is
// not strictly positive, using the ingestion job's §4.1 stats rather than
// re-scanning the source.
func checkLogBounds(ij domain.IngestionJob, column string, scale domain.Scale, seriesIdx int, axis string) error {
	if scale != domain.ScaleLog {
		return nil
	}
	stats, ok := ij.Stats[column]
	if !ok {
		return nil
	}
	if stats.Min <= 0 {
		return domain.NewJobError(domain.ErrLogScaleInvalid, "series %d: %s axis %q min %.6g is not positive", seriesIdx, axis, column, stats.Min)
	}
	return nil
}

func statsFor(ij domain.IngestionJob, xColumn string) domain.SeriesStats {
	s := ij.Stats[xColumn]
	return domain.SeriesStats{XMin: s.Min, XMax: s.Max, Rows: ij.RowsSeen}
}
