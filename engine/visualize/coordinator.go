// Coordinator orchestration for the Visualization Planner/Figure Builder
// (spec §4.6/§4.7): resolves a VisualizationJob into a Plan, materializes
// each series' tile levels or sample (handing off to §4.4/§4.5), builds
// the Figure, renders the HTML artifact, and persists tiles/artifact keys
// back onto the job — the visualization-side mirror of engine/ingest's
// coordinator.
package visualize

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/flightdv/corepipeline/engine/derived"
	"github.com/flightdv/corepipeline/engine/domain"
	"github.com/flightdv/corepipeline/engine/matslice"
	"github.com/flightdv/corepipeline/engine/progress"
	"github.com/flightdv/corepipeline/engine/sampling"
	"github.com/flightdv/corepipeline/engine/tiling"
	"github.com/flightdv/corepipeline/pkg/columnar"
	"github.com/flightdv/corepipeline/pkg/metrics"
	"github.com/flightdv/corepipeline/pkg/objectstore"
	"github.com/flightdv/corepipeline/pkg/repo"
	"github.com/flightdv/corepipeline/pkg/resilience"
)

// Deps holds the external dependencies the coordinator drives.
type Deps struct {
	Objects    *objectstore.Gateway
	Jobs       repo.Repository[domain.VisualizationJob, string]
	IngestJobs repo.Repository[domain.IngestionJob, string]
	Progress   *progress.Channel
	Metrics    *metrics.Registry
	Breaker    *resilience.Breaker
	Logger     *slog.Logger
	// Endpoint is the Zoom Query Surface's externally reachable base URL,
	// wired into the rendered artifact's embedded zoom loader.
	Endpoint string
}

// Run executes the visualization pipeline for vizID to terminal status
// (spec §4.6 "Build plan, then hand off to the materializer/sampler for
// each TILED/RAW series, then to the figure builder").
func Run(ctx context.Context, deps Deps, vizID string) error {
	log := logger(deps)
	if deps.Metrics != nil {
		deps.Metrics.Counter("viz_jobs_started_total", "visualization jobs started").Add(1)
	}

	job, err := deps.Jobs.Get(ctx, vizID)
	if err != nil {
		return err
	}

	plan, err := Build(ctx, &job, deps.IngestJobs)
	if err != nil {
		return failJob(ctx, deps, job, err)
	}

	var fig *Figure
	var tiles []domain.TileDescriptor
	var seriesStats map[int]domain.SeriesStats

	if plan.Mat != nil {
		fig, err = runMat(ctx, deps, plan)
	} else {
		fig, tiles, seriesStats, err = runTabular(ctx, deps, plan)
	}
	if err != nil {
		return failJob(ctx, deps, job, err)
	}

	html, err := RenderHTML(fig, deps.Endpoint, vizID)
	if err != nil {
		return failJob(ctx, deps, job, fmt.Errorf("%w: render html: %v", domain.ErrWriteError, err))
	}

	artifactKey := objectstore.ArtifactKey(job.ProjectID, vizID)
	if err := guardedCall(deps, ctx, func(ctx context.Context) error {
		return deps.Objects.Put(ctx, artifactKey, bytes.NewReader([]byte(html)), int64(len(html)), "text/html; charset=utf-8")
	}); err != nil {
		return failJob(ctx, deps, job, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err))
	}

	job.ArtifactKey = &artifactKey
	job.Tiles = tiles
	job.SeriesStats = seriesStats
	job.Status = domain.StatusSuccess
	job.Progress = 100
	job.Message = ""
	if _, err := deps.Jobs.Update(ctx, job); err != nil {
		return err
	}
	if deps.Metrics != nil {
		deps.Metrics.Counter("viz_jobs_succeeded_total", "visualization jobs succeeded").Add(1)
	}
	log.Info("visualize: job succeeded", "job_id", vizID)
	return publish(ctx, deps, vizID, domain.StatusSuccess, 100, "")
}

func runMat(ctx context.Context, deps Deps, plan *Plan) (*Figure, error) {
	if plan.Mat.IngestionJob.RawKey == "" {
		return nil, domain.NewJobError(domain.ErrEmptySelection, "mat source job has no raw key")
	}
	body, err := deps.Objects.Get(ctx, plan.Mat.IngestionJob.RawKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrReadError, err)
	}

	cfg := domain.MatConfig{
		Var:      plan.Mat.Request.Var,
		AxisDims: plan.Mat.Request.Mapping,
		Filters:  plan.Mat.Request.Filters,
	}
	slice, err := matslice.Slice(raw, cfg)
	if err != nil {
		return nil, err
	}
	return BuildMatFigure(plan.Mat.ChartType, slice)
}

func runTabular(ctx context.Context, deps Deps, plan *Plan) (*Figure, []domain.TileDescriptor, map[int]domain.SeriesStats, error) {
	data := TabularData{Tiles: map[int]*tiling.Result{}, Samples: map[int]*sampling.Result{}}
	var tiles []domain.TileDescriptor
	seriesStats := map[int]domain.SeriesStats{}

	for _, sp := range plan.Series {
		ij, err := deps.IngestJobs.Get(ctx, sp.Series.SourceJobID)
		if err != nil {
			return nil, nil, nil, err
		}

		body, err := deps.Objects.Get(ctx, sp.DataKey)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
		}
		rd, err := columnar.OpenReader(body)
		if err != nil {
			body.Close()
			return nil, nil, nil, fmt.Errorf("%w: series %d: %v", domain.ErrReadError, sp.Index, err)
		}

		specs := derivedSpecsFor(ij.Columns, sp.Series)

		if sp.Tiled {
			res, err := tiling.Materialize(ctx, rd, tiling.Options{
				XColumn: sp.Series.XAxis, YColumn: sp.Series.YAxis,
				XScale: sp.Series.XScale, YScale: sp.Series.YScale,
				DerivedSpecs: specs,
			})
			body.Close()
			if err != nil {
				return nil, nil, nil, fmt.Errorf("series %d: %w", sp.Index, err)
			}
			data.Tiles[sp.Index] = res
			seriesStats[sp.Index] = domain.SeriesStats{XMin: res.XMin, XMax: res.XMax, Rows: res.Rows}

			for _, lvl := range res.Levels {
				key := objectstore.TileKey(plan.Job.ProjectID, plan.Job.ID, sp.Index, lvl.BinCount)
				var buf bytes.Buffer
				frame := tiling.ToFrame(lvl)
				if err := columnar.WriteFrame(&buf, frame); err != nil {
					return nil, nil, nil, fmt.Errorf("%w: tile series %d level %d: %v", domain.ErrWriteError, sp.Index, lvl.BinCount, err)
				}
				if err := guardedCall(deps, ctx, func(ctx context.Context) error {
					return deps.Objects.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "application/octet-stream")
				}); err != nil {
					return nil, nil, nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
				}
				tiles = append(tiles, domain.TileDescriptor{
					SeriesIndex: sp.Index, Level: lvl.BinCount, ObjectKey: key,
					RowCount: len(lvl.X), XMin: res.XMin, XMax: res.XMax,
				})
			}
			continue
		}

		columns := []string{sp.Series.XAxis, sp.Series.YAxis}
		logAxes := map[string]bool{sp.Series.XAxis: sp.Series.XScale == domain.ScaleLog, sp.Series.YAxis: sp.Series.YScale == domain.ScaleLog}
		maxPoints := domain.MaxXYPoints
		if sp.Series.ZAxis != "" {
			columns = append(columns, sp.Series.ZAxis)
			maxPoints = domain.MaxXYZPoints
		}
		res, err := sampling.Sample(ctx, rd, sampling.Options{
			Columns: columns, LogScaleAxes: logAxes, MaxPoints: maxPoints, DerivedSpecs: specs,
		})
		body.Close()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("series %d: %w", sp.Index, err)
		}
		data.Samples[sp.Index] = res
		seriesStats[sp.Index] = sp.Stats
	}

	fig, err := Build(plan, data)
	if err != nil {
		return nil, nil, nil, err
	}
	return fig, tiles, seriesStats, nil
}

func derivedSpecsFor(baseColumns []string, s domain.Series) []derived.Spec {
	if len(s.Derived) == 0 {
		return nil
	}
	specs, _ := derived.Normalize(baseColumns, s.Derived)
	return specs
}

func failJob(ctx context.Context, deps Deps, job domain.VisualizationJob, cause error) error {
	job.Status = domain.StatusFailure
	job.Progress = 100
	job.Message = cause.Error()
	if _, err := deps.Jobs.Update(ctx, job); err != nil {
		logger(deps).Error("visualize: failed to persist failure status", "job_id", job.ID, "error", err)
	}
	if deps.Metrics != nil {
		deps.Metrics.Counter("viz_jobs_failed_total", "visualization jobs failed").Add(1)
	}
	logger(deps).Error("visualize: job failed", "job_id", job.ID, "error", cause)
	_ = publish(ctx, deps, job.ID, domain.StatusFailure, 100, cause.Error())
	return cause
}

func publish(ctx context.Context, deps Deps, jobID string, status domain.JobStatus, progressPct int, message string) error {
	if deps.Progress == nil {
		return nil
	}
	return deps.Progress.Publish(ctx, domain.ProgressEvent{JobID: jobID, Status: status, Progress: progressPct, Message: message})
}

func guardedCall(deps Deps, ctx context.Context, op func(context.Context) error) error {
	if deps.Breaker == nil {
		return op(ctx)
	}
	return deps.Breaker.Call(ctx, op)
}

func logger(deps Deps) *slog.Logger {
	if deps.Logger != nil {
		return deps.Logger
	}
	return slog.Default()
}
