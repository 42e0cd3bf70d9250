// Package ingest implements the Ingestion Coordinator (spec §4.1):
// orchestrating one ingestion job from its raw object key through to a
// canonical columnar artifact, stats, and a sample, publishing progress
// at each stage along the way.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/flightdv/corepipeline/engine/derived"
	"github.com/flightdv/corepipeline/engine/domain"
	"github.com/flightdv/corepipeline/engine/parser"
	"github.com/flightdv/corepipeline/engine/progress"
	"github.com/flightdv/corepipeline/pkg/columnar"
	"github.com/flightdv/corepipeline/pkg/fn"
	"github.com/flightdv/corepipeline/pkg/metrics"
	"github.com/flightdv/corepipeline/pkg/objectstore"
	"github.com/flightdv/corepipeline/pkg/repo"
	"github.com/flightdv/corepipeline/pkg/resilience"
)

const sampleRowLimit = 10

// Deps holds the external dependencies the coordinator drives.
type Deps struct {
	Objects  *objectstore.Gateway
	Jobs     repo.Repository[domain.IngestionJob, string]
	Progress *progress.Channel
	Metrics  *metrics.Registry
	Breaker  *resilience.Breaker
	Logger   *slog.Logger
}

// runState threads one job's working data through the pipeline stages.
type runState struct {
	Job    domain.IngestionJob
	ext    string
	plan   derived.Plan
	schema columnar.Schema
	artifact bytes.Buffer
	writer *columnar.Writer

	columns  []string
	rows     int64
	sample   []map[string]any
	stats    map[string]domain.ColumnStats
	matIndex []domain.MatIndexEntry

	artifactKey string
	nonTabular  bool

	pending *pendingChunksHolder
}

// pendingChunksHolder carries parsed chunks between the parse,
// derived-column materialization, and artifact-write stages.
type pendingChunksHolder struct {
	chunks []parser.Chunk
}

// Run executes the ingestion for jobID to terminal status (spec §4.1).
func Run(ctx context.Context, deps Deps, jobID string) error {
	log := logger(deps)
	started := time.Now()
	if deps.Metrics != nil {
		deps.Metrics.Counter("ingest_jobs_started_total", "ingestion jobs started").Add(1)
	}

	job, err := deps.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}

	st := &runState{Job: job, stats: map[string]domain.ColumnStats{}}

	pipeline := fn.Pipeline(
		fn.TracedStage("ingest.resolve", stageResolve(deps)),
		fn.TracedStage("ingest.download_and_parse", stageDownloadAndParse(deps)),
		fn.TracedStage("ingest.materialize_derived", stageMaterializeDerived(deps)),
		fn.TracedStage("ingest.write_artifact", stageWriteArtifact(deps)),
		fn.TracedStage("ingest.persist", stagePersist(deps)),
	)

	result := pipeline(ctx, st)
	if result.IsErr() {
		_, runErr := result.Unwrap()
		if deps.Metrics != nil {
			deps.Metrics.Counter("ingest_jobs_failed_total", "ingestion jobs failed").Add(1)
		}
		log.Error("ingest: failed", "job_id", jobID, "error", runErr)
		if err := finalize(ctx, deps, st, domain.StatusFailure, 100, runErr.Error()); err != nil {
			log.Error("ingest: failed to persist failure status", "job_id", jobID, "error", err)
		}
		return runErr
	}

	st, _ = result.Unwrap()
	if st.nonTabular {
		if deps.Metrics != nil {
			deps.Metrics.Counter("ingest_jobs_succeeded_total", "ingestion jobs succeeded").Add(1)
		}
		return finalize(ctx, deps, st, domain.StatusSuccess, 100, "stored (non-tabular)")
	}

	if deps.Metrics != nil {
		deps.Metrics.Counter("ingest_jobs_succeeded_total", "ingestion jobs succeeded").Add(1)
		metrics.Since(deps.Metrics.Histogram("ingest_job_duration_seconds", "ingestion job wall time", nil), started)
		deps.Metrics.Counter("ingest_rows_processed_total", "rows processed across all ingestion jobs").Add(float64(st.rows))
	}
	return finalize(ctx, deps, st, domain.StatusSuccess, 100, "")
}

func stageResolve(deps Deps) fn.Stage[*runState, *runState] {
	return func(ctx context.Context, st *runState) fn.Result[*runState] {
		if st.Job.RawKey == "" {
			return fn.Err[*runState](domain.NewJobError(domain.ErrStorageUnavailable, "job %s has no raw key", st.Job.ID))
		}
		st.ext = strings.ToLower(filepath.Ext(st.Job.Filename))
		if st.Job.HeaderStrategy == domain.HeaderCustom && len(st.Job.CustomHeaders) == 0 {
			return fn.Err[*runState](domain.NewJobError(domain.ErrInvalidHeaderSpec, "custom header strategy requires custom_headers"))
		}
		if err := publish(ctx, deps, st.Job.ID, domain.StatusStarted, 5, "download"); err != nil {
			logger(deps).Warn("ingest: progress publish failed", "error", err)
		}
		return fn.Ok(st)
	}
}

func stageDownloadAndParse(deps Deps) fn.Stage[*runState, *runState] {
	return func(ctx context.Context, st *runState) fn.Result[*runState] {
		if !domain.IsTabular(st.ext) {
			st.nonTabular = true
			return fn.Ok(st)
		}

		var body io.ReadCloser
		err := guardedCall(deps, ctx, func(ctx context.Context) error {
			var getErr error
			body, getErr = deps.Objects.Get(ctx, st.Job.RawKey)
			return getErr
		})
		if err != nil {
			return fn.Err[*runState](fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err))
		}
		defer body.Close()

		src := parser.Source{
			Reader:         body,
			Filename:       st.Job.Filename,
			HeaderStrategy: st.Job.HeaderStrategy,
			CustomHeaders:  st.Job.CustomHeaders,
			Family:         st.Job.Family,
		}
		if st.Job.SheetName != nil {
			src.SheetName = *st.Job.SheetName
		}
		if st.Job.ParseRange != nil {
			src.ParseRange = st.Job.ParseRange
		}

		p, err := parser.Lookup(st.Job.Filename, st.Job.Family)
		if err != nil {
			return fn.Err[*runState](err)
		}

		var chunks []parser.Chunk
		if err := p.Parse(ctx, src, func(c parser.Chunk) error {
			chunks = append(chunks, c)
			return nil
		}); err != nil {
			return fn.Err[*runState](err)
		}
		if len(chunks) == 0 {
			return fn.Err[*runState](domain.NewJobError(domain.ErrEmptySelection, "no rows parsed from %s", st.Job.Filename))
		}

		st.columns = chunks[0].Frame.Schema.Names
		if st.Job.HeaderStrategy == domain.HeaderCustom && len(st.Job.CustomHeaders) != len(st.columns) {
			return fn.Err[*runState](domain.NewJobError(domain.ErrInvalidHeaderSpec,
				"custom_headers has %d names, detected %d columns", len(st.Job.CustomHeaders), len(st.columns)))
		}

		st.schema = chunks[0].Frame.Schema
		st.pending = &pendingChunksHolder{chunks: chunks}
		return fn.Ok(st)
	}
}

func stageMaterializeDerived(deps Deps) fn.Stage[*runState, *runState] {
	return func(ctx context.Context, st *runState) fn.Result[*runState] {
		if st.nonTabular || st.pending == nil {
			return fn.Ok(st)
		}
		if len(st.Job.DerivedColumns) == 0 {
			return fn.Ok(st)
		}
		specs, err := derived.Normalize(st.columns, st.Job.DerivedColumns)
		if err != nil {
			return fn.Err[*runState](err)
		}
		target := append(append([]string{}, st.columns...), specNames(specs)...)
		plan, err := derived.BuildPlan(st.columns, st.Job.DerivedColumns, target)
		if err != nil {
			return fn.Err[*runState](err)
		}
		st.plan = plan
		for i, c := range st.pending.chunks {
			frame := c.Frame
			env := derived.Environment{}
			for _, name := range frame.Schema.Names {
				env[name] = frame.Column(name)
			}
			if err := derived.Evaluate(env, plan.Derived); err != nil {
				return fn.Err[*runState](err)
			}
			for _, name := range plan.DerivedNames {
				frame.Floats[name] = env[name]
				frame.Schema.Names = append(frame.Schema.Names, name)
				frame.Schema.Types = append(frame.Schema.Types, columnar.ColumnFloat64)
			}
			st.pending.chunks[i] = c
		}
		st.columns = append(st.columns, plan.DerivedNames...)
		st.schema = st.pending.chunks[0].Frame.Schema
		return fn.Ok(st)
	}
}

func specNames(specs []derived.Spec) []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

func stageWriteArtifact(deps Deps) fn.Stage[*runState, *runState] {
	return func(ctx context.Context, st *runState) fn.Result[*runState] {
		if st.nonTabular || st.pending == nil {
			return fn.Ok(st)
		}
		if err := publish(ctx, deps, st.Job.ID, domain.StatusStarted, 60, "write_artifact"); err != nil {
			logger(deps).Warn("ingest: progress publish failed", "error", err)
		}

		w := columnar.NewWriter(&st.artifact, st.schema)
		for _, c := range st.pending.chunks {
			if err := w.WriteBatch(c.Frame); err != nil {
				return fn.Err[*runState](fmt.Errorf("%w: %v", domain.ErrWriteError, err))
			}
			st.rows += int64(c.Frame.Rows)
			mergeSample(&st.sample, c.Frame)
			mergeStatsInto(st.stats, c.Stats)
		}
		if err := w.Close(); err != nil {
			return fn.Err[*runState](fmt.Errorf("%w: %v", domain.ErrWriteError, err))
		}

		key := objectstore.ProcessedKey(st.Job.ProjectID, st.Job.ID)
		err := guardedCall(deps, ctx, func(ctx context.Context) error {
			return deps.Objects.Put(ctx, key, bytes.NewReader(st.artifact.Bytes()), int64(st.artifact.Len()), "application/octet-stream")
		})
		if err != nil {
			return fn.Err[*runState](fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err))
		}
		st.artifactKey = key
		if deps.Metrics != nil {
			deps.Metrics.Counter("ingest_bytes_written_total", "bytes written to the object store").Add(float64(st.artifact.Len()))
		}
		return fn.Ok(st)
	}
}

func stagePersist(deps Deps) fn.Stage[*runState, *runState] {
	return func(ctx context.Context, st *runState) fn.Result[*runState] {
		if st.nonTabular {
			return fn.Ok(st)
		}
		if err := publish(ctx, deps, st.Job.ID, domain.StatusStarted, 90, "persist"); err != nil {
			logger(deps).Warn("ingest: progress publish failed", "error", err)
		}
		job := st.Job
		job.Columns = st.columns
		job.RowsSeen = st.rows
		job.SampleRows = st.sample
		job.Stats = st.stats
		job.MatIndex = st.matIndex
		job.ProcessedKey = &st.artifactKey
		if _, err := deps.Jobs.Update(ctx, job); err != nil {
			return fn.Err[*runState](err)
		}
		st.Job = job
		return fn.Ok(st)
	}
}

func finalize(ctx context.Context, deps Deps, st *runState, status domain.JobStatus, progressPct int, message string) error {
	job := st.Job
	job.Status = status
	job.Progress = progressPct
	job.Message = message
	if _, err := deps.Jobs.Update(ctx, job); err != nil {
		return err
	}
	return publish(ctx, deps, job.ID, status, progressPct, message)
}

func publish(ctx context.Context, deps Deps, jobID string, status domain.JobStatus, progressPct int, message string) error {
	if deps.Progress == nil {
		return nil
	}
	return deps.Progress.Publish(ctx, domain.ProgressEvent{JobID: jobID, Status: status, Progress: progressPct, Message: message})
}

func mergeSample(sample *[]map[string]any, f *columnar.Frame) {
	for i := 0; i < f.Rows && len(*sample) < sampleRowLimit; i++ {
		row := make(map[string]any, len(f.Schema.Names))
		for _, name := range f.Schema.Names {
			if vs, ok := f.Floats[name]; ok {
				row[name] = vs[i]
			} else if vs, ok := f.Strings[name]; ok {
				row[name] = vs[i]
			}
		}
		*sample = append(*sample, row)
	}
}

func mergeStatsInto(acc map[string]domain.ColumnStats, next map[string]domain.ColumnStats) {
	for col, s := range next {
		cur, ok := acc[col]
		if !ok {
			acc[col] = s
			continue
		}
		if s.Min < cur.Min {
			cur.Min = s.Min
		}
		if s.Max > cur.Max {
			cur.Max = s.Max
		}
		acc[col] = cur
	}
}

// guardedCall routes op through the circuit breaker when one is
// configured, else calls it directly (so Deps{} zero values stay usable
// in tests).
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
