package visualize

import (
	"context"
	"errors"
	"testing"

	"github.com/flightdv/corepipeline/engine/domain"
	"github.com/flightdv/corepipeline/pkg/repo"
)

// fakeIngestRepo is an in-memory repo.Repository for planner tests; only
// Get is exercised by Build.
type fakeIngestRepo struct {
	jobs map[string]domain.IngestionJob
}

func (r fakeIngestRepo) Get(ctx context.Context, id string) (domain.IngestionJob, error) {
	j, ok := r.jobs[id]
	if !ok {
		return domain.IngestionJob{}, domain.ErrNotFound
	}
	return j, nil
}
func (r fakeIngestRepo) List(ctx context.Context, opts repo.ListOpts) ([]domain.IngestionJob, error) {
	return nil, nil
}
func (r fakeIngestRepo) Create(ctx context.Context, e domain.IngestionJob) (domain.IngestionJob, error) {
	return e, nil
}
func (r fakeIngestRepo) Update(ctx context.Context, e domain.IngestionJob) (domain.IngestionJob, error) {
	return e, nil
}
func (r fakeIngestRepo) Delete(ctx context.Context, id string) error { return nil }

func baseIngestJob() domain.IngestionJob {
	return domain.IngestionJob{
		ID: "ing-1", ProjectID: "proj-1", Status: domain.StatusSuccess,
		Columns: []string{"x", "y", "z"},
		Stats: map[string]domain.ColumnStats{
			"x": {Min: 0, Max: 10},
			"y": {Min: -5, Max: 5},
		},
		RowsSeen: 100,
	}
}

func TestBuildTabularPlanHappyPath(t *testing.T) {
	jobs := fakeIngestRepo{jobs: map[string]domain.IngestionJob{"ing-1": baseIngestJob()}}
	job := &domain.VisualizationJob{
		ID: "viz-1", ProjectID: "proj-1", Source: domain.SourceTabular, ChartType: domain.ChartScatter,
		Series: []domain.Series{{SourceJobID: "ing-1", XAxis: "x", YAxis: "y"}},
	}

	plan, err := Build(context.Background(), job, jobs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(plan.Series) != 1 {
		t.Fatalf("expected 1 series plan, got %d", len(plan.Series))
	}
	sp := plan.Series[0]
	if !sp.Tiled {
		t.Fatalf("scatter chart type should be tiled")
	}
	if sp.Stats.XMin != 0 || sp.Stats.XMax != 10 {
		t.Fatalf("unexpected stats: %+v", sp.Stats)
	}
}

func TestBuildTabularPlanRejectsMissingColumn(t *testing.T) {
	jobs := fakeIngestRepo{jobs: map[string]domain.IngestionJob{"ing-1": baseIngestJob()}}
	job := &domain.VisualizationJob{
		ID: "viz-1", ProjectID: "proj-1", Source: domain.SourceTabular, ChartType: domain.ChartScatter,
		Series: []domain.Series{{SourceJobID: "ing-1", XAxis: "missing", YAxis: "y"}},
	}

	_, err := Build(context.Background(), job, jobs)
	if !errors.Is(err, domain.ErrColumnNotFound) {
		t.Fatalf("expected ErrColumnNotFound, got %v", err)
	}
}

func TestBuildTabularPlanRejectsCrossProjectSource(t *testing.T) {
	ij := baseIngestJob()
	ij.ProjectID = "other-project"
	jobs := fakeIngestRepo{jobs: map[string]domain.IngestionJob{"ing-1": ij}}
	job := &domain.VisualizationJob{
		ID: "viz-1", ProjectID: "proj-1", Source: domain.SourceTabular, ChartType: domain.ChartScatter,
		Series: []domain.Series{{SourceJobID: "ing-1", XAxis: "x", YAxis: "y"}},
	}

	_, err := Build(context.Background(), job, jobs)
	if !errors.Is(err, domain.ErrEmptySelection) {
		t.Fatalf("expected ErrEmptySelection, got %v", err)
	}
}

func TestBuildTabularPlanRejectsInvalidLogScale(t *testing.T) {
	jobs := fakeIngestRepo{jobs: map[string]domain.IngestionJob{"ing-1": baseIngestJob()}}
	job := &domain.VisualizationJob{
		ID: "viz-1", ProjectID: "proj-1", Source: domain.SourceTabular, ChartType: domain.ChartScatter,
		Series: []domain.Series{{SourceJobID: "ing-1", XAxis: "x", YAxis: "y", YScale: domain.ScaleLog}},
	}

	_, err := Build(context.Background(), job, jobs)
	if !errors.Is(err, domain.ErrLogScaleInvalid) {
		t.Fatalf("expected ErrLogScaleInvalid (y stats min -5), got %v", err)
	}
}

func TestBuildTabularPlanMixedSeriesPolicy(t *testing.T) {
	jobs := fakeIngestRepo{jobs: map[string]domain.IngestionJob{"ing-1": baseIngestJob()}}
	contour := domain.ChartContour
	job := &domain.VisualizationJob{
		ID: "viz-1", ProjectID: "proj-1", Source: domain.SourceTabular, ChartType: domain.ChartScatter,
		Series: []domain.Series{
			{SourceJobID: "ing-1", XAxis: "x", YAxis: "y"},
			{SourceJobID: "ing-1", XAxis: "x", YAxis: "y", ZAxis: "z", ChartType: &contour},
		},
	}

	_, err := Build(context.Background(), job, jobs)
	if !errors.Is(err, domain.ErrIncompatibleMixedSeries) {
		t.Fatalf("expected ErrIncompatibleMixedSeries, got %v", err)
	}
}

func TestBuildMatPlanRequiresSuccessfulMatSource(t *testing.T) {
	ij := baseIngestJob()
	ij.Status = domain.StatusStarted
	ij.MatIndex = []domain.MatIndexEntry{{Name: "v"}}
	jobs := fakeIngestRepo{jobs: map[string]domain.IngestionJob{"ing-1": ij}}
	job := &domain.VisualizationJob{
		ID: "viz-1", ProjectID: "proj-1", Source: domain.SourceMat, ChartType: domain.ChartLine,
		Mat: &domain.MatRequest{JobID: "ing-1", Var: "v", Mapping: []int{0}},
	}

	_, err := Build(context.Background(), job, jobs)
	if !errors.Is(err, domain.ErrEmptySelection) {
		t.Fatalf("expected ErrEmptySelection for non-success source job, got %v", err)
	}
}
