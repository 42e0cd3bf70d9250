// Package domain defines the core data model shared by the ingestion and
// visualization pipelines: jobs, series, tiles, and progress events.
package domain

import "time"

// JobStatus is the lifecycle state of an ingestion or visualization job.
type JobStatus string

const (
	StatusQueued  JobStatus = "queued"
	StatusStarted JobStatus = "started"
	StatusSuccess JobStatus = "success"
	StatusFailure JobStatus = "failure"
)

// HeaderStrategy controls how column names are derived for text formats.
type HeaderStrategy string

const (
	HeaderFile   HeaderStrategy = "file"
	HeaderNone   HeaderStrategy = "none"
	HeaderCustom HeaderStrategy = "custom"
)

// DatasetFamily tags the domain of an uploaded dataset.
type DatasetFamily string

const (
	FamilyCFD    DatasetFamily = "cfd"
	FamilyWind   DatasetFamily = "wind"
	FamilyFlight DatasetFamily = "flight"
	FamilyOther  DatasetFamily = "other"
)

// LineRange is a 1-based inclusive line range used by whitespace/DAT parsing.
type LineRange struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// DerivedSpec is one entry of an ordered derived-column list (§4.3).
type DerivedSpec struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// ColumnStats is the {min,max} numeric summary recorded per column.
type ColumnStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// MatConfig describes the MAT variable/axis/filter mapping requested for a
// MAT-backed ingestion or visualization.
type MatConfig struct {
	Var      string             `json:"var"`
	AxisDims []int              `json:"axis_dims"`
	CoordMap map[int]string     `json:"coord_map,omitempty"`
	Filters  map[int]float64    `json:"filters,omitempty"`
}

// MatIndexEntry describes one reachable numeric array discovered while
// indexing a MAT file (§4.8).
type MatIndexEntry struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
	Kind  string `json:"kind"` // numeric_array|struct|cell|unsupported
	Dtype string `json:"dtype"`
}

// IngestionJob is the persisted document for one ingestion run (§3).
type IngestionJob struct {
	ID         string        `json:"id"`
	ProjectID  string        `json:"project_id"`
	OwnerID    string        `json:"owner_id"`
	Filename   string        `json:"filename"`
	RawKey     string        `json:"raw_key"`
	ProcessedKey *string     `json:"processed_key,omitempty"`
	Family     DatasetFamily `json:"family"`
	Tag        string        `json:"tag"`
	ContentType string       `json:"content_type"`
	Size       int64         `json:"size"`

	HeaderStrategy HeaderStrategy `json:"header_strategy"`
	CustomHeaders  []string       `json:"custom_headers,omitempty"`
	SheetName      *string        `json:"sheet_name,omitempty"`
	ParseRange     *LineRange     `json:"parse_range,omitempty"`
	Mat            *MatConfig     `json:"mat,omitempty"`
	DerivedColumns []DerivedSpec  `json:"derived_columns,omitempty"`

	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Message  string    `json:"message"`

	Columns    []string               `json:"columns,omitempty"`
	RowsSeen   int64                  `json:"rows_seen,omitempty"`
	SampleRows []map[string]any       `json:"sample_rows,omitempty"`
	Stats      map[string]ColumnStats `json:"stats,omitempty"`
	MatIndex   []MatIndexEntry        `json:"mat_index,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NonTabularExtensions are extensions stored but never parsed into a frame.
var NonTabularExtensions = map[string]bool{
	".pdf": true, ".zip": true, ".png": true, ".jpg": true, ".jpeg": true,
}

// IsTabular reports whether ext (including the leading dot, lowercased) is
// not one of NonTabularExtensions. It does not consult the parser registry.
func IsTabular(ext string) bool {
	return !NonTabularExtensions[ext]
}

// ChartType enumerates the chart families recognized by the planner/figure
// builder (§4.6/§4.7).
type ChartType string

const (
	ChartScatter     ChartType = "scatter"
	ChartScatterLine ChartType = "scatterline"
	ChartLine        ChartType = "line"
	ChartBar         ChartType = "bar"
	ChartPolar       ChartType = "polar"
	ChartHistogram   ChartType = "histogram"
	ChartBox         ChartType = "box"
	ChartViolin      ChartType = "violin"
	ChartHeatmap     ChartType = "heatmap"
	ChartContour     ChartType = "contour"
	ChartScatter3D   ChartType = "scatter3d"
	ChartLine3D      ChartType = "line3d"
	ChartSurface     ChartType = "surface"
)

// TiledChartTypes are the chart families served by the tile materializer.
var TiledChartTypes = map[ChartType]bool{
	ChartScatter: true, ChartScatterLine: true, ChartLine: true, ChartBar: true,
}

// RawChartTypes are the chart families served by the sampler.
var RawChartTypes = map[ChartType]bool{
	ChartPolar: true, ChartHistogram: true, ChartBox: true, ChartViolin: true,
	ChartHeatmap: true, ChartContour: true, ChartScatter3D: true,
	ChartLine3D: true, ChartSurface: true,
}

// ZRequiredChartTypes are chart types that require a z axis.
var ZRequiredChartTypes = map[ChartType]bool{
	ChartContour: true, ChartScatter3D: true, ChartLine3D: true, ChartSurface: true,
}

// Scale is an axis scale kind.
type Scale string

const (
	ScaleLinear Scale = "linear"
	ScaleLog    Scale = "log"
)

// Series is one line/curve/surface bound to a source ingestion job (§3).
type Series struct {
	SourceJobID string        `json:"source_job_id"`
	XAxis       string        `json:"x_axis"`
	YAxis       string        `json:"y_axis"`
	ZAxis       string        `json:"z_axis,omitempty"`
	Label       string        `json:"label"`
	XScale      Scale         `json:"x_scale"`
	YScale      Scale         `json:"y_scale"`
	ChartType   *ChartType    `json:"chart_type,omitempty"` // per-series override
	Derived     []DerivedSpec `json:"derived,omitempty"`
}

// MatRequest is the MAT source descriptor on a visualization job.
type MatRequest struct {
	JobID   string          `json:"job_id"`
	Var     string          `json:"var"`
	Mapping []int           `json:"mapping"`
	Filters map[int]float64 `json:"filters,omitempty"`
}

// SourceType distinguishes tabular-series visualizations from MAT ones.
type SourceType string

const (
	SourceTabular SourceType = "tabular"
	SourceMat     SourceType = "mat"
)

// SeriesStats is the bounds/row-count summary the planner attaches per series.
type SeriesStats struct {
	XMin float64 `json:"x_min"`
	XMax float64 `json:"x_max"`
	Rows int64   `json:"rows"`
}

// TileDescriptor locates one materialized tile (§3 Tile).
type TileDescriptor struct {
	SeriesIndex int     `json:"series_index"`
	Level       int     `json:"level"`
	ObjectKey   string  `json:"object_key"`
	RowCount    int     `json:"row_count"`
	XMin        float64 `json:"x_min"`
	XMax        float64 `json:"x_max"`
}

// VisualizationJob is the persisted document for one visualization run (§3).
type VisualizationJob struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Source    SourceType `json:"source"`
	ChartType ChartType  `json:"chart_type"`
	Series    []Series   `json:"series,omitempty"`
	Mat       *MatRequest `json:"mat,omitempty"`

	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Message  string    `json:"message"`

	ArtifactKey *string                `json:"artifact_key,omitempty"`
	Tiles       []TileDescriptor       `json:"tiles,omitempty"`
	SeriesStats map[int]SeriesStats    `json:"series_stats,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressEvent is published on every status transition (§3).
type ProgressEvent struct {
	JobID    string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Message  string    `json:"message"`
}

// DefaultLevels are the tile bin counts materialized per series (§4.4).
var DefaultLevels = []int{256, 1024, 4096}

// MaxXYPoints / MaxXYZPoints are the sampler budgets for RAW chart families (§4.5).
const (
	MaxXYPoints  = 120_000
	MaxXYZPoints = 200_000
)

// SampleSeed is the fixed reservoir-sampling seed required for determinism (§4.5/§8).
const SampleSeed = 42
