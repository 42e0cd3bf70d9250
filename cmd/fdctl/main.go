// Command fdctl is the operator CLI for the ingestion/visualization core:
// upload a raw dataset and enqueue its ingestion job, enqueue a
// visualization job against an already-ingested one, tail a job's progress
// stream, and list the built-in derived-column presets.
package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/nats-io/nats.go"
	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/flightdv/corepipeline/engine/derived"
	"github.com/flightdv/corepipeline/engine/domain"
	"github.com/flightdv/corepipeline/engine/ingest"
	"github.com/flightdv/corepipeline/engine/progress"
	"github.com/flightdv/corepipeline/engine/visualize"
	"github.com/flightdv/corepipeline/pkg/config"
	"github.com/flightdv/corepipeline/pkg/natsutil"
	"github.com/flightdv/corepipeline/pkg/objectstore"
	"github.com/flightdv/corepipeline/pkg/repo"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	red    = color.New(color.FgRed)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
)

func main() {
	color.NoColor = color.NoColor || !isatty.IsTerminal(os.Stdout.Fd())

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "ingest":
		err = runIngest(os.Args[2:])
	case "visualize":
		err = runVisualize(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "presets":
		err = runPresets(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		red.Fprintf(os.Stderr, "fdctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: fdctl <command> [options]

Commands:
  ingest      Upload a raw dataset and enqueue its ingestion job
  visualize   Enqueue a visualization job against ingested data
  status      Tail a job's progress until it reaches a terminal state
  presets     List the built-in derived-column formula presets

Run 'fdctl <command> --help' for command-specific options.
`)
}

func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	project := fs.String("project", "", "project id (required)")
	owner := fs.String("owner", "", "owner id (required)")
	file := fs.String("file", "", "local path to the dataset file (required)")
	family := fs.String("family", string(domain.FamilyOther), "dataset family: cfd|wind|flight|other")
	tag := fs.String("tag", "", "free-form tag for this upload")
	headerStrategy := fs.String("header-strategy", string(domain.HeaderFile), "file|none|custom")
	customHeaders := fs.StringSlice("custom-header", nil, "column name, repeatable (with --header-strategy custom)")
	wait := fs.Bool("wait", false, "tail progress until the job finishes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *project == "" || *owner == "" || *file == "" {
		fs.Usage()
		return fmt.Errorf("--project, --owner and --file are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg, objects, nc, err := connect(ctx)
	if err != nil {
		return err
	}
	defer nc.Close()

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	jobID := uuid.NewString()
	filename := filepath.Base(*file)
	rawKey := objectstore.RawKey(*project, jobID, filename)

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	bar := newBar(info.Size(), "uploading "+filename)
	var reader = f
	cyan.Println("uploading", filename, "->", rawKey)
	if err := objects.Put(ctx, rawKey, progressReader{reader, bar}, info.Size(), contentType); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	finishBar(bar)

	job := domain.IngestionJob{
		ID: jobID, ProjectID: *project, OwnerID: *owner,
		Filename: filename, RawKey: rawKey,
		Family: domain.DatasetFamily(*family), Tag: *tag,
		ContentType: contentType, Size: info.Size(),
		HeaderStrategy: domain.HeaderStrategy(*headerStrategy),
		CustomHeaders:  *customHeaders,
		Status:         domain.StatusStarted,
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	jobs := repo.NewPostgresRepo[domain.IngestionJob, string](pool, "ingestion_jobs",
		func(j domain.IngestionJob) string { return j.ID },
		func(j domain.IngestionJob) string { return j.ProjectID })
	if _, err := jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("create job record: %w", err)
	}

	if err := natsutil.Publish(ctx, nc, ingest.JobSubject, struct {
		JobID   string `json:"job_id"`
		Retries int    `json:"retries"`
	}{JobID: jobID, Retries: 0}); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	green.Println("enqueued ingestion job", jobID)

	if *wait {
		return tail(ctx, nc, jobID)
	}
	return nil
}

func runVisualize(args []string) error {
	fs := flag.NewFlagSet("visualize", flag.ExitOnError)
	project := fs.String("project", "", "project id (required)")
	chart := fs.String("chart", string(domain.ChartScatter), "chart type")
	sourceJob := fs.String("source-job", "", "ingestion job id the series reads from (required)")
	x := fs.String("x", "", "x axis column (required)")
	y := fs.String("y", "", "y axis column (required)")
	z := fs.String("z", "", "z axis column (for 3d/contour/surface charts)")
	label := fs.String("label", "", "series label")
	xLog := fs.Bool("x-log", false, "use log scale on x")
	yLog := fs.Bool("y-log", false, "use log scale on y")
	preset := fs.String("derived-preset", "", "apply a built-in derived-column preset (see 'fdctl presets')")
	wait := fs.Bool("wait", false, "tail progress until the job finishes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *project == "" || *sourceJob == "" || *x == "" || *y == "" {
		fs.Usage()
		return fmt.Errorf("--project, --source-job, --x and --y are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, _, nc, err := connect(ctx)
	if err != nil {
		return err
	}
	defer nc.Close()

	var derivedSpecs []domain.DerivedSpec
	if *preset != "" {
		p, ok := derived.PresetByName(*preset)
		if !ok {
			return fmt.Errorf("unknown preset %q (see 'fdctl presets')", *preset)
		}
		derivedSpecs = append(derivedSpecs, p.AsDerivedSpec(""))
	}

	xScale, yScale := domain.ScaleLinear, domain.ScaleLinear
	if *xLog {
		xScale = domain.ScaleLog
	}
	if *yLog {
		yScale = domain.ScaleLog
	}

	vizID := uuid.NewString()
	job := domain.VisualizationJob{
		ID: vizID, ProjectID: *project,
		Source: domain.SourceTabular, ChartType: domain.ChartType(*chart),
		Series: []domain.Series{{
			SourceJobID: *sourceJob, XAxis: *x, YAxis: *y, ZAxis: *z,
			Label: *label, XScale: xScale, YScale: yScale, Derived: derivedSpecs,
		}},
		Status: domain.StatusStarted,
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	jobs := repo.NewPostgresRepo[domain.VisualizationJob, string](pool, "visualizations",
		func(j domain.VisualizationJob) string { return j.ID },
		func(j domain.VisualizationJob) string { return j.ProjectID })
	if _, err := jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("create job record: %w", err)
	}

	if err := natsutil.Publish(ctx, nc, visualize.JobSubject, struct {
		VizID   string `json:"viz_id"`
		Retries int    `json:"retries"`
	}{VizID: vizID, Retries: 0}); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	green.Println("enqueued visualization job", vizID)

	if *wait {
		return tail(ctx, nc, vizID)
	}
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jobID := fs.String("job", "", "job id to tail (required)")
	timeout := fs.Duration("timeout", 5*time.Minute, "how long to wait for a terminal status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jobID == "" {
		fs.Usage()
		return fmt.Errorf("--job is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	_, _, nc, err := connect(ctx)
	if err != nil {
		return err
	}
	defer nc.Close()

	return tail(ctx, nc, *jobID)
}

func runPresets(args []string) error {
	fs := flag.NewFlagSet("presets", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, p := range derived.Catalog {
		cyan.Printf("%-28s", p.Name)
		fmt.Printf(" %s\n", p.Description)
		fmt.Printf("%-28s %s\n", "", color.New(color.Faint).Sprint(p.Expression))
	}
	return nil
}

// tail subscribes to jobID's progress events and prints each transition
// until Status reaches a terminal state (success or failure).
func tail(ctx context.Context, nc *nats.Conn, jobID string) error {
	prog := progress.NewEventsOnly(nc)

	done := make(chan error, 1)
	sub, err := prog.Subscribe(ctx, jobID, func(ev domain.ProgressEvent) {
		switch ev.Status {
		case domain.StatusFailure:
			red.Printf("[%3d%%] %s: %s\n", ev.Progress, ev.Status, ev.Message)
			done <- fmt.Errorf("job failed: %s", ev.Message)
		case domain.StatusSuccess:
			green.Printf("[%3d%%] %s\n", ev.Progress, ev.Status)
			done <- nil
		default:
			yellow.Printf("[%3d%%] %s %s\n", ev.Progress, ev.Status, ev.Message)
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func connect(ctx context.Context) (*config.Config, *objectstore.Gateway, *nats.Conn, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	objects, err := objectstore.New(ctx, objectstore.Config{
		Endpoint: cfg.S3Endpoint, Region: cfg.S3Region,
		AccessKey: cfg.S3AccessKey, SecretKey: cfg.S3SecretKey,
		Bucket: cfg.S3Bucket, UseSSL: cfg.S3UseSSL,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, objects, nc, nil
}

// progressReader wraps an *os.File so upload progress advances the bar as
// the gateway streams it, without buffering the file in memory.
type progressReader struct {
	f   *os.File
	bar *progressbar.ProgressBar
}

func (r progressReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if n > 0 && r.bar != nil {
		r.bar.Add(n)
	}
	return n, err
}

// newBar returns nil when stderr isn't a TTY, so callers can unconditionally
// pass it to progressReader and Add/Finish become no-ops.
func newBar(total int64, description string) *progressbar.ProgressBar {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*time.Millisecond),
	)
}

func finishBar(b *progressbar.ProgressBar) {
	if b == nil {
		return
	}
	_ = b.Finish()
}
