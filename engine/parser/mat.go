package parser

import (
	"context"
	"io"

	"github.com/flightdv/corepipeline/engine/domain"
	"github.com/flightdv/corepipeline/engine/matslice"
	"github.com/flightdv/corepipeline/pkg/columnar"
)

func init() {
	Register(".mat", matParser{})
}

type matParser struct{}

// Parse indexes the MAT file and, when the ingestion job names a target
// variable via src Source's implicit MAT config (threaded in through the
// coordinator, not through Source itself since MAT jobs skip the tabular
// dispatch for everything except the "produce one numeric slice" step),
// emits a single chunk holding the flattened X value table (spec §4.2,
// "produce a single numeric slice (X value table) suitable for the same
// downstream artifact").
//
// The ingestion coordinator calls matslice.Index directly for the job's
// mat_index field; this Parser implementation exists so MAT still
// satisfies the same Parser interface as the tabular formats when a
// caller wants the default single-variable slice as a flat frame.
func (matParser) Parse(ctx context.Context, src Source, emit func(Chunk) error) error {
	raw, err := io.ReadAll(src.Reader)
	if err != nil {
		return err
	}
	idx, err := matslice.Index(raw)
	if err != nil {
		return err
	}
	if len(idx) == 0 {
		return domain.NewJobError(domain.ErrEmptySelection, "MAT file has no numeric arrays")
	}
	// Default slice: flatten the first numeric array into a single
	// "value" column so the file is at least browsable before a caller
	// issues an explicit matslice.Slice request with real axis mapping.
	name := idx[0].Name
	values, err := matslice.FlattenNumeric(raw, name)
	if err != nil {
		return err
	}
	schema := columnar.Schema{Names: []string{name}, Types: []columnar.ColumnType{columnar.ColumnFloat64}}
	frame := columnar.NewFrame(schema)
	frame.Floats[name] = values
	frame.Rows = len(values)
	return emit(Chunk{Frame: frame, Stats: statsForFrame(frame)})
}
