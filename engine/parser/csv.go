package parser

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/flightdv/corepipeline/engine/domain"
	"github.com/flightdv/corepipeline/pkg/columnar"
)

func init() {
	Register(".csv", csvParser{})
}

// csvChunkRows is the fixed row budget per chunk (spec §4.2).
const csvChunkRows = 200_000

type csvParser struct{}

func (csvParser) Parse(ctx context.Context, src Source, emit func(Chunk) error) error {
	r := csv.NewReader(src.Reader)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	var schema *columnar.Schema
	first := true

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := make([][]string, 0, csvChunkRows)
		for len(batch) < csvChunkRows {
			row, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("%w: csv: %v", domain.ErrReadError, err)
			}
			if first && schema == nil {
				names, dataRow, herr := resolveHeader(src, row)
				if herr != nil {
					return herr
				}
				schema = schemaOf(names)
				first = false
				if dataRow == nil {
					continue // row consumed as the header line, no data yet
				}
				row = dataRow
			}
			cp := append([]string(nil), row...)
			batch = append(batch, cp)
		}
		if len(batch) == 0 {
			break
		}
		if schema == nil {
			// none/custom header modes never consume the first row as a
			// header; resolve against the first data row seen.
			names, _, herr := resolveHeader(src, batch[0])
			if herr != nil {
				return herr
			}
			schema = schemaOf(names)
		}
		frame := frameFromRows(*schema, batch)
		if err := emit(Chunk{Frame: frame, Stats: statsForFrame(frame)}); err != nil {
			return err
		}
		if len(batch) < csvChunkRows {
			break
		}
	}
	return nil
}

// resolveHeader applies the job's header strategy to the first row read.
// For HeaderFile it returns (names, nil) consuming row as the header; for
// HeaderNone/HeaderCustom it returns (names, row) since row is data.
func resolveHeader(src Source, row []string) (names []string, dataRow []string, err error) {
	switch src.HeaderStrategy {
	case domain.HeaderFile:
		return append([]string(nil), row...), nil, nil
	case domain.HeaderCustom:
		if len(src.CustomHeaders) != len(row) {
			return nil, nil, domain.NewJobError(domain.ErrInvalidHeaderSpec,
				"custom headers have %d names but rows have %d columns", len(src.CustomHeaders), len(row))
		}
		return append([]string(nil), src.CustomHeaders...), row, nil
	default: // HeaderNone, or unset
		return synthesizeHeaders(len(row)), row, nil
	}
}

func schemaOf(names []string) *columnar.Schema {
	types := make([]columnar.ColumnType, len(names))
	for i := range types {
		types[i] = columnar.ColumnFloat64
	}
	return &columnar.Schema{Names: names, Types: types}
}

// frameFromRows builds a Frame from string rows, coercing every cell to
// float64 (non-numeric cells become NaN, per §4.2's numeric-stats rule).
func frameFromRows(schema columnar.Schema, rows [][]string) *columnar.Frame {
	f := columnar.NewFrame(schema)
	cols := make([][]float64, len(schema.Names))
	for i := range cols {
		cols[i] = make([]float64, 0, len(rows))
	}
	for _, row := range rows {
		for i, name := range schema.Names {
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			cols[i] = append(cols[i], columnar.CoerceFloat(cell))
			_ = name
		}
	}
	for i, name := range schema.Names {
		f.Floats[name] = cols[i]
	}
	f.Rows = len(rows)
	return f
}
