// Package columnar implements the canonical on-disk artifact format used by
// the ingestion and visualization pipelines: a row-group compressed,
// schema-typed columnar table (spec §6, "canonical columnar artifact").
//
// No parquet/arrow library appears anywhere in the retrieved example
// corpus, so this is a small stdlib-only format rather than a genuine
// parquet writer: gzip-compressed row groups with per-group per-column
// min/max stats, which is enough to give the zoom query surface real
// range-filter pushdown on the X column without pulling in a dependency
// the corpus never reaches for.
package columnar

// ColumnType is the on-disk type tag for one column.
type ColumnType byte

const (
	ColumnFloat64 ColumnType = iota
	ColumnString
)

// RowGroupSize is the number of rows buffered per compressed row group.
const RowGroupSize = 200_000

// Schema describes the ordered, typed column list of a Frame.
type Schema struct {
	Names []string
	Types []ColumnType
}

// IndexOf returns the position of name in the schema, or -1.
func (s Schema) IndexOf(name string) int {
	for i, n := range s.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Frame is an in-memory columnar table: one slice per column, float64 (NaN
// for null) or string ("" for null).
type Frame struct {
	Schema  Schema
	Floats  map[string][]float64
	Strings map[string][]string
	Rows    int
}

// NewFrame builds an empty frame over the given typed schema.
func NewFrame(schema Schema) *Frame {
	f := &Frame{Schema: schema, Floats: map[string][]float64{}, Strings: map[string][]string{}}
	for i, name := range schema.Names {
		if schema.Types[i] == ColumnFloat64 {
			f.Floats[name] = nil
		} else {
			f.Strings[name] = nil
		}
	}
	return f
}

// Column returns the named column as float64, coercing strings at read time
// (non-numeric tokens become NaN). Missing columns return nil.
func (f *Frame) Column(name string) []float64 {
	if v, ok := f.Floats[name]; ok {
		return v
	}
	if v, ok := f.Strings[name]; ok {
		out := make([]float64, len(v))
		for i, s := range v {
			out[i] = coerceFloat(s)
		}
		return out
	}
	return nil
}
