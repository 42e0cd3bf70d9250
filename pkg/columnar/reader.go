package columnar

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

var errBadMagic = errors.New("columnar: bad magic")

// Reader supports batched, column-projected, range-filtered iteration over
// a columnar artifact written by Writer.
type Reader struct {
	r      io.Reader
	Schema Schema
}

// OpenReader reads the schema header and returns a Reader positioned at the
// first row group.
func OpenReader(r io.Reader) (*Reader, error) {
	buf := make([]byte, len(magic))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	if string(buf) != magic {
		return nil, errBadMagic
	}
	var nCols uint32
	if err := binary.Read(r, binary.LittleEndian, &nCols); err != nil {
		return nil, err
	}
	schema := Schema{}
	for i := uint32(0); i < nCols; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		var t byte
		if err := binary.Read(r, binary.LittleEndian, &t); err != nil {
			return nil, err
		}
		schema.Names = append(schema.Names, name)
		schema.Types = append(schema.Types, ColumnType(t))
	}
	return &Reader{r: r, Schema: schema}, nil
}

// RangeFilter pushes an inclusive [Min,Max] bound on a column down to the
// row-group level: a group entirely outside the bound is not yielded, and
// the payloads stored after the filter column that the projection does not
// request are read but not decompressed.
type RangeFilter struct {
	Column   string
	Min, Max float64
}

// Chunks iterates compressed row groups, yielding a projected Frame per
// group via fn. Iteration stops early if fn returns false. When filter is
// non-nil, groups whose recorded [min,max] for filter.Column don't
// intersect [filter.Min, filter.Max] are skipped entirely.
func (rd *Reader) Chunks(columns []string, filter *RangeFilter, fn func(*Frame) bool) error {
	want := map[string]bool{}
	for _, c := range columns {
		want[c] = true
	}
	filterIdx := -1
	if filter != nil {
		filterIdx = rd.Schema.IndexOf(filter.Column)
	}

	for {
		var n uint32
		if err := binary.Read(rd.r, binary.LittleEndian, &n); err != nil {
			return err
		}
		if n == 0 {
			return nil // footer sentinel
		}

		groupMin, groupMax := math.Inf(1), math.Inf(-1)
		// First pass: read per-column payloads (must consume the stream in
		// order regardless of projection), deciding after reading the
		// filter column's stats whether to skip decompression of the rest.
		raws := make([][]byte, len(rd.Schema.Names))
		skip := false
		for i, name := range rd.Schema.Names {
			switch rd.Schema.Types[i] {
			case ColumnFloat64:
				var lo, hi float64
				if err := binary.Read(rd.r, binary.LittleEndian, &lo); err != nil {
					return err
				}
				if err := binary.Read(rd.r, binary.LittleEndian, &hi); err != nil {
					return err
				}
				if i == filterIdx {
					groupMin, groupMax = lo, hi
					if !rangesIntersect(lo, hi, filter.Min, filter.Max) {
						skip = true
					}
				}
				raw, err := readCompressed(rd.r, skip && !want[name] && i != filterIdx)
				if err != nil {
					return err
				}
				raws[i] = raw
			case ColumnString:
				raw, err := readCompressed(rd.r, skip && !want[name])
				if err != nil {
					return err
				}
				raws[i] = raw
			}
		}
		_ = groupMin
		_ = groupMax
		if skip {
			continue
		}

		frame := NewFrame(Schema{})
		rows := int(n)
		for i, name := range rd.Schema.Names {
			if !want[name] && len(columns) > 0 {
				continue
			}
			frame.Schema.Names = append(frame.Schema.Names, name)
			frame.Schema.Types = append(frame.Schema.Types, rd.Schema.Types[i])
			switch rd.Schema.Types[i] {
			case ColumnFloat64:
				vals := make([]float64, rows)
				for j := 0; j < rows; j++ {
					bits := binary.LittleEndian.Uint64(raws[i][j*8:])
					vals[j] = math.Float64frombits(bits)
				}
				frame.Floats[name] = vals
			case ColumnString:
				vals, err := decodeStrings(raws[i], rows)
				if err != nil {
					return err
				}
				frame.Strings[name] = vals
			}
		}
		frame.Rows = rows

		if !fn(frame) {
			return nil
		}
	}
}

func rangesIntersect(lo, hi, min, max float64) bool {
	if math.IsInf(lo, 1) || math.IsInf(hi, -1) {
		return false // empty/all-null group
	}
	return hi >= min && lo <= max
}

func readCompressed(r io.Reader, skipBody bool) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	comp := make([]byte, n)
	if _, err := io.ReadFull(r, comp); err != nil {
		return nil, err
	}
	if skipBody {
		return nil, nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(comp))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

func decodeStrings(raw []byte, n int) ([]string, error) {
	out := make([]string, n)
	r := bytes.NewReader(raw)
	for i := 0; i < n; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("columnar: decode string %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// ReadAll materializes the full artifact (all row groups) with the given
// column projection, ignoring any range filter. Intended for small
// artifacts (tiles, overviews), not raw ingestion-sized tables.
func (rd *Reader) ReadAll(columns []string) (*Frame, error) {
	var out *Frame
	err := rd.Chunks(columns, nil, func(f *Frame) bool {
		if out == nil {
			out = f
			return true
		}
		for _, name := range f.Schema.Names {
			if vs, ok := f.Floats[name]; ok {
				out.Floats[name] = append(out.Floats[name], vs...)
			} else if vs, ok := f.Strings[name]; ok {
				out.Strings[name] = append(out.Strings[name], vs...)
			}
		}
		out.Rows += f.Rows
		return true
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if out == nil {
		out = NewFrame(rd.Schema)
	}
	return out, nil
}
