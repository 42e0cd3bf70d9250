package columnar

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"math"
)

const magic = "FDCOL1\n"

// Writer streams a Frame to an io.Writer as a sequence of compressed row
// groups, buffering at most RowGroupSize rows in memory at a time.
type Writer struct {
	w        io.Writer
	schema   Schema
	buf      *Frame
	groups   []groupLocation // not populated; the stream ends with a zero-row footer and no trailer
	rowsSeen int64
	headerWritten bool
}

type groupLocation struct {
	rows int
	// stats[col] = {min,max}; only meaningful for float columns
	min, max map[string]float64
}

// NewWriter creates a Writer for the given schema.
func NewWriter(w io.Writer, schema Schema) *Writer {
	return &Writer{w: w, schema: schema, buf: NewFrame(schema)}
}

// WriteBatch appends a chunk of rows (same schema) to the artifact,
// flushing full row groups as they fill.
func (w *Writer) WriteBatch(batch *Frame) error {
	if !w.headerWritten {
		if err := w.writeHeader(); err != nil {
			return err
		}
		w.headerWritten = true
	}
	for _, name := range w.schema.Names {
		if vs, ok := batch.Floats[name]; ok {
			w.buf.Floats[name] = append(w.buf.Floats[name], vs...)
		} else if vs, ok := batch.Strings[name]; ok {
			w.buf.Strings[name] = append(w.buf.Strings[name], vs...)
		}
	}
	w.buf.Rows += batch.Rows
	w.rowsSeen += int64(batch.Rows)

	for w.buf.Rows >= RowGroupSize {
		if err := w.flushGroup(RowGroupSize); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes any remaining buffered rows and the trailing row-count footer.
func (w *Writer) Close() error {
	if !w.headerWritten {
		if err := w.writeHeader(); err != nil {
			return err
		}
	}
	if w.buf.Rows > 0 {
		if err := w.flushGroup(w.buf.Rows); err != nil {
			return err
		}
	}
	// Footer: a sentinel zero-row group count terminates the stream.
	return binary.Write(w.w, binary.LittleEndian, uint32(0))
}

func (w *Writer) writeHeader() error {
	if _, err := io.WriteString(w.w, magic); err != nil {
		return err
	}
	if err := binary.Write(w.w, binary.LittleEndian, uint32(len(w.schema.Names))); err != nil {
		return err
	}
	for i, name := range w.schema.Names {
		if err := writeString(w.w, name); err != nil {
			return err
		}
		if err := binary.Write(w.w, binary.LittleEndian, byte(w.schema.Types[i])); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) flushGroup(n int) error {
	if n > w.buf.Rows {
		n = w.buf.Rows
	}
	if err := binary.Write(w.w, binary.LittleEndian, uint32(n)); err != nil {
		return err
	}
	for i, name := range w.schema.Names {
		switch w.schema.Types[i] {
		case ColumnFloat64:
			col := w.buf.Floats[name][:n]
			lo, hi := math.Inf(1), math.Inf(-1)
			raw := make([]byte, n*8)
			for j, v := range col {
				binary.LittleEndian.PutUint64(raw[j*8:], math.Float64bits(v))
				if !math.IsNaN(v) {
					if v < lo {
						lo = v
					}
					if v > hi {
						hi = v
					}
				}
			}
			if err := binary.Write(w.w, binary.LittleEndian, lo); err != nil {
				return err
			}
			if err := binary.Write(w.w, binary.LittleEndian, hi); err != nil {
				return err
			}
			if err := writeCompressed(w.w, raw); err != nil {
				return err
			}
		case ColumnString:
			col := w.buf.Strings[name][:n]
			var raw bytes.Buffer
			for _, s := range col {
				writeString(&raw, s)
			}
			if err := writeCompressed(w.w, raw.Bytes()); err != nil {
				return err
			}
		}
	}
	w.buf = shiftFrame(w.buf, w.schema, n)
	return nil
}

func shiftFrame(f *Frame, schema Schema, n int) *Frame {
	out := NewFrame(schema)
	for i, name := range schema.Names {
		if schema.Types[i] == ColumnFloat64 {
			out.Floats[name] = append([]float64{}, f.Floats[name][n:]...)
		} else {
			out.Strings[name] = append([]string{}, f.Strings[name][n:]...)
		}
	}
	out.Rows = f.Rows - n
	return out
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func writeCompressed(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(buf.Len())); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteFrame is a convenience for writing an entire in-memory Frame in one
// shot (used by tests and small artifacts such as tiles).
func WriteFrame(w io.Writer, f *Frame) error {
	cw := NewWriter(w, f.Schema)
	if err := cw.WriteBatch(f); err != nil {
		return err
	}
	return cw.Close()
}
