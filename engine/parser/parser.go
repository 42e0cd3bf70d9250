// Package parser dispatches an ingested file to a format-specific reader
// that yields canonical column frames (spec §4.2). Each format registers
// itself into a package-level map keyed by normalized extension; there is
// no reflection or sniffing beyond the extension and, for wind-tunnel
// files, the dataset family tag.
package parser

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/flightdv/corepipeline/engine/domain"
	"github.com/flightdv/corepipeline/pkg/columnar"
)

// Chunk is one batch of parsed rows plus the numeric stats of this chunk's
// rows alone. Callers write Frame to the columnar writer and fold Stats
// into the job document as chunks arrive.
type Chunk struct {
	Frame *columnar.Frame
	Stats map[string]domain.ColumnStats
}

// Source is what a Parser reads from: a seekable-or-not byte stream plus
// the metadata needed to pick a parsing strategy (header mode, sheet
// name, line range, dataset family).
type Source struct {
	Reader         io.Reader
	Filename       string
	HeaderStrategy domain.HeaderStrategy
	CustomHeaders  []string
	SheetName      string
	ParseRange     *domain.LineRange
	Family         domain.DatasetFamily
}

// Parser streams a Source, invoking emit once per chunk. Implementations
// must call emit with chunks in order and stop (returning emit's error,
// if non-nil) as soon as emit signals it no longer wants more data.
type Parser interface {
	Parse(ctx context.Context, src Source, emit func(Chunk) error) error
}

var registry = map[string]Parser{}

// Register associates a Parser with a normalized, dot-prefixed extension
// (e.g. ".csv"). Called from each format file's package init.
func Register(ext string, p Parser) {
	registry[normalizeExt(ext)] = p
}

// Lookup resolves the Parser for a filename by its extension, honoring
// the wind-tunnel TXT override when family is FamilyWind.
func Lookup(filename string, family domain.DatasetFamily) (Parser, error) {
	ext := normalizeExt(extOf(filename))
	if ext == ".txt" && family == domain.FamilyWind {
		if p, ok := registry[".windtxt"]; ok {
			return p, nil
		}
	}
	p, ok := registry[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, ext)
	}
	return p, nil
}

func extOf(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return ""
	}
	return filename[i:]
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimSpace(ext))
}

// mergeStats folds one column's sample into the running {min,max}. NaN
// values are ignored; the first non-NaN value seen for a column starts its
// entry as {v, v}.
func mergeStats(stats map[string]domain.ColumnStats, col string, v float64) {
	if columnar.IsNull(v) {
		return
	}
	s, ok := stats[col]
	if !ok {
		stats[col] = domain.ColumnStats{Min: v, Max: v}
		return
	}
	if v < s.Min {
		s.Min = v
	}
	if v > s.Max {
		s.Max = v
	}
	stats[col] = s
}

// statsForFrame computes per-column {min,max} over a single frame's float
// columns, ignoring NaN. String columns are not stat'd.
func statsForFrame(f *columnar.Frame) map[string]domain.ColumnStats {
	stats := make(map[string]domain.ColumnStats, len(f.Schema.Names))
	for _, name := range f.Schema.Names {
		col, ok := f.Floats[name]
		if !ok {
			continue
		}
		for _, v := range col {
			mergeStats(stats, name, v)
		}
	}
	return stats
}

// mergeInto merges src's {min,max} entries into dst in place.
func mergeInto(dst, src map[string]domain.ColumnStats) {
	for name, s := range src {
		cur, ok := dst[name]
		if !ok {
			dst[name] = s
			continue
		}
		if s.Min < cur.Min {
			cur.Min = s.Min
		}
		if s.Max > cur.Max {
			cur.Max = s.Max
		}
		dst[name] = cur
	}
}

// synthesizeHeaders builds column_1..column_N names.
func synthesizeHeaders(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("column_%d", i+1)
	}
	return names
}
