package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/flightdv/corepipeline/engine/domain"
)

func init() {
	Register(".xlsx", excelParser{})
	Register(".xls", excelParser{})
}

type excelParser struct{}

// Parse reads the selected sheet (or sheet index 0) in a single shot, drops
// empty/unnamed-and-empty columns, applies the header mode, and emits the
// whole sheet as one chunk (spec §4.2 "single-shot parse").
func (excelParser) Parse(ctx context.Context, src Source, emit func(Chunk) error) error {
	f, err := excelize.OpenReader(src.Reader)
	if err != nil {
		return fmt.Errorf("%w: excel: %v", domain.ErrReadError, err)
	}
	defer f.Close()

	sheet := src.SheetName
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return fmt.Errorf("%w: excel: no sheets", domain.ErrReadError)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("%w: excel: %v", domain.ErrReadError, err)
	}
	if len(rows) == 0 {
		return domain.NewJobError(domain.ErrEmptySelection, "sheet %q has no rows", sheet)
	}

	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	rows = padRows(rows, width)

	headerRow := rows[0]
	dataRows := rows[1:]
	keep := dropEmptyColumns(headerRow, dataRows)

	headerRow = project(headerRow, keep)
	dataRows = projectRows(dataRows, keep)

	names, body, herr := resolveHeader(src, headerRow)
	if herr != nil {
		return herr
	}
	if body != nil {
		dataRows = append([][]string{body}, dataRows...)
	}

	schema := schemaOf(names)
	frame := frameFromRows(*schema, dataRows)
	return emit(Chunk{Frame: frame, Stats: statsForFrame(frame)})
}

func padRows(rows [][]string, width int) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		if len(r) == width {
			out[i] = r
			continue
		}
		padded := make([]string, width)
		copy(padded, r)
		out[i] = padded
	}
	return out
}

// dropEmptyColumns returns the column indices to keep: a column is dropped
// if its header is empty or starts with "unnamed" AND every data cell is
// empty/whitespace, or if it is fully empty regardless of header.
func dropEmptyColumns(header []string, data [][]string) []int {
	n := len(header)
	keep := make([]int, 0, n)
	for col := 0; col < n; col++ {
		h := strings.TrimSpace(header[col])
		unnamed := h == "" || strings.HasPrefix(strings.ToLower(h), "unnamed")
		allEmpty := true
		for _, row := range data {
			if col < len(row) && strings.TrimSpace(row[col]) != "" {
				allEmpty = false
				break
			}
		}
		if allEmpty && unnamed {
			continue
		}
		if allEmpty && h == "" {
			continue
		}
		keep = append(keep, col)
	}
	return keep
}

func project(row []string, keep []int) []string {
	out := make([]string, len(keep))
	for i, idx := range keep {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out
}

func projectRows(rows [][]string, keep []int) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = project(r, keep)
	}
	return out
}
