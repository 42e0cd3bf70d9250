package columnar

import "fmt"

// WindowRow is one row returned from a ranged/paginated window read.
type WindowRow struct {
	X, Y float64
}

// WindowResult is the paginated window response, mirroring the original
// implementation's fetch_data_window (original_source/backend/app/core/data_window.py),
// generalized to the columnar reader's chunked iteration.
type WindowResult struct {
	Rows         []WindowRow
	TotalInWindow int
	Offset       int
	Limit        int
	Start, End   float64
	HasMore      bool
}

// Window scans rd for rows with x in [start,end], paginating with
// offset/limit. The scan still visits every row-group that intersects the
// range (via a RangeFilter pushdown) to compute TotalInWindow, but only
// materializes the requested page in memory.
func Window(rd *Reader, xCol, yCol string, start, end float64, offset, limit int) (*WindowResult, error) {
	if start >= end {
		return nil, fmt.Errorf("columnar: window start must be less than end")
	}
	if offset < 0 {
		return nil, fmt.Errorf("columnar: window offset must be non-negative")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("columnar: window limit must be positive")
	}

	var collected []WindowRow
	total := 0

	err := rd.Chunks([]string{xCol, yCol}, &RangeFilter{Column: xCol, Min: start, Max: end}, func(f *Frame) bool {
		xs := f.Column(xCol)
		ys := f.Column(yCol)
		for i := range xs {
			x, y := xs[i], ys[i]
			if IsNull(x) || IsNull(y) || x < start || x > end {
				continue
			}
			total++
			if total <= offset {
				continue
			}
			if len(collected) < limit {
				collected = append(collected, WindowRow{X: x, Y: y})
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	return &WindowResult{
		Rows:          collected,
		TotalInWindow: total,
		Offset:        offset,
		Limit:         limit,
		Start:         start,
		End:           end,
		HasMore:       total > offset+len(collected),
	}, nil
}
