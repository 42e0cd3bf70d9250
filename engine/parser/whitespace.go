package parser

import (
	"bufio"
	"context"
	"io"
	"regexp"
	"strings"

	"github.com/flightdv/corepipeline/engine/domain"
)

func init() {
	Register(".txt", whitespaceParser{})
	Register(".dat", whitespaceParser{})
	Register(".c", whitespaceParser{})
}

var delimiterCandidates = []string{",", "\t", ";", "|"}

var numericToken = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

type whitespaceParser struct{}

// Parse reads a 1-based inclusive [start_line, end_line] range from a
// whitespace/delimited text file, infers the delimiter from the sample,
// decides header vs synthesized columns, and pads/truncates rows to the
// widest row's arity (spec §4.2).
func (whitespaceParser) Parse(ctx context.Context, src Source, emit func(Chunk) error) error {
	lines, err := selectLines(src.Reader, src.ParseRange)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return domain.NewJobError(domain.ErrEmptySelection, "line range produced no lines")
	}

	delim := inferDelimiter(lines)
	tokenized := make([][]string, len(lines))
	width := 0
	for i, line := range lines {
		toks := splitLine(strings.TrimLeft(line, " \t\r\n,;|."), delim)
		tokenized[i] = toks
		if len(toks) > width {
			width = len(toks)
		}
	}

	isHeader := rowHasNonNumeric(tokenized[0])
	var names []string
	var dataRows [][]string
	if isHeader {
		names = padTruncate(tokenized[0], width)
		dataRows = tokenized[1:]
	} else {
		names = synthesizeHeaders(width)
		dataRows = tokenized
	}
	for i, row := range dataRows {
		dataRows[i] = padTruncate(row, width)
	}

	names, dataRows, err = applyHeaderStrategy(src, names, dataRows)
	if err != nil {
		return err
	}

	schema := schemaOf(names)
	frame := frameFromRows(*schema, dataRows)
	return emit(Chunk{Frame: frame, Stats: statsForFrame(frame)})
}

// applyHeaderStrategy lets an explicit job-level header strategy override
// the file-inferred header when the job was configured for HeaderNone or
// HeaderCustom.
func applyHeaderStrategy(src Source, inferredNames []string, rows [][]string) ([]string, [][]string, error) {
	switch src.HeaderStrategy {
	case domain.HeaderCustom:
		if len(src.CustomHeaders) != len(inferredNames) {
			return nil, nil, domain.NewJobError(domain.ErrInvalidHeaderSpec,
				"custom headers have %d names but data has %d columns", len(src.CustomHeaders), len(inferredNames))
		}
		return src.CustomHeaders, rows, nil
	case domain.HeaderNone:
		return synthesizeHeaders(len(inferredNames)), rows, nil
	default:
		return inferredNames, rows, nil
	}
}

func selectLines(r io.Reader, rng *domain.LineRange) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var out []string
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if rng != nil {
			if lineNo < rng.StartLine {
				continue
			}
			if lineNo > rng.EndLine {
				break
			}
		}
		out = append(out, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func inferDelimiter(lines []string) string {
	for _, d := range delimiterCandidates {
		hits := 0
		for _, l := range lines {
			if strings.Contains(l, d) {
				hits++
			}
		}
		if hits > len(lines)/2 {
			return d
		}
	}
	return ""
}

func splitLine(line, delim string) []string {
	if delim == "" {
		return strings.Fields(line)
	}
	parts := strings.Split(line, delim)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func rowHasNonNumeric(tokens []string) bool {
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if !numericToken.MatchString(t) {
			return true
		}
	}
	return false
}

func padTruncate(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}
