package parser

import (
	"bufio"
	"context"
	"regexp"
	"strings"

	"github.com/flightdv/corepipeline/engine/domain"
)

func init() {
	Register(".windtxt", windTunnelParser{})
}

const dynMarker = "%Dyn"

var numberToken = regexp.MustCompile(`[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

type windTunnelParser struct{}

// Parse implements the wind-tunnel TXT format (spec §4.2): skip to the
// %Dyn marker, accumulate comma-split header tokens (starting with the
// marker line itself, '%' stripped) until a line carries a
// numeric token (that line starts the data section), then keep only
// numeric-bearing lines, extracting tokens with a floating point regex and
// aligning each row to header arity.
func (windTunnelParser) Parse(ctx context.Context, src Source, emit func(Chunk) error) error {
	scanner := bufio.NewScanner(src.Reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	foundMarker := false
	inData := false
	var headerTokens []string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()
		if !foundMarker {
			if i := strings.Index(line, dynMarker); i >= 0 {
				foundMarker = true
				headerTokens = append(headerTokens, splitHeaderLine(line[i:])...)
			}
			continue
		}
		if !inData {
			if lineHasNumber(line) {
				inData = true
			} else {
				headerTokens = append(headerTokens, splitHeaderLine(line)...)
				continue
			}
		}
		if lineHasNumber(line) {
			dataLines = append(dataLines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if !foundMarker {
		return domain.NewJobError(domain.ErrEmptySelection, "no %%Dyn marker found")
	}
	if len(headerTokens) == 0 {
		return domain.NewJobError(domain.ErrEmptySelection, "no header tokens found before data section")
	}

	width := len(headerTokens)
	rows := make([][]string, 0, len(dataLines))
	for _, line := range dataLines {
		toks := numberToken.FindAllString(line, -1)
		rows = append(rows, padTruncate(toks, width))
	}

	schema := schemaOf(headerTokens)
	frame := frameFromRows(*schema, rows)
	return emit(Chunk{Frame: frame, Stats: statsForFrame(frame)})
}

func lineHasNumber(line string) bool {
	return numberToken.MatchString(line)
}

func splitHeaderLine(line string) []string {
	parts := strings.Split(line, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p), "%"))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
