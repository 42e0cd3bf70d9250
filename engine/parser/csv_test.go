package parser

import (
	"context"
	"strings"
	"testing"

	"github.com/flightdv/corepipeline/engine/domain"
)

func TestCSVParserHeaderFile(t *testing.T) {
	src := Source{
		Reader:         strings.NewReader("x,y\n1,2\n3,4\n"),
		Filename:       "data.csv",
		HeaderStrategy: domain.HeaderFile,
	}

	var chunks []Chunk
	if err := (csvParser{}).Parse(context.Background(), src, func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	f := chunks[0].Frame
	if f.Rows != 2 {
		t.Fatalf("rows = %d, want 2", f.Rows)
	}
	if got := f.Column("x"); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("x column = %v", got)
	}
	if got := f.Column("y"); len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Fatalf("y column = %v", got)
	}
}

func TestCSVParserHeaderNone(t *testing.T) {
	src := Source{
		Reader:         strings.NewReader("1,2\n3,4\n"),
		Filename:       "data.csv",
		HeaderStrategy: domain.HeaderNone,
	}

	var chunks []Chunk
	if err := (csvParser{}).Parse(context.Background(), src, func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Frame.Rows != 2 {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}

func TestCSVParserHeaderCustomMismatchErrors(t *testing.T) {
	src := Source{
		Reader:         strings.NewReader("1,2,3\n"),
		Filename:       "data.csv",
		HeaderStrategy: domain.HeaderCustom,
		CustomHeaders:  []string{"a", "b"},
	}

	err := (csvParser{}).Parse(context.Background(), src, func(c Chunk) error { return nil })
	if err == nil {
		t.Fatal("expected error for custom header length mismatch")
	}
}

func TestLookupHonorsWindTunnelTxtOverride(t *testing.T) {
	p, err := Lookup("run.txt", domain.FamilyWind)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, ok := p.(csvParser); ok {
		t.Fatal("expected the wind-tunnel txt parser, not the csv parser")
	}
}

func TestLookupUnsupportedExtension(t *testing.T) {
	_, err := Lookup("data.zzz", domain.FamilyOther)
	if err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}
