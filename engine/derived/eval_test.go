package derived

import (
	"errors"
	"math"
	"testing"

	"github.com/flightdv/corepipeline/engine/domain"
)

func TestNormalizeAndEvaluate(t *testing.T) {
	specs, err := Normalize([]string{"rho", "v"}, []domain.DerivedSpec{
		{Name: "q", Expression: "0.5 * [rho] * [v] * [v]"},
		{Name: "q2", Expression: "[q] + 1"},
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}

	env := Environment{
		"rho": {1.225, 1.0},
		"v":   {10, 20},
	}
	if err := Evaluate(env, specs); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	want := 0.5 * 1.225 * 10 * 10
	if math.Abs(env["q"][0]-want) > 1e-9 {
		t.Fatalf("q[0] = %v, want %v", env["q"][0], want)
	}
	if math.Abs(env["q2"][0]-(want+1)) > 1e-9 {
		t.Fatalf("q2[0] = %v, want %v", env["q2"][0], want+1)
	}
}

func TestNormalizeRejectsUnknownColumn(t *testing.T) {
	_, err := Normalize([]string{"rho"}, []domain.DerivedSpec{
		{Name: "q", Expression: "[rho] * [v]"},
	})
	if !errors.Is(err, domain.ErrColumnNotFound) {
		t.Fatalf("expected ErrColumnNotFound, got %v", err)
	}
}

func TestNormalizeRejectsForwardReference(t *testing.T) {
	_, err := Normalize([]string{"rho", "v"}, []domain.DerivedSpec{
		{Name: "a", Expression: "[b] + 1"},
		{Name: "b", Expression: "[rho]"},
	})
	if !errors.Is(err, domain.ErrForwardReference) {
		t.Fatalf("expected ErrForwardReference, got %v", err)
	}
}

func TestNormalizeRejectsDuplicateAndBaseCollision(t *testing.T) {
	_, err := Normalize([]string{"rho"}, []domain.DerivedSpec{
		{Name: "rho", Expression: "[rho] * 2"},
	})
	if !errors.Is(err, domain.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName for base collision, got %v", err)
	}

	_, err = Normalize([]string{"rho"}, []domain.DerivedSpec{
		{Name: "q", Expression: "[rho]"},
		{Name: "q", Expression: "[rho] * 2"},
	})
	if !errors.Is(err, domain.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName for duplicate derived name, got %v", err)
	}
}

func TestNormalizeSkipsBlankEntries(t *testing.T) {
	specs, err := Normalize([]string{"rho"}, []domain.DerivedSpec{
		{Name: "  ", Expression: "  "},
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(specs) != 0 {
		t.Fatalf("expected 0 specs, got %d", len(specs))
	}
}

func TestEvaluateDivisionByZeroYieldsNaN(t *testing.T) {
	specs, err := Normalize([]string{"a", "b"}, []domain.DerivedSpec{
		{Name: "r", Expression: "[a] / [b]"},
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	env := Environment{"a": {1}, "b": {0}}
	if err := Evaluate(env, specs); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !math.IsNaN(env["r"][0]) {
		t.Fatalf("r[0] = %v, want NaN", env["r"][0])
	}
}
