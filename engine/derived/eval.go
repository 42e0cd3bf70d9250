package derived

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/flightdv/corepipeline/engine/domain"
)

// Spec is the normalized {name, expression, *parsed AST} triple used once
// normalization has accepted a DerivedSpec list.
type Spec struct {
	Name       string
	Expression string
	AST        *Node
}

// Normalize validates a raw derived-column list against base columns per
// spec §4.3: trims name/expression, drops empty entries, rejects partial
// entries, duplicate names, names colliding with base columns,
// expressions over MaxExpressionLen, forward references, and unknown
// column refs. Returns specs in original order with their AST parsed.
func Normalize(baseColumns []string, raw []domain.DerivedSpec) ([]Spec, error) {
	baseSet := make(map[string]bool, len(baseColumns))
	for _, c := range baseColumns {
		baseSet[c] = true
	}

	var trimmed []domain.DerivedSpec
	for _, d := range raw {
		name := trimSpace(d.Name)
		expr := trimSpace(d.Expression)
		if name == "" && expr == "" {
			continue
		}
		if name == "" || expr == "" {
			return nil, domain.NewJobError(domain.ErrInvalidHeaderSpec,
				"derived column entry has empty name or expression")
		}
		trimmed = append(trimmed, domain.DerivedSpec{Name: name, Expression: expr})
	}

	seen := map[string]bool{}
	for _, d := range trimmed {
		if seen[d.Name] {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateName, d.Name)
		}
		seen[d.Name] = true
		if baseSet[d.Name] {
			return nil, fmt.Errorf("%w: %s collides with a base column", domain.ErrDuplicateName, d.Name)
		}
		if len(d.Expression) > MaxExpressionLen {
			return nil, fmt.Errorf("%w: %s", domain.ErrExpressionTooLong, d.Name)
		}
	}

	byName := map[string]domain.DerivedSpec{}
	for _, d := range trimmed {
		byName[d.Name] = d
	}

	available := map[string]bool{}
	for c := range baseSet {
		available[c] = true
	}
	specs := make([]Spec, 0, len(trimmed))
	for _, d := range trimmed {
		ast, err := Parse(d.Expression)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", d.Name, err)
		}
		for _, ref := range Refs(d.Expression) {
			if !available[ref] {
				if _, isDerived := byName[ref]; isDerived {
					return nil, fmt.Errorf("%w: %s references [%s] before it is defined", domain.ErrForwardReference, d.Name, ref)
				}
				return nil, fmt.Errorf("%w: %s", domain.ErrColumnNotFound, ref)
			}
		}
		available[d.Name] = true
		specs = append(specs, Spec{Name: d.Name, Expression: d.Expression, AST: ast})
	}
	return specs, nil
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

// Environment maps column names (base and derived) to numeric series for
// one chunk's evaluation.
type Environment map[string][]float64

// Evaluate runs specs in order against env, mutating env in place so later
// specs can reference earlier derived columns (spec §4.3 evaluation
// contract). Each result's ±Inf values are replaced with NaN (null).
func Evaluate(env Environment, specs []Spec) error {
	for _, spec := range specs {
		result, err := evalNodeSized(spec.AST, env)
		if err != nil {
			return fmt.Errorf("evaluate %s: %w", spec.Name, err)
		}
		replaceInfWithNaN(result)
		env[spec.Name] = result
	}
	return nil
}

func replaceInfWithNaN(s []float64) {
	for i, v := range s {
		if math.IsInf(v, 0) {
			s[i] = math.NaN()
		}
	}
}

func evalNode(n *Node, env Environment) ([]float64, error) {
	switch n.Kind {
	case KindLiteral:
		return nil, nil // resolved lazily against row count by caller via constVector
	case KindRef:
		v, ok := env[n.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrColumnNotFound, n.Name)
		}
		return v, nil
	case KindUnary:
		v, err := evalNodeSized(n.Left, env)
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(v))
		floats.ScaleTo(out, -1, v)
		return out, nil
	case KindBinary:
		left, err := evalNodeSized(n.Left, env)
		if err != nil {
			return nil, err
		}
		right, err := evalNodeSized(n.Right, env)
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(left))
		switch n.Name {
		case "+":
			floats.AddTo(out, left, right)
		case "-":
			floats.SubTo(out, left, right)
		case "*":
			floats.MulTo(out, left, right)
		case "/":
			floats.DivTo(out, left, right)
		default:
			return nil, fmt.Errorf("unknown operator %q", n.Name)
		}
		return out, nil
	case KindCall:
		fn, ok := Functions[n.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownFunction, n.Name)
		}
		arg, err := evalNodeSized(n.Args[0], env)
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(arg))
		for i, v := range arg {
			out[i] = fn(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown node kind %d", n.Kind)
	}
}

// evalNodeSized resolves a node to a vector the width of env's row count,
// broadcasting literal scalars.
func evalNodeSized(n *Node, env Environment) ([]float64, error) {
	if n.Kind == KindLiteral {
		return constVector(n.Num, rowCount(env)), nil
	}
	return evalNode(n, env)
}

func constVector(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func rowCount(env Environment) int {
	for _, v := range env {
		return len(v)
	}
	return 0
}
