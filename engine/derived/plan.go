package derived

import "github.com/flightdv/corepipeline/engine/domain"

// Plan is the minimal work set the visualization pipeline needs to
// materialize a target column set: the transitive closure of required
// derived specs (in original order) plus the base columns that must be
// read to satisfy them (spec §4.3 "Formula plan").
type Plan struct {
	Derived      []Spec
	DerivedNames []string
	ReadColumns  []string
}

// BuildPlan computes Plan for targetColumns given baseColumns and the raw
// derived list. If no derived columns are configured, ReadColumns is just
// the targets that exist in baseColumns.
func BuildPlan(baseColumns []string, derivedColumns []domain.DerivedSpec, targetColumns []string) (Plan, error) {
	baseSet := make(map[string]bool, len(baseColumns))
	for _, c := range baseColumns {
		baseSet[c] = true
	}

	specs, err := Normalize(baseColumns, derivedColumns)
	if err != nil {
		return Plan{}, err
	}
	if len(specs) == 0 {
		var read []string
		for _, t := range targetColumns {
			if t != "" && baseSet[t] {
				read = append(read, t)
			}
		}
		return Plan{ReadColumns: read}, nil
	}

	byName := make(map[string]Spec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}

	needed := map[string]bool{}
	var visit func(name string)
	visit = func(name string) {
		if needed[name] {
			return
		}
		spec, ok := byName[name]
		if !ok {
			return
		}
		needed[name] = true
		for _, ref := range Refs(spec.Expression) {
			if _, isDerived := byName[ref]; isDerived {
				visit(ref)
			}
		}
	}
	for _, t := range targetColumns {
		if t != "" {
			visit(t)
		}
	}

	var required []Spec
	var derivedNames []string
	for _, s := range specs {
		if needed[s.Name] {
			required = append(required, s)
			derivedNames = append(derivedNames, s.Name)
		}
	}
	derivedSet := make(map[string]bool, len(derivedNames))
	for _, n := range derivedNames {
		derivedSet[n] = true
	}

	readSet := map[string]bool{}
	for _, t := range targetColumns {
		if t != "" && baseSet[t] && !derivedSet[t] {
			readSet[t] = true
		}
	}
	for _, s := range required {
		for _, ref := range Refs(s.Expression) {
			if !derivedSet[ref] {
				readSet[ref] = true
			}
		}
	}

	var read []string
	for _, c := range baseColumns {
		if readSet[c] {
			read = append(read, c)
		}
	}

	return Plan{Derived: required, DerivedNames: derivedNames, ReadColumns: read}, nil
}
