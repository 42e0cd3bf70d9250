package matslice

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flightdv/corepipeline/engine/domain"
)

// coordPriority ranks 1-D coordinate-name candidates (spec §4.8).
var coordPriority = []string{"x", "y", "z", "time", "t", "alpha", "beta", "mach", "lat", "lon", "alt"}

var coordRank = func() map[string]int {
	m := make(map[string]int, len(coordPriority))
	for i, n := range coordPriority {
		m[n] = i
	}
	return m
}()

// Index reports every top-level variable of a MAT file (numeric arrays,
// plus struct/cell/unsupported markers for the rest), for the ingestion
// job's mat_index field. Arrays nested inside struct or cell variables are
// not walked and are not reported. v7.3 (HDF5-backed) files are detected
// but not decoded: no HDF5
// library exists anywhere in the retrieved example corpus, and a
// from-scratch HDF5 container reader is out of scope for this reader.
func Index(raw []byte) ([]domain.MatIndexEntry, error) {
	if DetectVersion(raw) == "v7.3" {
		return nil, fmt.Errorf("%w: MAT v7.3 (HDF5) files are not supported by this reader", domain.ErrUnsupportedFormat)
	}
	vars, err := readVariables(raw)
	if err != nil {
		return nil, err
	}
	sort.Slice(vars, func(i, j int) bool { return strings.ToLower(vars[i].Name) < strings.ToLower(vars[j].Name) })

	entries := make([]domain.MatIndexEntry, len(vars))
	for i, v := range vars {
		entries[i] = domain.MatIndexEntry{Name: v.Name, Shape: v.Shape, Kind: v.Kind, Dtype: v.Dtype}
	}
	return entries, nil
}

// vectorLength reports the 1-D length of shape if it describes a vector
// (rank 1, or rank 2 with a singleton dimension), else ok=false.
func vectorLength(shape []int) (length int, ok bool) {
	if len(shape) == 1 {
		return shape[0], true
	}
	if len(shape) == 2 {
		if shape[0] == 1 {
			return shape[1], true
		}
		if shape[1] == 1 {
			return shape[0], true
		}
	}
	return 0, false
}

// coordGuesses builds, for each N-D numeric variable, a per-dimension
// best-guess coordinate name: candidates are other numeric vectors whose
// length matches that dimension's size, ranked by the fixed priority list
// then lexicographically (spec §4.8).
func coordGuesses(vars []variable) map[string][]string {
	vectorsByLen := map[int][]string{}
	for _, v := range vars {
		if v.Kind != "numeric_array" {
			continue
		}
		if n, ok := vectorLength(v.Shape); ok {
			vectorsByLen[n] = append(vectorsByLen[n], v.Name)
		}
	}

	out := make(map[string][]string, len(vars))
	for _, v := range vars {
		if v.Kind != "numeric_array" || len(v.Shape) == 0 {
			continue
		}
		guesses := make([]string, len(v.Shape))
		for d, size := range v.Shape {
			candidates := filterOut(vectorsByLen[size], v.Name)
			guesses[d] = chooseGuess(candidates)
		}
		out[v.Name] = guesses
	}
	return out
}

func filterOut(names []string, exclude string) []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range names {
		if n == exclude || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func chooseGuess(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	ranked := append([]string(nil), candidates...)
	sort.Slice(ranked, func(i, j int) bool {
		li, liOK := coordRank[strings.ToLower(ranked[i])]
		lj, ljOK := coordRank[strings.ToLower(ranked[j])]
		if liOK != ljOK {
			return liOK
		}
		if liOK && ljOK && li != lj {
			return li < lj
		}
		return strings.ToLower(ranked[i]) < strings.ToLower(ranked[j])
	})
	return ranked[0]
}
