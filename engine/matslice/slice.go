package matslice

import (
	"fmt"
	"math"

	"github.com/flightdv/corepipeline/engine/domain"
)

// DefaultMaxCells caps the element count a single slice extraction may
// produce (spec §4.8).
const DefaultMaxCells = 2_000_000

// SliceResult is the extraction produced by Slice: coordinate vectors for
// each free dimension (in requested axis order), the flattened N-D value
// array, and the coordinate names resolved for labeling.
type SliceResult struct {
	AxisLabels []string
	Coords     [][]float64
	Shape      []int
	Values     []float64
}

// FlattenNumeric returns the full flattened numeric payload for the named
// variable, in the column-major order MATLAB stores it.
func FlattenNumeric(raw []byte, name string) ([]float64, error) {
	vars, err := readVariables(raw)
	if err != nil {
		return nil, err
	}
	for _, v := range vars {
		if v.Name == name {
			if v.Kind != "numeric_array" {
				return nil, fmt.Errorf("%w: %s is not a numeric array", domain.ErrUnsupportedFormat, name)
			}
			return v.Values, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrColumnNotFound, name)
}

// Slice extracts an N-D sub-array from variable cfg.Var following spec
// §4.8: free dims (cfg.AxisDims) keep their full range in the requested
// order; filtered dims resolve to a single index via nearest-value match
// against the guessed/overridden coordinate vector (falling back to
// clamped round-to-nearest); unmentioned dims default to index 0.
func Slice(raw []byte, cfg domain.MatConfig) (*SliceResult, error) {
	vars, err := readVariables(raw)
	if err != nil {
		return nil, err
	}
	var target *variable
	for i := range vars {
		if vars[i].Name == cfg.Var {
			target = &vars[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrColumnNotFound, cfg.Var)
	}
	if target.Kind != "numeric_array" {
		return nil, fmt.Errorf("%w: %s is not a numeric array", domain.ErrUnsupportedFormat, cfg.Var)
	}

	guesses := coordGuesses(vars)[target.Name]
	coordNameFor := func(dim int) string {
		if cfg.CoordMap != nil {
			if name, ok := cfg.CoordMap[dim]; ok {
				return name
			}
		}
		if dim < len(guesses) {
			return guesses[dim]
		}
		return ""
	}
	coordVectorFor := func(dim int) []float64 {
		name := coordNameFor(dim)
		if name == "" {
			return nil
		}
		for _, v := range vars {
			if v.Name == name && v.Kind == "numeric_array" {
				return v.Values
			}
		}
		return nil
	}

	rank := len(target.Shape)
	free := make(map[int]bool, len(cfg.AxisDims))
	for _, d := range cfg.AxisDims {
		free[d] = true
	}

	// Resolve an index for every non-free dimension: explicit filter value
	// (nearest-match against the coord vector, else clamped round), else 0.
	fixedIndex := make([]int, rank)
	for dim := 0; dim < rank; dim++ {
		if free[dim] {
			continue
		}
		size := target.Shape[dim]
		if fv, ok := cfg.Filters[dim]; ok {
			fixedIndex[dim] = resolveFilterIndex(fv, coordVectorFor(dim), size)
		}
	}

	maxCells := DefaultMaxCells
	cellCount := 1
	for _, d := range cfg.AxisDims {
		cellCount *= target.Shape[d]
	}
	if cellCount > maxCells {
		return nil, fmt.Errorf("%w: %d cells exceeds max %d", domain.ErrSliceTooLarge, cellCount, maxCells)
	}

	values := extract(target.Shape, target.Values, fixedIndex, cfg.AxisDims)

	shape := make([]int, len(cfg.AxisDims))
	coords := make([][]float64, len(cfg.AxisDims))
	labels := make([]string, len(cfg.AxisDims))
	for i, dim := range cfg.AxisDims {
		shape[i] = target.Shape[dim]
		labels[i] = coordNameFor(dim)
		if v := coordVectorFor(dim); v != nil && len(v) == target.Shape[dim] {
			coords[i] = v
		} else {
			coords[i] = indexRamp(target.Shape[dim])
		}
	}

	return &SliceResult{AxisLabels: labels, Coords: coords, Shape: shape, Values: values}, nil
}

// resolveFilterIndex maps a user-supplied filter value to an integer index
// along one dimension: nearest-value match against coord when available,
// else clamp the rounded raw value into range.
func resolveFilterIndex(value float64, coord []float64, size int) int {
	if size <= 0 {
		return 0
	}
	if len(coord) == size {
		best, bestDist := 0, math.Inf(1)
		for i, v := range coord {
			if math.IsNaN(v) {
				continue
			}
			d := math.Abs(v - value)
			if d < bestDist {
				best, bestDist = i, d
			}
		}
		return best
	}
	idx := int(math.Round(value))
	if idx < 0 {
		idx = 0
	}
	if idx > size-1 {
		idx = size - 1
	}
	return idx
}

// extract builds a flattened output array by walking the requested free
// dimensions (in axisDims order) over a column-major-stored source array,
// holding every other dimension at fixedIndex.
func extract(shape []int, data []float64, fixedIndex []int, axisDims []int) []float64 {
	strides := columnMajorStrides(shape)
	outShape := make([]int, len(axisDims))
	for i, d := range axisDims {
		outShape[i] = shape[d]
	}
	total := 1
	for _, n := range outShape {
		total *= n
	}
	out := make([]float64, total)

	coord := make([]int, len(shape))
	copy(coord, fixedIndex)

	idx := make([]int, len(axisDims))
	for pos := 0; pos < total; pos++ {
		remaining := pos
		for i := len(axisDims) - 1; i >= 0; i-- {
			idx[i] = remaining % outShape[i]
			remaining /= outShape[i]
		}
		for i, d := range axisDims {
			coord[d] = idx[i]
		}
		offset := 0
		for d, c := range coord {
			offset += c * strides[d]
		}
		out[pos] = data[offset]
	}
	return out
}

func columnMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i, n := range shape {
		strides[i] = acc
		acc *= n
	}
	return strides
}

func indexRamp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}
