package visualize

import (
	"math"
	"sort"
)

var nan = math.NaN()

func isNaN(v float64) bool { return math.IsNaN(v) }

func minMax(v []float64) (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, x := range v {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	if math.IsInf(min, 1) {
		min, max = 0, 1
	}
	return
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + step*float64(i)
	}
	return out
}

// bucket maps v in [lo,hi] to a bin index in [0,bins-1].
func bucket(v, lo, hi float64, bins int) int {
	if hi == lo {
		return 0
	}
	return int((v - lo) / (hi - lo) * float64(bins))
}

func clampBin(b, bins int) int {
	if b < 0 {
		return 0
	}
	if b >= bins {
		return bins - 1
	}
	return b
}

// uniqueSorted returns the sorted distinct values of v.
func uniqueSorted(v []float64) []float64 {
	seen := make(map[float64]bool, len(v))
	var out []float64
	for _, x := range v {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	sort.Float64s(out)
	return out
}

// indexOfSorted maps each value in sorted back to its position.
func indexOfSorted(sorted []float64) map[float64]int {
	m := make(map[float64]int, len(sorted))
	for i, v := range sorted {
		m[v] = i
	}
	return m
}
