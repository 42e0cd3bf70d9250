// Package autoscale computes worker pool bounds from host CPU count,
// ported from original_source/backend/app/core/system_info.py's
// autoscale_bounds: a ceiling of one worker per core but never fewer than
// 8, however few cores the host has, with a floor at half the ceiling but
// never fewer than 4.
package autoscale

import "runtime"

// Bounds computes (min, max) worker counts for the current host.
// max is never below 8; min is never below 4.
func Bounds() (min, max int) {
	cpu := runtime.NumCPU()
	max = cpu
	if max < 8 {
		max = 8
	}
	min = max / 2
	if min < 4 {
		min = 4
	}
	return min, max
}
