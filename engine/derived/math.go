package derived

import "math"

// Thin named wrappers so Functions can reference them by value; keeps the
// map literal free of inline closures.
func mathSin(x float64) float64   { return math.Sin(x) }
func mathCos(x float64) float64   { return math.Cos(x) }
func mathTan(x float64) float64   { return math.Tan(x) }
func mathAsin(x float64) float64  { return math.Asin(x) }
func mathAcos(x float64) float64  { return math.Acos(x) }
func mathAtan(x float64) float64  { return math.Atan(x) }
func mathLog(x float64) float64   { return math.Log(x) }
func mathLog10(x float64) float64 { return math.Log10(x) }
func mathExp(x float64) float64   { return math.Exp(x) }
func mathSqrt(x float64) float64  { return math.Sqrt(x) }
func mathAbs(x float64) float64   { return math.Abs(x) }
