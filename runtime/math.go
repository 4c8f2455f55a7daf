package runtime

import "math"

// floatRem computes the float remainder with the dividend's sign, NaN for
// unordered operands or a zero divisor.
func floatRem(a, b float32) float32 {
	return float32(math.Mod(float64(a), float64(b)))
}

func doubleRem(a, b float64) float64 {
	return math.Mod(a, b)
}

// compareOrdered reduces an ordered comparison to -1, 0, or 1.
func compareOrdered(a, b int64) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareFloat reduces a floating comparison to -1, 0, or 1, reporting the
// given bias when either operand is NaN.
func compareFloat(a, b float64, unordered int32) int32 {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return unordered
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// floatToInt converts with saturation: NaN becomes zero, out-of-range values
// clamp to the int extremes.
func floatToInt(v float64) int32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	default:
		return int32(v)
	}
}

// floatToLong converts with saturation like floatToInt.
func floatToLong(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	case v <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(v)
	}
}
