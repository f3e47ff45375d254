package distance

import (
	"fmt"
	"math"
	"slices"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Magnitude calculates the L2 norm of a vector.
func Magnitude(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// Cosine calculates the cosine distance (1 - cosine similarity) between
// two vectors. A zero vector yields the maximum distance of 1.
func Cosine(a, b []float32) float32 {
	ma := Magnitude(a)
	mb := Magnitude(b)
	if ma == 0 || mb == 0 {
		return 1
	}
	return 1 - Dot(a, b)/(ma*mb)
}

// NegatedDot calculates the negated inner product, preserving the
// lower-is-closer convention for maximum-inner-product search.
func NegatedDot(a, b []float32) float32 {
	return -Dot(a, b)
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := Dot(v, v)
	if norm2 == 0 {
		return false
	}
	inv := 1 / float32(math.Sqrt(float64(norm2)))
	for i := range v {
		v[i] *= inv
	}
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	MetricCosine Metric = iota
	MetricSquaredL2
	MetricDot
)

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "cosine"
	case MetricSquaredL2:
		return "l2"
	case MetricDot:
		return "dot"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// MetricByName returns the metric with the given stable name.
func MetricByName(name string) (Metric, bool) {
	switch name {
	case "cosine":
		return MetricCosine, true
	case "l2":
		return MetricSquaredL2, true
	case "dot":
		return MetricDot, true
	default:
		return 0, false
	}
}

// Func is a function type for distance calculation.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric.
// All returned functions follow the lower-is-closer convention.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricCosine:
		return Cosine, nil
	case MetricSquaredL2:
		return SquaredL2, nil
	case MetricDot:
		return NegatedDot, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}
