// Package distance provides public API for vector distance calculations and
// the per-metric pre-processing the engine applies so L2, inner-product, and
// cosine queries can all be scored by a single L2 comparator downstream.
package distance

import (
	"fmt"
	"math"
	"slices"

	"github.com/hupe1980/vecgo/internal/math32"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	return math32.Dot(a, b)
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	return math32.SquaredL2(a, b)
}

// Hamming calculates the Hamming distance between two byte slices.
// Assumes slices are the same length.
// Returns the count of differing bits as a float32.
func Hamming(a, b []byte) float32 {
	var count int
	for i := range a {
		count += popcount(a[i] ^ b[i])
	}

	return float32(count)
}

func popcount(b byte) int {
	n := 0
	for b != 0 {
		n += int(b & 1)
		b >>= 1
	}

	return n
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}

	norm2 := math32.Dot(v, v)
	if norm2 == 0 {
		return false
	}

	inv := 1 / float32(math.Sqrt(float64(norm2)))
	math32.ScaleInPlace(v, inv)

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

// Metric represents the distance metric a segment was built for.
//
// All three metrics are compared with squared-L2 once a vector has run
// through the metric's Preprocess step, so the beam search core never
// branches on metric at comparison time.
type Metric int

const (
	MetricL2 Metric = iota
	MetricInnerProduct
	MetricCosine
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricInnerProduct:
		return "InnerProduct"
	case MetricCosine:
		return "Cosine"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// ParseMetric parses the canonical metric name used in index headers.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "L2", "l2":
		return MetricL2, nil
	case "InnerProduct", "ip", "IP":
		return MetricInnerProduct, nil
	case "Cosine", "cosine":
		return MetricCosine, nil
	default:
		return 0, fmt.Errorf("distance: unknown metric %q", s)
	}
}

// Preprocess converts v into the regime the builder used for the base set:
// L2 returns v untouched, cosine L2-normalizes v in place and returns it,
// and inner product returns a new slice, leaving v unchanged, whose first
// d-1 dims are v scaled by 1/maxBaseNorm with a d-th dimension appended so
// the residual "lifts" every vector onto a common hypersphere. maxBaseNorm
// is ignored for L2 and cosine.
//
// The returned slice is always the one to use henceforth (for inner
// product it is one element longer than v).
func Preprocess(metric Metric, v []float32, maxBaseNorm float32) []float32 {
	switch metric {
	case MetricCosine:
		NormalizeL2InPlace(v)
		return v
	case MetricInnerProduct:
		return preprocessIP(v, maxBaseNorm)
	default:
		return v
	}
}

func preprocessIP(v []float32, maxBaseNorm float32) []float32 {
	if maxBaseNorm <= 0 {
		maxBaseNorm = 1
	}

	out := make([]float32, len(v)+1)
	copy(out, v)
	math32.ScaleInPlace(out[:len(v)], 1/maxBaseNorm)

	norm2 := math32.Dot(out[:len(v)], out[:len(v)])
	residual := 1 - norm2
	if residual < 0 {
		residual = 0
	}

	out[len(v)] = float32(math.Sqrt(float64(residual)))

	return out
}

// Unscale undoes Preprocess's effect on a resulting squared-L2 distance,
// converting it back into the metric's native comparator value: negated
// and rescaled by maxBaseNorm*queryNorm for IP/cosine, unchanged for L2.
func Unscale(metric Metric, l2dist, maxBaseNorm, queryNorm float32) float32 {
	switch metric {
	case MetricInnerProduct, MetricCosine:
		return -l2dist * maxBaseNorm * queryNorm
	default:
		return l2dist
	}
}

// Func is a function type for distance calculation.
type Func func(a, b []float32) float32

// FuncBytes is a function type for distance calculation on byte slices.
type FuncBytes func(a, b []byte) float32

// Provider returns the comparator function for the given metric. Since
// Preprocess already moved cosine/IP vectors into L2 space, every metric
// compares with squared L2.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricL2, MetricInnerProduct, MetricCosine:
		return SquaredL2, nil
	default:
		return nil, fmt.Errorf("distance: unsupported metric %v", m)
	}
}

// ProviderBytes returns the distance function for the given metric on byte slices.
func ProviderBytes(m Metric) (FuncBytes, error) {
	return Hamming, nil
}
