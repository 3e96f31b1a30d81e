// Package distance provides vector distance primitives and the per-metric
// pre-processing that lets L2, inner-product, and cosine queries share a
// single squared-L2 comparator inside the beam search core.
//
// # Supported Metrics
//
//   - MetricL2: squared Euclidean distance, no pre-processing.
//   - MetricCosine: vectors are L2-normalized before comparison.
//   - MetricInnerProduct: vectors are scaled by 1/maxBaseNorm and lifted
//     onto a shared hypersphere with an extra dimension.
//
// # Usage
//
//	dist := distance.SquaredL2(a, b)
//	lifted := distance.Preprocess(distance.MetricInnerProduct, query, maxBaseNorm)
package distance
