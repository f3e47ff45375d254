// Package distance provides the vector distance calculations used by the
// similarity indexes.
//
// # Supported Metrics
//
//   - MetricCosine: cosine distance (1 - cosine similarity, default)
//   - MetricSquaredL2: squared Euclidean distance
//   - MetricDot: negated inner product
//
// Every metric follows the lower-is-closer convention; the inner product
// is negated so that callers can always sort ascending.
package distance
