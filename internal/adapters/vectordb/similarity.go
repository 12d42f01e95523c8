package vectordb

import (
	"fmt"
	"math"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

// Metric is the similarity policy applied when scoring chunks against a
// query vector. Selected at index construction time; all scores produced by
// one index use the same metric.
type Metric string

const (
	// MetricCosine scores dot(a,b) / (||a||*||b||); 0.0 when either norm is 0.
	MetricCosine Metric = "cosine"
	// MetricEuclidean maps distance to (0,1] as 1 / (1 + ||a-b||).
	MetricEuclidean Metric = "euclidean"
	// MetricDotProduct scores the raw, unnormalized dot product.
	MetricDotProduct Metric = "dotproduct"
)

// ParseMetric validates a metric name from configuration.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, MetricEuclidean, MetricDotProduct:
		return Metric(s), nil
	case "":
		return MetricCosine, nil
	}
	return "", fmt.Errorf("%w: unknown distance metric %q", entities.ErrConfiguration, s)
}

// Score computes the similarity of two vectors under the metric.
// Mismatched or empty vectors score 0.
func (m Metric) Score(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	switch m {
	case MetricEuclidean:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return 1.0 / (1.0 + math.Sqrt(sum))
	case MetricDotProduct:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return dot
	default:
		return cosineSimilarity(a, b)
	}
}

// cosineSimilarity calculates cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
