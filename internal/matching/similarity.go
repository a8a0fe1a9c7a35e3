// internal/matching/similarity.go

// Package matching scores how well a candidate profile fits a job: semantic
// similarity between their embeddings and a weighted multi-factor rank.
// Every function is pure.
package matching

import (
	"errors"
	"math"
)

// ErrDimensionMismatch is returned when two vectors have different lengths.
var ErrDimensionMismatch = errors.New("matching: vector dimensions differ")

// CosineSimilarity returns the cosine of the angle between a and b as a
// percentage rounded to 2 decimals. A zero vector on either side yields 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return round(dot/(math.Sqrt(normA)*math.Sqrt(normB))*100, 2), nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
