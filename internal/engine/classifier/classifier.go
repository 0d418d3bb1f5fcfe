package classifier

import (
	"math"
)

// DefaultThreshold is the minimum cosine similarity for a hint.
const DefaultThreshold = 0.5

// Centroid is a cluster label and the mean of its member vectors.
type Centroid struct {
	Label  int
	Vector []float64
}

// Result holds the nearest centroid for one vector.
type Result struct {
	Label      int
	Confidence float64 // cosine similarity
	Matched    bool    // Confidence reached the threshold
}

// Classifier scores a vector against cluster centroids. It only produces
// hints; it never relabels a point.
type Classifier struct {
	Threshold float64
}

// New creates a Classifier with the given confidence threshold.
func New(threshold float64) *Classifier {
	return &Classifier{Threshold: threshold}
}

// Nearest finds the most similar centroid. Ties keep the earlier centroid.
// Matched is false when there are no centroids or the best similarity is
// below threshold.
func (c *Classifier) Nearest(vector []float64, centroids []Centroid) Result {
	if len(centroids) == 0 {
		return Result{Label: -1}
	}

	best := Result{Label: -1, Confidence: -2}
	for _, ct := range centroids {
		sim := CosineSimilarity(vector, ct.Vector)
		if sim > best.Confidence {
			best = Result{Label: ct.Label, Confidence: sim}
		}
	}
	best.Matched = best.Confidence >= c.Threshold
	return best
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// for mismatched lengths and zero vectors.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
