package core

import "math"

// Dim is the embedding dimension used throughout the deployment.
const Dim = 768

// normTolerance bounds how far a squared norm may drift from 1.0 before a
// vector is rejected as unnormalized. float32 mean-pooling accumulates a
// little error, so this is looser than machine epsilon.
const normTolerance = 1e-3

// Dot calculates the dot product of two vectors. For L2-normalized vectors
// this equals their cosine similarity.
func Dot(a, b []float32) float32 {
	var sum float32
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// Normalize scales v to unit length in place and returns it. A zero vector
// is returned unchanged.
func Normalize(v []float32) []float32 {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	if sq == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sq))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// IsNormalized reports whether v has (approximately) unit L2 norm.
func IsNormalized(v []float32) bool {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	return math.Abs(sq-1) <= normTolerance
}
