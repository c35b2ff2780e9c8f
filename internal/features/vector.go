package features

import "math"

// Vector is a sparse feature row. Indices are strictly increasing and every
// index is below Dim.
type Vector struct {
	Dim     int
	Indices []int
	Values  []float64
}

// NNZ returns the number of stored entries.
func (v Vector) NNZ() int {
	return len(v.Indices)
}

// Dot returns the dot product of v with the dense slice w.
// w must have at least v.Dim entries.
func (v Vector) Dot(w []float64) float64 {
	var sum float64
	for i, idx := range v.Indices {
		sum += v.Values[i] * w[idx]
	}
	return sum
}

// dense expands v into a slice of length Dim.
func (v Vector) dense() []float64 {
	out := make([]float64, v.Dim)
	for i, idx := range v.Indices {
		out[idx] = v.Values[i]
	}
	return out
}

// Norm returns the Euclidean length of v.
func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v.Values {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Project returns the entries of v at the given columns, in order.
func (v Vector) Project(columns []int) []float64 {
	out := make([]float64, len(columns))
	if len(v.Indices) == 0 {
		return out
	}
	pos := make(map[int]float64, len(v.Indices))
	for i, idx := range v.Indices {
		pos[idx] = v.Values[i]
	}
	for i, c := range columns {
		out[i] = pos[c]
	}
	return out
}
