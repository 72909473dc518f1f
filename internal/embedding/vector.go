package embedding

import "math"

// Vector is an immutable face embedding. The zero value is an empty vector.
type Vector struct {
	values []float32
}

// New copies values into a Vector.
func New(values []float32) Vector {
	cp := make([]float32, len(values))
	copy(cp, values)
	return Vector{values: cp}
}

// FromFloat64 converts a float64 embedding, as returned by most inference
// servers, into a Vector.
func FromFloat64(values []float64) Vector {
	cp := make([]float32, len(values))
	for i, v := range values {
		cp[i] = float32(v)
	}
	return Vector{values: cp}
}

// Dim returns the number of components.
func (v Vector) Dim() int {
	return len(v.values)
}

// At returns the i-th component.
func (v Vector) At(i int) float32 {
	return v.values[i]
}

// Values returns a copy of the components.
func (v Vector) Values() []float32 {
	cp := make([]float32, len(v.values))
	copy(cp, v.values)
	return cp
}

// Float64s returns the components widened to float64.
func (v Vector) Float64s() []float64 {
	out := make([]float64, len(v.values))
	for i, x := range v.values {
		out[i] = float64(x)
	}
	return out
}

// Equal reports whether both vectors have the same dimension and every
// component differs by at most tol.
func (v Vector) Equal(other Vector, tol float64) bool {
	if len(v.values) != len(other.values) {
		return false
	}
	for i := range v.values {
		if math.Abs(float64(v.values[i])-float64(other.values[i])) > tol {
			return false
		}
	}
	return true
}

// Finite reports whether no component is NaN or infinite.
func (v Vector) Finite() bool {
	for _, x := range v.values {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
