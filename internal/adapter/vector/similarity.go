package vector

import (
	"errors"
	"fmt"

	"github.com/viant/vec/search"

	"ragpipe/internal/domain"
)

// Similarity returns 1 - cosineDistance(a, b). The result lies in [-1, 1];
// a zero-magnitude vector is treated as unrelated to everything (0).
func Similarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", domain.ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, errors.New("vector: similarity on empty vectors")
	}

	va := search.Float32s(a)
	vb := search.Float32s(b)
	if va.Magnitude() == 0 || vb.Magnitude() == 0 {
		return 0, nil
	}
	return 1 - float64(va.CosineDistance(b)), nil
}

// Normalize scales v to unit length in place and returns it.
func Normalize(v []float32) []float32 {
	m := search.Float32s(v).Magnitude()
	if m == 0 {
		return v
	}
	for i := range v {
		v[i] /= m
	}
	return v
}

// FromFloat64 converts a float64 vector as returned by most HTTP embedding
// APIs into the float32 form used for storage.
func FromFloat64(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
