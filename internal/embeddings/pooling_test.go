package embeddings

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpladePool(t *testing.T) {
	t.Run("applies log1p-relu and max pools over tokens", func(t *testing.T) {
		// Two tokens over a four-term vocabulary.
		logits := []float32{
			0, 1.0, -2.0, 0.5,
			0, 3.0, 0.25, -1.0,
		}
		mask := []int64{1, 1}

		vec := spladePool(logits, mask, 2, 4)

		require.Equal(t, []int32{1, 2, 3}, vec.Indices, "zero and negative logits drop out")
		assert.InDelta(t, math.Log1p(3.0), float64(vec.Values[0]), 1e-6, "max pooled across tokens")
		assert.InDelta(t, math.Log1p(0.25), float64(vec.Values[1]), 1e-6)
		assert.InDelta(t, math.Log1p(0.5), float64(vec.Values[2]), 1e-6)
	})

	t.Run("ignores padding tokens", func(t *testing.T) {
		logits := []float32{
			1.0, 0,
			5.0, 5.0,
		}
		mask := []int64{1, 0}

		vec := spladePool(logits, mask, 2, 2)

		require.Equal(t, []int32{0}, vec.Indices)
		assert.InDelta(t, math.Log1p(1.0), float64(vec.Values[0]), 1e-6)
	})

	t.Run("all-negative logits yield empty vector", func(t *testing.T) {
		vec := spladePool([]float32{-1, -2}, []int64{1}, 1, 2)
		assert.Empty(t, vec.Indices)
		assert.Empty(t, vec.Values)
	})
}

func TestTokenVectors(t *testing.T) {
	t.Run("extracts normalized vectors for non-padding tokens", func(t *testing.T) {
		out := []float32{
			3, 4,
			1, 0,
			9, 9,
		}
		mask := []int64{1, 1, 0}

		vectors := tokenVectors(out, mask, 3, 2)

		require.Len(t, vectors, 2, "padding token excluded")
		assert.InDelta(t, 0.6, float64(vectors[0][0]), 1e-6)
		assert.InDelta(t, 0.8, float64(vectors[0][1]), 1e-6)
		assert.Equal(t, []float32{1, 0}, vectors[1])
	})
}

func TestNormalizeL2(t *testing.T) {
	t.Run("scales to unit length", func(t *testing.T) {
		v := []float32{3, 4}
		normalizeL2(v)
		assert.InDelta(t, 1.0, float64(v[0]*v[0]+v[1]*v[1]), 1e-6)
	})

	t.Run("leaves zero vector unchanged", func(t *testing.T) {
		v := []float32{0, 0}
		normalizeL2(v)
		assert.Equal(t, []float32{0, 0}, v)
	})
}
