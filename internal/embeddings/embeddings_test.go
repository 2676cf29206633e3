package embeddings

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSparseVectorMarshalJSON(t *testing.T) {
	t.Run("serializes as index-to-weight object", func(t *testing.T) {
		vec := SparseVector{
			Indices: []int32{3, 17},
			Values:  []float32{0.52, 0.11},
		}

		data, err := json.Marshal(vec)
		require.NoError(t, err)
		assert.JSONEq(t, `{"3": 0.52, "17": 0.11}`, string(data))
	})

	t.Run("empty vector serializes as empty object", func(t *testing.T) {
		data, err := json.Marshal(SparseVector{})
		require.NoError(t, err)
		assert.Equal(t, "{}", string(data))
	})

	t.Run("rejects mismatched lengths", func(t *testing.T) {
		vec := SparseVector{Indices: []int32{1}, Values: []float32{0.1, 0.2}}
		_, err := json.Marshal(vec)
		assert.Error(t, err)
	})
}

func TestSparseVectorUnmarshalJSON(t *testing.T) {
	t.Run("round trips with sorted indices", func(t *testing.T) {
		var vec SparseVector
		err := json.Unmarshal([]byte(`{"17": 0.11, "3": 0.52}`), &vec)
		require.NoError(t, err)

		assert.Equal(t, []int32{3, 17}, vec.Indices)
		assert.Equal(t, []float32{0.52, 0.11}, vec.Values)
	})

	t.Run("rejects non-numeric index", func(t *testing.T) {
		var vec SparseVector
		err := json.Unmarshal([]byte(`{"abc": 0.5}`), &vec)
		assert.Error(t, err)
	})
}

func TestCatalog(t *testing.T) {
	t.Run("all categories are non-empty", func(t *testing.T) {
		assert.NotEmpty(t, DenseModels())
		assert.NotEmpty(t, SparseModels())
		assert.NotEmpty(t, LateInteractionModels())
	})

	t.Run("catalogs include category defaults", func(t *testing.T) {
		assert.Contains(t, DenseModels(), DefaultDenseModel)
		assert.Contains(t, SparseModels(), DefaultSparseModel)
		assert.Contains(t, LateInteractionModels(), DefaultLateInteractionModel)
	})

	t.Run("dense dimensions", func(t *testing.T) {
		dim, ok := DenseDimension("BAAI/bge-small-en-v1.5")
		require.True(t, ok)
		assert.Equal(t, 384, dim)

		dim, ok = DenseDimension("BAAI/bge-base-en-v1.5")
		require.True(t, ok)
		assert.Equal(t, 768, dim)

		_, ok = DenseDimension("nonexistent/model")
		assert.False(t, ok)
	})

	t.Run("membership checks", func(t *testing.T) {
		assert.True(t, IsSparseModel(DefaultSparseModel))
		assert.False(t, IsSparseModel("BAAI/bge-small-en-v1.5"))
		assert.True(t, IsLateInteractionModel(DefaultLateInteractionModel))
		assert.False(t, IsLateInteractionModel(DefaultSparseModel))
	})
}
