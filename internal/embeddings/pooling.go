package embeddings

import "math"

// spladePool converts masked-LM logits into a sparse vocabulary vector.
// logits is a row-major [seqLen][vocabSize] matrix; mask marks
// non-padding tokens. Each vocabulary weight is
// max over tokens of log(1 + relu(logit)), the SPLADE activation.
// Only strictly positive weights are kept.
func spladePool(logits []float32, mask []int64, seqLen, vocabSize int) SparseVector {
	weights := make([]float32, vocabSize)
	for i := 0; i < seqLen; i++ {
		if mask[i] == 0 {
			continue
		}
		row := logits[i*vocabSize : (i+1)*vocabSize]
		for j, logit := range row {
			if logit <= 0 {
				continue
			}
			w := float32(math.Log1p(float64(logit)))
			if w > weights[j] {
				weights[j] = w
			}
		}
	}

	var nonzero int
	for _, w := range weights {
		if w > 0 {
			nonzero++
		}
	}

	vec := SparseVector{
		Indices: make([]int32, 0, nonzero),
		Values:  make([]float32, 0, nonzero),
	}
	for j, w := range weights {
		if w > 0 {
			vec.Indices = append(vec.Indices, int32(j))
			vec.Values = append(vec.Values, w)
		}
	}
	return vec
}

// tokenVectors extracts the per-token embeddings for non-padding
// tokens from a row-major [seqLen][dim] matrix, L2-normalizing each.
func tokenVectors(out []float32, mask []int64, seqLen, dim int) [][]float32 {
	vectors := make([][]float32, 0, seqLen)
	for i := 0; i < seqLen; i++ {
		if mask[i] == 0 {
			continue
		}
		v := make([]float32, dim)
		copy(v, out[i*dim:(i+1)*dim])
		normalizeL2(v)
		vectors = append(vectors, v)
	}
	return vectors
}

// normalizeL2 scales v to unit length in place. Zero vectors are left
// unchanged.
func normalizeL2(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
