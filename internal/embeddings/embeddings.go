package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

var (
	// ErrModelLoad indicates a model handle could not be constructed:
	// unrecognized model name, missing weights, or runtime
	// initialization failure.
	ErrModelLoad = errors.New("model load failed")

	// ErrInference indicates the model failed on the given input.
	ErrInference = errors.New("inference failed")

	// ErrInvalidConfig indicates invalid backend configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// DenseModel produces one fixed-length vector per input text.
type DenseModel interface {
	// Embed returns one embedding per text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the model's output vector length.
	Dimension() int
	// Close releases the model's runtime resources.
	Close() error
}

// SparseModel produces one sparse vocabulary-space vector per input text.
type SparseModel interface {
	Embed(ctx context.Context, texts []string) ([]SparseVector, error)
	Close() error
}

// LateInteractionModel produces one vector per token per input text.
type LateInteractionModel interface {
	Embed(ctx context.Context, texts []string) ([][][]float32, error)
	Close() error
}

// SparseVector is a sparse embedding as parallel index/value arrays.
// Indices are vocabulary token IDs, sorted ascending; values are the
// corresponding positive weights.
type SparseVector struct {
	Indices []int32
	Values  []float32
}

// MarshalJSON serializes the vector as an index-to-weight object,
// e.g. {"3": 0.52, "17": 0.11}, with indices in ascending order.
func (v SparseVector) MarshalJSON() ([]byte, error) {
	if len(v.Indices) != len(v.Values) {
		return nil, fmt.Errorf("sparse vector has %d indices but %d values", len(v.Indices), len(v.Values))
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, idx := range v.Indices {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strconv.FormatInt(int64(idx), 10))
		buf.WriteString(`":`)
		buf.WriteString(strconv.FormatFloat(float64(v.Values[i]), 'g', -1, 32))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses an index-to-weight object back into sorted
// parallel arrays.
func (v *SparseVector) UnmarshalJSON(data []byte) error {
	var m map[string]float32
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	v.Indices = make([]int32, 0, len(m))
	weights := make(map[int32]float32, len(m))
	for k, w := range m {
		idx, err := strconv.ParseInt(k, 10, 32)
		if err != nil {
			return fmt.Errorf("sparse vector index %q: %w", k, err)
		}
		v.Indices = append(v.Indices, int32(idx))
		weights[int32(idx)] = w
	}
	sort.Slice(v.Indices, func(i, j int) bool { return v.Indices[i] < v.Indices[j] })

	v.Values = make([]float32, len(v.Indices))
	for i, idx := range v.Indices {
		v.Values[i] = weights[idx]
	}
	return nil
}
