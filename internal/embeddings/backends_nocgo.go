//go:build !cgo

package embeddings

import (
	"context"
	"errors"
)

// ErrBackendsUnavailable is returned when the binary was built without
// CGO; the ONNX runtime and tokenizer bindings require it.
var ErrBackendsUnavailable = errors.New("embedding backends not available (binary built without CGO support)")

// DenseConfig holds configuration for the FastEmbed dense backend.
type DenseConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
	BatchSize int
}

// TransformerConfig holds configuration for the raw ONNX transformer
// backends (sparse and late-interaction).
type TransformerConfig struct {
	Model     string
	ModelsDir string
	MaxLength int
}

// NewDenseModel returns an error when CGO is not available.
func NewDenseModel(_ context.Context, _ DenseConfig) (DenseModel, error) {
	return nil, ErrBackendsUnavailable
}

// NewSparseModel returns an error when CGO is not available.
func NewSparseModel(_ context.Context, _ TransformerConfig) (SparseModel, error) {
	return nil, ErrBackendsUnavailable
}

// NewLateInteractionModel returns an error when CGO is not available.
func NewLateInteractionModel(_ context.Context, _ TransformerConfig) (LateInteractionModel, error) {
	return nil, ErrBackendsUnavailable
}
