//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// fastEmbedModels maps supported model names to fastembed constants.
var fastEmbedModels = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// DenseConfig holds configuration for the FastEmbed dense backend.
type DenseConfig struct {
	// Model is the dense model name, e.g. BAAI/bge-small-en-v1.5.
	Model string

	// CacheDir is the directory for downloaded model files.
	CacheDir string

	// MaxLength is the maximum input sequence length. Defaults to 512.
	MaxLength int

	// BatchSize is the embedding batch size. Defaults to 256.
	BatchSize int
}

// denseModel wraps a fastembed FlagEmbedding as a DenseModel.
type denseModel struct {
	model     *fastembed.FlagEmbedding
	name      string
	dimension int
	batchSize int
	mu        sync.RWMutex
}

// NewDenseModel constructs a dense embedding model via fastembed-go.
// Model weights are downloaded to cfg.CacheDir on first use; the ONNX
// runtime shared library must be available (see EnsureONNXRuntime).
func NewDenseModel(ctx context.Context, cfg DenseConfig) (DenseModel, error) {
	model, ok := fastEmbedModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported dense model %q", ErrModelLoad, cfg.Model)
	}
	dimension, _ := DenseDimension(cfg.Model)

	if _, err := EnsureONNXRuntime(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 256
	}

	// Progress bars corrupt structured log output.
	showProgress := false
	opts := &fastembed.InitOptions{
		Model:                model,
		CacheDir:             cfg.CacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	}

	flagEmbed, err := fastembed.NewFlagEmbedding(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: initializing %q: %v", ErrModelLoad, cfg.Model, err)
	}

	return &denseModel{
		model:     flagEmbed,
		name:      cfg.Model,
		dimension: dimension,
		batchSize: batchSize,
	}, nil
}

// Embed generates one embedding per text, in input order.
func (m *denseModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	embeddings, err := m.model.Embed(texts, m.batchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInference, m.name, err)
	}
	return embeddings, nil
}

// Dimension returns the model's output vector length.
func (m *denseModel) Dimension() int {
	return m.dimension
}

// Close destroys the underlying fastembed session.
func (m *denseModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.model != nil {
		return m.model.Destroy()
	}
	return nil
}
