package embeddings

import "sort"

// Category identifies one embedding model family.
type Category string

const (
	CategoryDense           Category = "dense"
	CategorySparse          Category = "sparse"
	CategoryLateInteraction Category = "late-interaction"
)

// Default model names per category. Overridable via configuration.
const (
	DefaultDenseModel           = "BAAI/bge-small-en-v1.5"
	DefaultSparseModel          = "prithivida/Splade_PP_en_v1"
	DefaultLateInteractionModel = "colbert-ir/colbertv2.0"
)

// denseDimensions maps supported dense model names to their output
// vector length. This is the source of truth for /models and for
// request validation; the fastembed constant mapping lives with the
// cgo backend.
var denseDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
}

// sparseModels lists supported SPLADE-style sparse models.
var sparseModels = map[string]struct{}{
	"prithivida/Splade_PP_en_v1":              {},
	"naver/splade-cocondenser-ensembledistil": {},
}

// lateInteractionModels lists supported ColBERT-style models with
// their per-token vector length.
var lateInteractionModels = map[string]int{
	"colbert-ir/colbertv2.0":                 128,
	"answerdotai/answerai-colbert-small-v1":  96,
}

// DenseModels returns the supported dense model names, sorted.
func DenseModels() []string {
	return sortedKeys(denseDimensions)
}

// SparseModels returns the supported sparse model names, sorted.
func SparseModels() []string {
	return sortedKeys(sparseModels)
}

// LateInteractionModels returns the supported late-interaction model
// names, sorted.
func LateInteractionModels() []string {
	return sortedKeys(lateInteractionModels)
}

// DenseDimension returns the output dimension for a dense model name.
func DenseDimension(name string) (int, bool) {
	dim, ok := denseDimensions[name]
	return dim, ok
}

// IsSparseModel reports whether name is a supported sparse model.
func IsSparseModel(name string) bool {
	_, ok := sparseModels[name]
	return ok
}

// IsLateInteractionModel reports whether name is a supported
// late-interaction model.
func IsLateInteractionModel(name string) bool {
	_, ok := lateInteractionModels[name]
	return ok
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
