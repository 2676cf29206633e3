// Package http provides the HTTP API for embedd.
package http

import "github.com/fyrsmithlabs/embedd/internal/embeddings"

// EmbedRequest is the request body shared by the three embedding
// endpoints. Model is optional; each endpoint applies its own default.
type EmbedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

// DenseEmbedResponse is the response body for POST /embed.
type DenseEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// SparseEmbedResponse is the response body for POST /sparse-embed.
// Each element serializes as an index-to-weight object.
type SparseEmbedResponse struct {
	Embeddings []embeddings.SparseVector `json:"embeddings"`
}

// LateInteractionEmbedResponse is the response body for
// POST /late-interaction-embed.
type LateInteractionEmbedResponse struct {
	Embeddings [][][]float32 `json:"embeddings"`
}

// RootResponse is the response body for GET /.
type RootResponse struct {
	Message string `json:"message"`
}

// ModelsResponse is the response body for GET /models, enumerating
// supported model names per category.
type ModelsResponse struct {
	Dense  []string `json:"dense"`
	Sparse []string `json:"sparse"`
	Rerank []string `json:"rerank"`
}
