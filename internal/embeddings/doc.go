// Package embeddings provides local embedding model backends.
//
// Three model categories are supported: dense (FastEmbed ONNX models),
// sparse (SPLADE-style masked-LM models), and late-interaction
// (ColBERT-style per-token models). Dense models run through
// fastembed-go; sparse and late-interaction models run through raw
// ONNX Runtime sessions with HuggingFace tokenizers.
package embeddings
