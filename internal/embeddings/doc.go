// Package embeddings turns memory text into fixed-dimension vectors.
//
// Three providers are available, selected by name at startup:
//   - fastembed: local ONNX models via fastembed-go (requires cgo)
//   - tei: an external Text Embeddings Inference HTTP service
//   - hash: a deterministic feature-hashing embedder for offline use and tests
//
// A provider's dimension is fixed for its lifetime; vector indexes bind to it.
package embeddings
