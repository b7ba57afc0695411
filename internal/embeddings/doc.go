// Package embeddings provides the embedding capability used to index and
// query chunks.
//
// Providers:
//   - tei: HuggingFace text-embeddings-inference over HTTP
//   - openai: any OpenAI-compatible /embeddings endpoint via langchaingo
//   - fastembed: local ONNX models (cgo builds only)
//   - hash: deterministic feature hashing for offline development and tests
package embeddings
