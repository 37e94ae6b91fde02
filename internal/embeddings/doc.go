// Package embeddings turns text into dense vectors.
//
// Providers:
//   - hash: offline feature hashing, deterministic, no model
//   - tei: HuggingFace Text Embeddings Inference over HTTP
//   - openai: OpenAI embeddings via the official SDK
//   - openai-compatible: any OpenAI-style endpoint via langchaingo
//   - ollama: local Ollama server
//   - fastembed: in-process ONNX models (cgo builds only)
//
// NewProvider wraps the selected provider with Guard, which rate limits,
// records OpenTelemetry metrics, and enforces the contract the retriever
// depends on: one vector per input in input order, a single dimension,
// and every failure wrapped in ragerr.ErrEmbeddingService.
package embeddings
