// Package vectorstore holds the vector index and its on-disk store.
//
// The index is a single chromem-go collection of chunks with precomputed
// embeddings; it never calls an embedder itself. Similarity is cosine on
// normalized vectors, reported as a score in [0, 1]:
//
//	score = (1 + cosine) / 2
//
// so 1 means identical direction, 0.5 orthogonal and 0 opposite.
//
// Persistence writes two files into a directory, each via temp file,
// fsync and rename:
//
//	index.gob[.gz]              chromem export (optionally gzip / AES-GCM)
//	vector_store_metadata.json  advisory sidecar (counts, sources, categories)
package vectorstore
