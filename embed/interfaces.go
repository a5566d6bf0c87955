// Package embed defines the text embedding surface the retrieval core
// consumes and provides OpenAI-compatible and mock implementations in its
// subpackages.
package embed

import "context"

// Embedder generates vector embeddings from text for semantic similarity
// search. Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in
	// a batch, in input order. Batch calls are cheaper than repeated
	// EmbedText calls.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
