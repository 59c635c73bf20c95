// Package docgraph records document provenance: which chunks each indexed
// document produced. The graph is supplementary to the vector index and lets
// operators trace a cited chunk back to its source document.
package docgraph

import "context"

// Repository stores document->chunk containment relations.
type Repository interface {
	// RecordDocument upserts a document node, its metadata, and CONTAINS
	// edges to every chunk.
	RecordDocument(ctx context.Context, docID string, metadata map[string]string, chunkIDs []string) error
	// DocumentChunks returns the chunk IDs recorded for a document.
	DocumentChunks(ctx context.Context, docID string) ([]string, error)
	// Close releases resources.
	Close(ctx context.Context) error
}
