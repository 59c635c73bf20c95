package temporal

import (
	"context"
	"fmt"

	"github.com/efebarandurmaz/tome/internal/ingest"
)

// IndexResult is the serializable result of indexing one document.
type IndexResult struct {
	DocID         string
	ChunksCreated int
	ChunkIDs      []string
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Indexer *ingest.Indexer
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// IndexDocumentActivity chunks, embeds and stores one document.
func IndexDocumentActivity(ctx context.Context, doc DocumentInput) (IndexResult, error) {
	if deps == nil || deps.Indexer == nil {
		return IndexResult{}, fmt.Errorf("indexer not configured")
	}

	result, err := deps.Indexer.Index(ctx, ingest.Request{
		DocID:    doc.DocID,
		Content:  doc.Content,
		Metadata: doc.Metadata,
	})
	if err != nil {
		return IndexResult{}, err
	}

	return IndexResult{
		DocID:         result.DocID,
		ChunksCreated: result.ChunksCreated,
		ChunkIDs:      result.ChunkIDs,
	}, nil
}
