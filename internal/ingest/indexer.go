// Package ingest turns raw document text into indexed, embedded chunks.
package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/efebarandurmaz/tome/internal/chunk"
	"github.com/efebarandurmaz/tome/internal/docgraph"
	"github.com/efebarandurmaz/tome/internal/llm"
	"github.com/efebarandurmaz/tome/internal/vector"
)

// Request is one document to index.
type Request struct {
	Content  string            `json:"content"`
	DocID    string            `json:"doc_id"`
	Metadata map[string]string `json:"metadata"`
}

// Result reports what indexing produced.
type Result struct {
	ChunksCreated int      `json:"chunks_created"`
	ChunkIDs      []string `json:"chunk_ids"`
	DocID         string   `json:"doc_id"`
}

// Config configures an Indexer.
type Config struct {
	Collection string
	VectorSize int // embedding dimension, used when creating the collection
}

// DefaultConfig matches the default embedding model dimension.
func DefaultConfig() Config {
	return Config{Collection: "documents", VectorSize: 768}
}

// Indexer chunks, embeds and upserts documents into the vector index, and
// optionally records document->chunk provenance in the graph store.
type Indexer struct {
	provider llm.Provider
	repo     vector.Repository
	chunker  *chunk.Chunker
	graph    docgraph.Repository // nil disables provenance recording
	cfg      Config
	log      zerolog.Logger
}

// New creates an Indexer. graph may be nil.
func New(provider llm.Provider, repo vector.Repository, chunker *chunk.Chunker, graph docgraph.Repository, cfg Config, log zerolog.Logger) *Indexer {
	if cfg.Collection == "" {
		cfg.Collection = "documents"
	}
	if cfg.VectorSize <= 0 {
		cfg.VectorSize = 768
	}
	return &Indexer{
		provider: provider,
		repo:     repo,
		chunker:  chunker,
		graph:    graph,
		cfg:      cfg,
		log:      log,
	}
}

// Index chunks the document, embeds every chunk, and upserts the result.
// Point IDs are derived deterministically from chunk IDs so re-indexing
// identical input overwrites rather than duplicates.
func (ix *Indexer) Index(ctx context.Context, req Request) (*Result, error) {
	if req.Content == "" {
		return nil, fmt.Errorf("no content provided for indexing")
	}
	if req.DocID == "" {
		req.DocID = "unknown"
	}

	chunks, err := ix.chunker.Split(req.Content, req.DocID, req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("chunking %s: %w", req.DocID, err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := ix.provider.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", req.DocID, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(chunks))
	}

	if err := ix.repo.EnsureCollection(ctx, ix.cfg.Collection, ix.cfg.VectorSize); err != nil {
		return nil, fmt.Errorf("ensuring collection: %w", err)
	}

	docs := make([]vector.Document, len(chunks))
	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		docs[i] = vector.Document{
			ID:         pointID(c.ChunkID),
			Content:    c.Content,
			Vector:     vectors[i],
			DocID:      c.DocID,
			ChunkIndex: c.ChunkIndex,
			Metadata:   c.Metadata,
		}
		chunkIDs[i] = c.ChunkID
	}

	if err := ix.repo.Upsert(ctx, ix.cfg.Collection, docs); err != nil {
		return nil, fmt.Errorf("upserting %s: %w", req.DocID, err)
	}

	if ix.graph != nil {
		if err := ix.graph.RecordDocument(ctx, req.DocID, req.Metadata, chunkIDs); err != nil {
			// Provenance is supplementary; indexing already succeeded.
			ix.log.Warn().Err(err).Str("doc_id", req.DocID).Msg("provenance recording failed")
		}
	}

	ix.log.Info().Str("doc_id", req.DocID).Int("chunks", len(chunks)).Msg("document indexed")

	return &Result{
		ChunksCreated: len(chunks),
		ChunkIDs:      chunkIDs,
		DocID:         req.DocID,
	}, nil
}

// pointID maps a chunk ID onto the UUID space Qdrant requires for point IDs.
// SHA1-based UUIDs keep the mapping deterministic.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}
