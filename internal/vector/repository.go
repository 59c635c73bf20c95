package vector

import "context"

// Document is an embedded passage ready for indexing.
type Document struct {
	ID         string
	Content    string
	Vector     []float32
	DocID      string
	ChunkIndex int
	Metadata   map[string]string
}

// SearchResult is a single match from a similarity search.
type SearchResult struct {
	ID         string
	Score      float64
	Content    string
	DocID      string
	ChunkIndex int
	Metadata   map[string]string
}

// Query describes one similarity search.
type Query struct {
	Collection     string
	Vector         []float32
	TopK           int
	ScoreThreshold float64
	// Filters are exact-match conditions on payload fields; all must match.
	Filters map[string]string
}

// Repository provides vector storage and similarity search.
type Repository interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, name string, vectorSize int) error
	// Upsert inserts or updates documents in the collection.
	Upsert(ctx context.Context, collection string, docs []Document) error
	// Search finds the most similar documents for the query.
	Search(ctx context.Context, q Query) ([]SearchResult, error)
	// Close releases resources.
	Close() error
}
