package docgraph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jRepository implements Repository using Neo4j.
type Neo4jRepository struct {
	driver neo4j.DriverWithContext
}

// NewNeo4j creates a Neo4j-backed repository.
func NewNeo4j(ctx context.Context, uri, username, password string) (*Neo4jRepository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Neo4jRepository{driver: driver}, nil
}

func (r *Neo4jRepository) RecordDocument(ctx context.Context, docID string, metadata map[string]string, chunkIDs []string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			"MERGE (d:Document {doc_id: $doc_id}) SET d.title = $title, d.source = $source",
			map[string]any{
				"doc_id": docID,
				"title":  metadata["title"],
				"source": metadata["source"],
			})
		if err != nil {
			return nil, err
		}
		for i, chunkID := range chunkIDs {
			_, err := tx.Run(ctx,
				"MERGE (c:Chunk {chunk_id: $chunk_id}) SET c.chunk_index = $index "+
					"MERGE (d:Document {doc_id: $doc_id}) "+
					"MERGE (d)-[:CONTAINS]->(c)",
				map[string]any{"chunk_id": chunkID, "index": i, "doc_id": docID})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("record document %s: %w", docID, err)
	}
	return nil
}

func (r *Neo4jRepository) DocumentChunks(ctx context.Context, docID string) ([]string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx,
			"MATCH (d:Document {doc_id: $doc_id})-[:CONTAINS]->(c:Chunk) "+
				"RETURN c.chunk_id ORDER BY c.chunk_index",
			map[string]any{"doc_id": docID})
		if err != nil {
			return nil, err
		}
		var ids []string
		for result.Next(ctx) {
			if v, ok := result.Record().Values[0].(string); ok {
				ids = append(ids, v)
			}
		}
		return ids, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("document chunks %s: %w", docID, err)
	}
	return records.([]string), nil
}

func (r *Neo4jRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ Repository = (*Neo4jRepository)(nil)
