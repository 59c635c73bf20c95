// Package temporal runs batch document ingestion as durable workflows.
package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// IngestionInput holds the workflow parameters: a batch of documents to
// chunk, embed and index.
type IngestionInput struct {
	Documents []DocumentInput
	// ContinueOnError keeps processing remaining documents after a failure.
	ContinueOnError bool
}

// DocumentInput is one document in an ingestion batch.
type DocumentInput struct {
	DocID    string
	Content  string
	Metadata map[string]string
}

// IngestionOutput holds the workflow result.
type IngestionOutput struct {
	DocumentsIndexed int
	ChunksCreated    int
	Failed           []string
}

// IngestionWorkflow indexes a batch of documents one at a time. Embedding
// calls dominate the runtime, so documents run sequentially rather than
// fanning out and overwhelming the embedding endpoint.
func IngestionWorkflow(ctx workflow.Context, input IngestionInput) (*IngestionOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	out := &IngestionOutput{}
	for _, doc := range input.Documents {
		var result IndexResult
		err := workflow.ExecuteActivity(ctx, IndexDocumentActivity, doc).Get(ctx, &result)
		if err != nil {
			if !input.ContinueOnError {
				return nil, fmt.Errorf("index document %s: %w", doc.DocID, err)
			}
			out.Failed = append(out.Failed, doc.DocID)
			continue
		}
		out.DocumentsIndexed++
		out.ChunksCreated += result.ChunksCreated
	}

	return out, nil
}
