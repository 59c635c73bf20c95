package search

import "errors"

// Pipeline failure taxonomy. Validation failures are the caller's fault and
// never retried; embedding and index failures are terminal for the request
// but eligible for caller-side retry. Rerank model failures are absorbed
// inside the pipeline and never surface here.
var (
	ErrValidation = errors.New("validation failed")
	ErrEmbedding  = errors.New("embedding failed")
	ErrIndex      = errors.New("vector search failed")
)
