// Package search composes the retrieval pipeline: cache lookup, query
// embedding, vector search, per-document deduplication, optional LLM
// reranking, and cache population.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/singleflight"

	"github.com/efebarandurmaz/tome/internal/cache"
	"github.com/efebarandurmaz/tome/internal/llm"
	"github.com/efebarandurmaz/tome/internal/rerank"
	"github.com/efebarandurmaz/tome/internal/vector"
)

// Config holds pipeline defaults applied to requests that omit them.
type Config struct {
	Collection     string        // default "documents"
	TopK           int           // default 5
	ScoreThreshold float64       // default 0.7
	CallTimeout    time.Duration // bound on each external call (default 30s)
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		Collection:     "documents",
		TopK:           5,
		ScoreThreshold: 0.7,
		CallTimeout:    30 * time.Second,
	}
}

// Request is one search invocation.
type Request struct {
	Query           string            `json:"query"`
	TopK            int               `json:"top_k"`
	Filters         map[string]string `json:"filters"`
	UseCache        bool              `json:"use_cache"`
	CacheTTL        time.Duration     `json:"cache_ttl"`
	EnableReranking bool              `json:"enable_reranking"`
	Collection      string            `json:"collection"`
}

// NewRequest builds a Request with defaults (cache on, reranking off).
func NewRequest(query string) Request {
	return Request{Query: query, UseCache: true}
}

// ResultItem is one passage in a response.
type ResultItem struct {
	DocID    string            `json:"doc_id"`
	ChunkID  string            `json:"chunk_id"`
	Content  string            `json:"content"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata"`
}

// Response is the outcome of a successful pipeline run.
type Response struct {
	Results      []ResultItem `json:"results"`
	TotalMatches int          `json:"total_matches"`
	FromCache    bool         `json:"from_cache"`
	CacheStats   cache.Stats  `json:"cache_stats"`
}

// Pipeline executes search requests. Requests run concurrently; the cache is
// the only shared mutable state and no cache lock is ever held across the
// embedding, vector search, or rerank calls.
type Pipeline struct {
	provider llm.Provider
	repo     vector.Repository
	cache    *cache.Cache
	reranker *rerank.Reranker
	cfg      Config
	log      zerolog.Logger
	tracer   trace.Tracer
	flight   singleflight.Group
}

// New creates a Pipeline. The cache is constructed and owned by the caller;
// reranker may be nil, in which case rerank requests degrade to plain search.
func New(provider llm.Provider, repo vector.Repository, c *cache.Cache, reranker *rerank.Reranker, cfg Config, log zerolog.Logger, tracer trace.Tracer) *Pipeline {
	if cfg.Collection == "" {
		cfg.Collection = "documents"
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("tome")
	}
	return &Pipeline{
		provider: provider,
		repo:     repo,
		cache:    c,
		reranker: reranker,
		cfg:      cfg,
		log:      log,
		tracer:   tracer,
	}
}

// Cache exposes the pipeline's cache for management surfaces (stats, sweep).
func (p *Pipeline) Cache() *cache.Cache { return p.cache }

// Search runs the pipeline for one request. On a cache hit it returns
// immediately; on a miss it embeds, searches, deduplicates, optionally
// reranks, stores the result, and returns it. Identical concurrent misses are
// coalesced so only one executes the full path.
func (p *Pipeline) Search(ctx context.Context, req Request) (*Response, error) {
	ctx, span := p.tracer.Start(ctx, "search.pipeline")
	defer span.End()

	if req.Query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrValidation)
	}
	if req.TopK <= 0 {
		req.TopK = p.cfg.TopK
	}
	if req.Collection == "" {
		req.Collection = p.cfg.Collection
	}

	key := cache.Key(req.Query, req.TopK, req.Filters, req.Collection)
	span.SetAttributes(attribute.String("cache.key", key), attribute.Int("top_k", req.TopK))

	if req.UseCache {
		if resp, ok := p.cacheLookup(key); ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			p.log.Debug().Str("key", key).Msg("cache hit")
			return resp, nil
		}
	}

	v, err, shared := p.flight.Do(key, func() (any, error) {
		return p.execute(ctx, req, key)
	})
	if err != nil {
		return nil, err
	}

	resp := v.(*Response)
	if shared {
		// Coalesced callers get a copy so FromCache stays per-response.
		cp := *resp
		resp = &cp
	}
	return resp, nil
}

// cacheLookup returns a per-caller copy of the cached response. A payload of
// the wrong type is treated as a miss and dropped rather than trusted.
func (p *Pipeline) cacheLookup(key string) (*Response, bool) {
	v, ok := p.cache.Get(key)
	if !ok {
		return nil, false
	}
	cached, ok := v.(*Response)
	if !ok {
		p.log.Warn().Str("key", key).Msg("malformed cache payload, invalidating")
		p.cache.Invalidate(key)
		return nil, false
	}

	resp := *cached
	resp.FromCache = true
	resp.CacheStats = p.cache.Stats()
	return &resp, true
}

// execute runs the full embed -> search -> dedupe -> rerank path and
// populates the cache on success.
func (p *Pipeline) execute(ctx context.Context, req Request, key string) (*Response, error) {
	queryVector, err := p.embedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	matches, err := p.vectorSearch(ctx, req, queryVector)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndex, err)
	}

	deduped := Dedupe(matches)

	var items []ResultItem
	if req.EnableReranking && p.reranker != nil {
		items = p.rerankResults(ctx, req.Query, deduped, req.TopK)
	} else {
		items = toItems(deduped)
	}

	resp := &Response{
		Results:      items,
		TotalMatches: len(deduped),
	}

	if req.UseCache {
		p.cache.Set(key, resp, req.CacheTTL)
	}

	out := *resp
	out.CacheStats = p.cache.Stats()
	return &out, nil
}

func (p *Pipeline) embedQuery(ctx context.Context, query string) ([]float32, error) {
	ctx, span := p.tracer.Start(ctx, "search.embed")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	vectors, err := p.provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("provider returned no vectors")
	}
	return vectors[0], nil
}

func (p *Pipeline) vectorSearch(ctx context.Context, req Request, queryVector []float32) ([]vector.SearchResult, error) {
	ctx, span := p.tracer.Start(ctx, "search.vector")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	return p.repo.Search(ctx, vector.Query{
		Collection:     req.Collection,
		Vector:         queryVector,
		TopK:           req.TopK,
		ScoreThreshold: p.cfg.ScoreThreshold,
		Filters:        req.Filters,
	})
}

// rerankResults runs the optional rerank stage. Reranking is best-effort: the
// reranker absorbs model failures into neutral scores, so this stage can
// reorder but never fail the request.
func (p *Pipeline) rerankResults(ctx context.Context, query string, deduped []vector.SearchResult, topK int) []ResultItem {
	ctx, span := p.tracer.Start(ctx, "search.rerank")
	defer span.End()

	reranked := p.reranker.Rerank(ctx, query, deduped, topK)

	items := make([]ResultItem, len(reranked))
	for i, r := range reranked {
		items[i] = ResultItem{
			DocID:    r.DocID,
			ChunkID:  r.ChunkID,
			Content:  r.Content,
			Score:    r.FinalScore,
			Metadata: r.Metadata,
		}
	}
	return items
}

func toItems(results []vector.SearchResult) []ResultItem {
	items := make([]ResultItem, len(results))
	for i, r := range results {
		items[i] = ResultItem{
			DocID:    r.DocID,
			ChunkID:  r.ID,
			Content:  r.Content,
			Score:    r.Score,
			Metadata: r.Metadata,
		}
	}
	return items
}
