package search

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/efebarandurmaz/tome/internal/cache"
	"github.com/efebarandurmaz/tome/internal/llm"
	"github.com/efebarandurmaz/tome/internal/rerank"
	"github.com/efebarandurmaz/tome/internal/vector"
)

type fakeProvider struct {
	embedErr     error
	embedCalls   int
	completeResp string
}

func (f *fakeProvider) Complete(ctx context.Context, p *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	resp := f.completeResp
	if resp == "" {
		resp = "0.9"
	}
	return &llm.Response{Content: resp}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	f.embedCalls++
	return [][]float32{{0.1, 0.2, 0.3}}, nil
}

func (f *fakeProvider) Name() string { return "fake" }

type fakeRepo struct {
	results     []vector.SearchResult
	err         error
	searchCalls int
	lastQuery   vector.Query
}

func (f *fakeRepo) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	return nil
}

func (f *fakeRepo) Upsert(ctx context.Context, collection string, docs []vector.Document) error {
	return nil
}

func (f *fakeRepo) Search(ctx context.Context, q vector.Query) ([]vector.SearchResult, error) {
	f.searchCalls++
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeRepo) Close() error { return nil }

func newTestPipeline(provider *fakeProvider, repo *fakeRepo, reranker *rerank.Reranker) *Pipeline {
	c := cache.New(cache.Config{Capacity: 100})
	return New(provider, repo, c, reranker, Config{}, zerolog.Nop(), nil)
}

func sampleResults() []vector.SearchResult {
	return []vector.SearchResult{
		{ID: "c1", DocID: "doc-a", Content: "alpha", Score: 0.9, Metadata: map[string]string{"title": "A"}},
		{ID: "c2", DocID: "doc-b", Content: "beta", Score: 0.8},
	}
}

func TestSearch_EmptyQueryFails(t *testing.T) {
	p := newTestPipeline(&fakeProvider{}, &fakeRepo{}, nil)

	_, err := p.Search(context.Background(), NewRequest(""))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestSearch_HappyPath(t *testing.T) {
	repo := &fakeRepo{results: sampleResults()}
	p := newTestPipeline(&fakeProvider{}, repo, nil)

	resp, err := p.Search(context.Background(), NewRequest("what is alpha"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.TotalMatches != 2 {
		t.Errorf("total matches = %d", resp.TotalMatches)
	}
	if resp.FromCache {
		t.Error("fresh result marked as cached")
	}
	if resp.Results[0].ChunkID != "c1" || resp.Results[0].DocID != "doc-a" {
		t.Errorf("first result = %+v", resp.Results[0])
	}
	if resp.Results[0].Metadata["title"] != "A" {
		t.Errorf("metadata lost: %+v", resp.Results[0])
	}

	// Config defaults flow into the vector query.
	if repo.lastQuery.TopK != 5 {
		t.Errorf("top_k = %d, want default 5", repo.lastQuery.TopK)
	}
	if repo.lastQuery.Collection != "documents" {
		t.Errorf("collection = %q", repo.lastQuery.Collection)
	}
}

func TestSearch_CacheHit(t *testing.T) {
	repo := &fakeRepo{results: sampleResults()}
	p := newTestPipeline(&fakeProvider{}, repo, nil)

	req := NewRequest("query")
	first, err := p.Search(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if first.FromCache {
		t.Error("first call should not be cached")
	}

	second, err := p.Search(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !second.FromCache {
		t.Error("second call should hit the cache")
	}
	if repo.searchCalls != 1 {
		t.Errorf("vector search ran %d times, want 1", repo.searchCalls)
	}
	if len(second.Results) != len(first.Results) {
		t.Errorf("cached results differ: %d vs %d", len(second.Results), len(first.Results))
	}
	if second.CacheStats.Hits != 1 {
		t.Errorf("cache hits = %d, want 1", second.CacheStats.Hits)
	}
}

func TestSearch_CacheBypass(t *testing.T) {
	repo := &fakeRepo{results: sampleResults()}
	p := newTestPipeline(&fakeProvider{}, repo, nil)

	req := NewRequest("query")
	req.UseCache = false

	for i := 0; i < 2; i++ {
		resp, err := p.Search(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		if resp.FromCache {
			t.Error("bypassed request served from cache")
		}
	}
	if repo.searchCalls != 2 {
		t.Errorf("vector search ran %d times, want 2", repo.searchCalls)
	}
}

func TestSearch_EmbedFailure(t *testing.T) {
	provider := &fakeProvider{embedErr: errors.New("model down")}
	p := newTestPipeline(provider, &fakeRepo{}, nil)

	_, err := p.Search(context.Background(), NewRequest("query"))
	if !errors.Is(err, ErrEmbedding) {
		t.Errorf("error = %v, want ErrEmbedding", err)
	}
}

func TestSearch_IndexFailure(t *testing.T) {
	repo := &fakeRepo{err: errors.New("connection refused")}
	p := newTestPipeline(&fakeProvider{}, repo, nil)

	_, err := p.Search(context.Background(), NewRequest("query"))
	if !errors.Is(err, ErrIndex) {
		t.Errorf("error = %v, want ErrIndex", err)
	}
}

func TestSearch_FailuresAreNotCached(t *testing.T) {
	repo := &fakeRepo{err: errors.New("connection refused")}
	p := newTestPipeline(&fakeProvider{}, repo, nil)

	req := NewRequest("query")
	if _, err := p.Search(context.Background(), req); err == nil {
		t.Fatal("expected failure")
	}

	// Recovery: same request succeeds once the index is back.
	repo.err = nil
	repo.results = sampleResults()
	resp, err := p.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error after recovery: %v", err)
	}
	if resp.FromCache {
		t.Error("failed attempt must not have populated the cache")
	}
}

func TestSearch_DeduplicatesByDocument(t *testing.T) {
	repo := &fakeRepo{results: []vector.SearchResult{
		{ID: "c1", DocID: "doc-a", Score: 0.7},
		{ID: "c2", DocID: "doc-a", Score: 0.9},
		{ID: "c3", DocID: "doc-b", Score: 0.8},
	}}
	p := newTestPipeline(&fakeProvider{}, repo, nil)

	resp, err := p.Search(context.Background(), NewRequest("query"))
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 deduplicated results, got %d", len(resp.Results))
	}
	if resp.Results[0].ChunkID != "c2" {
		t.Errorf("kept chunk = %s, want best scoring c2", resp.Results[0].ChunkID)
	}
}

func TestSearch_RerankingFusesScores(t *testing.T) {
	provider := &fakeProvider{completeResp: "1.0"}
	repo := &fakeRepo{results: []vector.SearchResult{
		{ID: "c1", DocID: "doc-a", Content: "alpha", Score: 0.5},
	}}
	reranker := rerank.New(provider, rerank.DefaultConfig(), zerolog.Nop())
	p := newTestPipeline(provider, repo, reranker)

	req := NewRequest("query")
	req.EnableReranking = true

	resp, err := p.Search(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	// 0.3*0.5 + 0.7*1.0 = 0.85
	got := resp.Results[0].Score
	if got < 0.849 || got > 0.851 {
		t.Errorf("fused score = %v, want 0.85", got)
	}
}

func TestSearch_RerankingOffByDefault(t *testing.T) {
	provider := &fakeProvider{completeResp: "1.0"}
	repo := &fakeRepo{results: []vector.SearchResult{
		{ID: "c1", DocID: "doc-a", Content: "alpha", Score: 0.5},
	}}
	reranker := rerank.New(provider, rerank.DefaultConfig(), zerolog.Nop())
	p := newTestPipeline(provider, repo, reranker)

	resp, err := p.Search(context.Background(), NewRequest("query"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Results[0].Score != 0.5 {
		t.Errorf("score = %v, want untouched 0.5", resp.Results[0].Score)
	}
}

func TestSearch_MalformedCachePayload(t *testing.T) {
	repo := &fakeRepo{results: sampleResults()}
	p := newTestPipeline(&fakeProvider{}, repo, nil)

	req := NewRequest("query")
	key := cache.Key(req.Query, 5, nil, "documents")
	p.Cache().Set(key, "not a response", cache.NoExpiry)

	resp, err := p.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.FromCache {
		t.Error("malformed payload must be treated as a miss")
	}
	if repo.searchCalls != 1 {
		t.Errorf("vector search ran %d times, want 1", repo.searchCalls)
	}

	// The bad entry was replaced; the next call is a genuine hit.
	resp, err = p.Search(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.FromCache {
		t.Error("expected cache hit after repopulation")
	}
}

func TestSearch_EmptyResults(t *testing.T) {
	p := newTestPipeline(&fakeProvider{}, &fakeRepo{}, nil)

	resp, err := p.Search(context.Background(), NewRequest("query"))
	if err != nil {
		t.Fatalf("no matches must not be an error: %v", err)
	}
	if len(resp.Results) != 0 || resp.TotalMatches != 0 {
		t.Errorf("resp = %+v", resp)
	}
}
