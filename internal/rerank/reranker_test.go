package rerank

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/efebarandurmaz/tome/internal/llm"
	"github.com/efebarandurmaz/tome/internal/vector"
)

// mockProvider returns canned responses keyed by a substring of the prompt.
type mockProvider struct {
	response  string
	byContent map[string]string
	err       error
}

func (m *mockProvider) Complete(ctx context.Context, p *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	prompt := p.Messages[len(p.Messages)-1].Content
	for needle, resp := range m.byContent {
		if strings.Contains(prompt, needle) {
			return &llm.Response{Content: resp}, nil
		}
	}
	return &llm.Response{Content: m.response}, nil
}

func (m *mockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not supported")
}

func (m *mockProvider) Name() string { return "mock" }

func TestParseScore(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     float64
	}{
		{"bare decimal", "0.75", 0.75},
		{"decimal with label", "Score: 0.9", 0.9},
		{"ten point scale", "7.5", 0.75},
		{"integer ten point scale", "8", 0.8},
		{"slightly above one clamps", "score: 1.2", 1.0},
		{"exactly ten", "10", 1.0},
		{"zero", "0.0", 0.0},
		{"thinking tags stripped", "<think>let me consider</think>0.8", 0.8},
		{"keyword highly relevant", "This document is highly relevant.", 0.9},
		{"keyword partially relevant", "partially relevant at best", 0.5},
		{"keyword not relevant", "not relevant to the question", 0.2},
		{"keyword off-topic", "completely off-topic", 0.2},
		{"keyword relevant", "the document is relevant", 0.7},
		{"keyword useful", "contains useful information", 0.7},
		{"garbage", "I cannot judge this", 0.5},
		{"empty", "", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseScore(tt.response)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ParseScore(%q) = %v, want %v", tt.response, got, tt.want)
			}
		})
	}
}

func TestRerank_ScoreFusion(t *testing.T) {
	provider := &mockProvider{response: "0.6"}
	r := New(provider, DefaultConfig(), zerolog.Nop())

	results := r.Rerank(context.Background(), "query", []vector.SearchResult{
		{ID: "c1", DocID: "doc-1", Content: "content", Score: 0.8},
	}, 0)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	got := results[0]
	if got.OriginalScore != 0.8 {
		t.Errorf("original score = %v", got.OriginalScore)
	}
	if got.RerankScore != 0.6 {
		t.Errorf("rerank score = %v", got.RerankScore)
	}
	want := 0.3*0.8 + 0.7*0.6
	if math.Abs(got.FinalScore-want) > 1e-9 {
		t.Errorf("final score = %v, want %v", got.FinalScore, want)
	}
}

func TestRerank_ProviderFailureIsNeutral(t *testing.T) {
	provider := &mockProvider{err: errors.New("model unavailable")}
	r := New(provider, DefaultConfig(), zerolog.Nop())

	results := r.Rerank(context.Background(), "query", []vector.SearchResult{
		{ID: "c1", DocID: "doc-1", Content: "content", Score: 0.9},
	}, 0)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].RerankScore != 0.5 {
		t.Errorf("rerank score = %v, want neutral 0.5", results[0].RerankScore)
	}
}

func TestRerank_SortsByFinalScore(t *testing.T) {
	provider := &mockProvider{byContent: map[string]string{
		"about cats": "0.2",
		"about dogs": "0.9",
	}}
	r := New(provider, DefaultConfig(), zerolog.Nop())

	results := r.Rerank(context.Background(), "dogs", []vector.SearchResult{
		{ID: "c1", DocID: "cats", Content: "about cats", Score: 0.9},
		{ID: "c2", DocID: "dogs", Content: "about dogs", Score: 0.5},
	}, 0)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// dogs: 0.3*0.5 + 0.7*0.9 = 0.78; cats: 0.3*0.9 + 0.7*0.2 = 0.41
	if results[0].DocID != "dogs" {
		t.Errorf("first result = %s, want dogs", results[0].DocID)
	}
}

func TestRerank_TopKTruncates(t *testing.T) {
	provider := &mockProvider{response: "0.5"}
	r := New(provider, DefaultConfig(), zerolog.Nop())

	candidates := []vector.SearchResult{
		{ID: "c1", DocID: "a", Content: "a", Score: 0.9},
		{ID: "c2", DocID: "b", Content: "b", Score: 0.8},
		{ID: "c3", DocID: "c", Content: "c", Score: 0.7},
	}

	results := r.Rerank(context.Background(), "q", candidates, 2)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].DocID != "a" || results[1].DocID != "b" {
		t.Errorf("unexpected order: %s, %s", results[0].DocID, results[1].DocID)
	}
}

func TestRerank_EmptyCandidates(t *testing.T) {
	r := New(&mockProvider{response: "0.5"}, DefaultConfig(), zerolog.Nop())
	results := r.Rerank(context.Background(), "q", nil, 5)
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestNew_ZeroWeightsGetDefaults(t *testing.T) {
	r := New(&mockProvider{}, Config{}, zerolog.Nop())
	if r.cfg.WeightOriginal != 0.3 || r.cfg.WeightRerank != 0.7 {
		t.Errorf("weights = %v, %v", r.cfg.WeightOriginal, r.cfg.WeightRerank)
	}
}

func TestBuildPrompt_TruncatesContent(t *testing.T) {
	long := strings.Repeat("x", 1000)
	prompt := buildPrompt("q", vector.SearchResult{Content: long})
	if strings.Contains(prompt, long) {
		t.Error("content was not truncated")
	}
	if !strings.Contains(prompt, strings.Repeat("x", 800)+"...") {
		t.Error("expected 800-character preview with ellipsis")
	}
	if !strings.Contains(prompt, "untitled") {
		t.Error("expected untitled fallback for missing title")
	}
}
