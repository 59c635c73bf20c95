// Package rerank implements a second-pass relevance scoring of search results
// using an LLM judgment fused with the original vector-similarity score. The
// LLM signal is best-effort only: any failure or unparsable output falls back
// to a neutral score so reranking can never fail a request.
package rerank

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/tome/internal/llm"
	"github.com/efebarandurmaz/tome/internal/vector"
)

const (
	// neutralScore is used whenever the model fails or its output defies
	// parsing; it neither promotes nor demotes the candidate.
	neutralScore = 0.5

	// contentPreviewLimit caps how much candidate content goes into the
	// scoring prompt.
	contentPreviewLimit = 800

	// maxConcurrentScores bounds parallel model calls per rerank pass.
	maxConcurrentScores = 4
)

// Result is a rescored search result. Original results are never mutated;
// rescoring produces these instead.
type Result struct {
	DocID         string            `json:"doc_id"`
	ChunkID       string            `json:"chunk_id"`
	Content       string            `json:"content"`
	OriginalScore float64           `json:"original_score"`
	RerankScore   float64           `json:"rerank_score"`
	FinalScore    float64           `json:"final_score"`
	Metadata      map[string]string `json:"metadata"`
}

// Config configures a Reranker.
type Config struct {
	// WeightOriginal and WeightRerank control score fusion. They
	// conventionally sum to 1; defaults are 0.3 and 0.7.
	WeightOriginal float64
	WeightRerank   float64
}

// DefaultConfig weights the stable vector-similarity signal at 0.3 and the
// LLM judgment at 0.7.
func DefaultConfig() Config {
	return Config{WeightOriginal: 0.3, WeightRerank: 0.7}
}

// Reranker scores candidates against a query with an LLM.
type Reranker struct {
	provider llm.Provider
	cfg      Config
	log      zerolog.Logger
}

// New creates a Reranker.
func New(provider llm.Provider, cfg Config, log zerolog.Logger) *Reranker {
	if cfg.WeightOriginal == 0 && cfg.WeightRerank == 0 {
		cfg = DefaultConfig()
	}
	return &Reranker{provider: provider, cfg: cfg, log: log}
}

// Rerank scores every candidate, fuses the scores, and returns results sorted
// by final score descending (ties keep insertion order). topK > 0 truncates
// the output.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []vector.SearchResult, topK int) []Result {
	results := make([]Result, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentScores)
	for i, cand := range candidates {
		g.Go(func() error {
			score := r.relevanceScore(gctx, query, cand)
			results[i] = Result{
				DocID:         cand.DocID,
				ChunkID:       cand.ID,
				Content:       cand.Content,
				OriginalScore: cand.Score,
				RerankScore:   score,
				FinalScore:    r.cfg.WeightOriginal*cand.Score + r.cfg.WeightRerank*score,
				Metadata:      cand.Metadata,
			}
			return nil
		})
	}
	_ = g.Wait() // scoring errors degrade to the neutral score, never propagate

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})

	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results
}

// relevanceScore asks the model for a single relevance judgment. Model
// failures yield the neutral score.
func (r *Reranker) relevanceScore(ctx context.Context, query string, cand vector.SearchResult) float64 {
	prompt := buildPrompt(query, cand)

	resp, err := r.provider.Complete(ctx, llm.UserPrompt(prompt), &llm.RequestOptions{
		Temperature: llm.Float64(0.1), // low for consistency
		MaxTokens:   llm.Int(100),     // short for speed
	})
	if err != nil {
		r.log.Warn().Err(err).Str("doc_id", cand.DocID).Msg("rerank scoring failed, using neutral score")
		return neutralScore
	}

	score := ParseScore(resp.Content)
	r.log.Debug().Float64("score", score).Str("doc_id", cand.DocID).Msg("rerank score")
	return score
}

func buildPrompt(query string, cand vector.SearchResult) string {
	preview := cand.Content
	if len(preview) > contentPreviewLimit {
		preview = preview[:contentPreviewLimit] + "..."
	}

	title := cand.Metadata["title"]
	if title == "" {
		title = "untitled"
	}

	return fmt.Sprintf(`Evaluate how relevant this document is to the question.

Question: %s

Document: %s
Content: %s

Judge whether this document can answer the question. Give a relevance score:
- 0.0 to 0.3: not relevant or off-topic
- 0.4 to 0.6: partially relevant, partial information
- 0.7 to 0.8: relevant, contains useful information
- 0.9 to 1.0: highly relevant, answers the question directly

Reply with only the numeric score (e.g. 0.75)`, query, title, preview)
}

var numberPattern = regexp.MustCompile(`\d*\.\d+|\d+\.?\d*`)

// keywordScores maps relevance vocabulary to scores, checked in order of
// decreasing specificity so "highly relevant" and "not relevant" win over the
// bare "relevant" they contain.
var keywordScores = []struct {
	term  string
	score float64
}{
	{"highly relevant", 0.9},
	{"partially relevant", 0.5},
	{"not relevant", 0.2},
	{"off-topic", 0.2},
	{"relevant", 0.7},
	{"useful", 0.7},
}

// ParseScore extracts a relevance score in [0,1] from unstructured model
// output. The first numeric token wins; values just above 1 clamp to 1, while
// larger values are read as a 0-10 scale and divided by 10. Without a number
// it falls back to keyword matching, and failing that returns the neutral
// score.
func ParseScore(response string) float64 {
	response = strings.ToLower(strings.TrimSpace(llm.StripThinkingTags(response)))

	if m := numberPattern.FindString(response); m != "" {
		if score, err := strconv.ParseFloat(m, 64); err == nil {
			if score > 2.0 {
				score /= 10.0
			}
			if score > 1.0 {
				score = 1.0
			}
			if score < 0 {
				score = 0
			}
			return score
		}
	}

	for _, kw := range keywordScores {
		if strings.Contains(response, kw.term) {
			return kw.score
		}
	}

	return neutralScore
}
