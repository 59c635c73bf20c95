package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/tome/internal/cache"
	"github.com/efebarandurmaz/tome/internal/chunk"
	"github.com/efebarandurmaz/tome/internal/citation"
	"github.com/efebarandurmaz/tome/internal/config"
	"github.com/efebarandurmaz/tome/internal/docgraph"
	"github.com/efebarandurmaz/tome/internal/ingest"
	"github.com/efebarandurmaz/tome/internal/llm"
	"github.com/efebarandurmaz/tome/internal/llm/anthropic"
	"github.com/efebarandurmaz/tome/internal/llm/openai"
	"github.com/efebarandurmaz/tome/internal/observability"
	"github.com/efebarandurmaz/tome/internal/rerank"
	"github.com/efebarandurmaz/tome/internal/search"
	"github.com/efebarandurmaz/tome/internal/server"
	"github.com/efebarandurmaz/tome/internal/vector"
)

const version = "0.1.0"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "tome",
		Short: "Document retrieval pipeline with semantic search and LLM reranking",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/tome.yaml", "Config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	var (
		inputPath string
		docID     string
		title     string
		source    string
	)
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Chunk, embed and index a document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(configPath, inputPath, docID, title, source)
		},
	}
	indexCmd.Flags().StringVar(&inputPath, "input", "", "Input file path")
	indexCmd.Flags().StringVar(&docID, "doc-id", "", "Document ID (defaults to file name)")
	indexCmd.Flags().StringVar(&title, "title", "", "Document title")
	indexCmd.Flags().StringVar(&source, "source", "", "Document source")
	_ = indexCmd.MarkFlagRequired("input")

	var (
		topK     int
		noCache  bool
		rerankOn bool
		cite     bool
		jsonOut  bool
	)
	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(configPath, strings.Join(args, " "), topK, noCache, rerankOn, cite, jsonOut)
		},
	}
	searchCmd.Flags().IntVar(&topK, "top-k", 0, "Number of results (0 = config default)")
	searchCmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the result cache")
	searchCmd.Flags().BoolVar(&rerankOn, "rerank", false, "Rerank results with the LLM")
	searchCmd.Flags().BoolVar(&cite, "cite", false, "Print results as citations")
	searchCmd.Flags().BoolVar(&jsonOut, "json", false, "Output results as JSON")

	var addr string
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the result cache of a running server",
	}
	cacheCmd.PersistentFlags().StringVar(&addr, "addr", "http://localhost:8080", "Server base URL")

	cacheStatsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cacheRequest(http.MethodGet, addr+"/v1/cache/stats")
		},
	}
	cacheSweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cacheRequest(http.MethodPost, addr+"/v1/cache/sweep")
		},
	}
	cacheClearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cacheRequest(http.MethodPost, addr+"/v1/cache/clear")
		},
	}
	cacheCmd.AddCommand(cacheStatsCmd, cacheSweepCmd, cacheClearCmd)

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-14s %s\n", name, url)
			}
			fmt.Println("  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println()
			fmt.Println("Configure in tome.yaml or via environment:")
			fmt.Println("  TOME_LLM_PROVIDER=ollama")
			fmt.Println("  TOME_LLM_MODEL=qwen2.5:14b")
			fmt.Println("  TOME_LLM_EMBED_MODEL=nomic-embed-text")
		},
	}

	rootCmd.AddCommand(serveCmd, indexCmd, searchCmd, cacheCmd, providersCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// stack holds the wired application components.
type stack struct {
	cfg      *config.Config
	provider llm.Provider
	repo     *vector.QdrantRepository
	cache    *cache.Cache
	pipeline *search.Pipeline
	indexer  *ingest.Indexer
	graph    docgraph.Repository
	tracing  *observability.TracerProvider
	log      zerolog.Logger
}

func buildStack(ctx context.Context, configPath string) (*stack, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)

	tracing, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "tome",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Server.OTLPEndpoint,
		SampleRate:     1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("an LLM provider is required for embeddings (set llm.provider)")
	}

	repo, err := vector.NewQdrant(ctx, cfg.Vector.Host, cfg.Vector.Port)
	if err != nil {
		return nil, err
	}

	resultCache := cache.New(cache.Config{
		Capacity:   cfg.Cache.Capacity,
		DefaultTTL: cfg.Cache.DefaultTTL,
	})

	reranker := rerank.New(provider, rerank.Config{
		WeightOriginal: cfg.Rerank.WeightOriginal,
		WeightRerank:   cfg.Rerank.WeightRerank,
	}, log)

	pipeline := search.New(provider, repo, resultCache, reranker, search.Config{
		Collection:     cfg.Vector.Collection,
		TopK:           cfg.Search.TopK,
		ScoreThreshold: cfg.Search.ScoreThreshold,
		CallTimeout:    cfg.Search.CallTimeout,
	}, log, tracing.Tracer())

	chunker, err := chunk.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, fmt.Errorf("chunking config: %w", err)
	}

	var graph docgraph.Repository
	if cfg.Graph.URI != "" {
		graph, err = docgraph.NewNeo4j(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
		if err != nil {
			return nil, fmt.Errorf("graph: %w", err)
		}
	}

	indexer := ingest.New(provider, repo, chunker, graph, ingest.Config{
		Collection: cfg.Vector.Collection,
		VectorSize: cfg.Vector.VectorSize,
	}, log)

	return &stack{
		cfg:      cfg,
		provider: provider,
		repo:     repo,
		cache:    resultCache,
		pipeline: pipeline,
		indexer:  indexer,
		graph:    graph,
		tracing:  tracing,
		log:      log,
	}, nil
}

func (s *stack) close(ctx context.Context) {
	if s.graph != nil {
		if err := s.graph.Close(ctx); err != nil {
			s.log.Warn().Err(err).Msg("closing graph")
		}
	}
	if err := s.repo.Close(); err != nil {
		s.log.Warn().Err(err).Msg("closing vector store")
	}
	if err := s.tracing.Shutdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("closing tracing")
	}
}

// buildProvider constructs the configured LLM provider with retry and
// rate limiting applied.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	factory := llm.NewFactory()
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	// All OpenAI-compatible providers
	for _, p := range []struct{ name, url string }{
		{"ollama", llm.KnownProviders["ollama"]},
		{"groq", llm.KnownProviders["groq"]},
		{"together", llm.KnownProviders["together"]},
		{"deepseek", llm.KnownProviders["deepseek"]},
		{"custom", ""},
	} {
		p := p
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			return openai.New(c.APIKey, c.Model, base, c.EmbedModel), nil
		})
	}

	pcfg := llm.ProviderConfig{
		Provider:   cfg.LLM.Provider,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		BaseURL:    cfg.LLM.BaseURL,
		EmbedModel: cfg.LLM.EmbedModel,
	}
	provider, err := factory.Create(pcfg)
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	if provider == nil {
		return nil, nil
	}

	provider = llm.WrapWithRetry(provider, pcfg)

	if cfg.LLM.RequestsPerMinute > 0 || cfg.LLM.TokensPerMinute > 0 {
		provider = llm.WithRateLimit(provider, &llm.RateLimitConfig{
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
			TokensPerMinute:   cfg.LLM.TokensPerMinute,
			BurstSize:         3,
		})
	}

	return provider, nil
}

func runServe(configPath string) error {
	ctx := context.Background()

	s, err := buildStack(ctx, configPath)
	if err != nil {
		return err
	}

	health := server.NewHealth(version)
	health.RegisterCheck("qdrant", server.QdrantHealthChecker(s.repo.Ping))

	metrics := observability.NewMetricsRegistry()
	api := server.NewAPI(s.pipeline, s.indexer, s.cache, health, metrics, s.log)

	shutdown := server.NewShutdownHandler(nil, s.log)
	shutdown.RegisterHook("http-server", 10, api.Shutdown)
	shutdown.RegisterHook("stores", 90, func(ctx context.Context) error {
		s.close(ctx)
		return nil
	})
	shutdown.Start()

	go func() {
		<-shutdown.ShutdownCh()
		health.SetReady(false)
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := api.ListenAndServe(s.cfg.Server.Addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	health.SetReady(true)
	s.log.Info().Str("addr", s.cfg.Server.Addr).Msg("server started")

	select {
	case err := <-errCh:
		return err
	case <-shutdown.ShutdownCh():
		shutdown.Wait()
		return nil
	}
}

func runIndex(configPath, inputPath, docID, title, source string) error {
	ctx := context.Background()

	s, err := buildStack(ctx, configPath)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	content, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	if docID == "" {
		docID = strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	}

	metadata := map[string]string{}
	if title != "" {
		metadata["title"] = title
	}
	if source != "" {
		metadata["source"] = source
	}

	start := time.Now()
	result, err := s.indexer.Index(ctx, ingest.Request{
		DocID:    docID,
		Content:  string(content),
		Metadata: metadata,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %s: %d chunks in %s\n", result.DocID, result.ChunksCreated, time.Since(start).Round(time.Millisecond))
	return nil
}

func runSearch(configPath, query string, topK int, noCache, rerankOn, cite, jsonOut bool) error {
	ctx := context.Background()

	s, err := buildStack(ctx, configPath)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	req := search.NewRequest(query)
	req.TopK = topK
	req.UseCache = !noCache
	req.EnableReranking = rerankOn

	resp, err := s.pipeline.Search(ctx, req)
	if err != nil {
		return err
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(resp)
	}

	if cite {
		return printCitations(resp)
	}

	fmt.Printf("%d results (%d matches", len(resp.Results), resp.TotalMatches)
	if resp.FromCache {
		fmt.Print(", cached")
	}
	fmt.Println(")")
	for i, r := range resp.Results {
		fmt.Printf("\n%d. [%s] score %.3f\n", i+1, r.DocID, r.Score)
		fmt.Printf("   %s\n", citation.Truncate(r.Content, citation.DefaultSnippetLength))
	}
	return nil
}

func printCitations(resp *search.Response) error {
	results := make([]vector.SearchResult, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = vector.SearchResult{
			DocID:    r.DocID,
			Content:  r.Content,
			Score:    r.Score,
			Metadata: r.Metadata,
		}
	}
	_, formatted, err := citation.Extract(results, citation.StyleMarkdown)
	if err != nil {
		return err
	}
	for _, f := range formatted {
		fmt.Println(f.Markdown)
		fmt.Println()
	}
	return nil
}

func cacheRequest(method, url string) error {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if len(body) > 0 {
		fmt.Println(strings.TrimSpace(string(body)))
	} else {
		fmt.Println("OK")
	}
	return nil
}
