package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/efebarandurmaz/tome/internal/chunk"
	"github.com/efebarandurmaz/tome/internal/config"
	"github.com/efebarandurmaz/tome/internal/docgraph"
	"github.com/efebarandurmaz/tome/internal/ingest"
	"github.com/efebarandurmaz/tome/internal/llm"
	"github.com/efebarandurmaz/tome/internal/llm/anthropic"
	"github.com/efebarandurmaz/tome/internal/llm/openai"
	"github.com/efebarandurmaz/tome/internal/observability"
	"github.com/efebarandurmaz/tome/internal/vector"
	temporalmod "github.com/efebarandurmaz/tome/internal/temporal"

	temporalclient "go.temporal.io/sdk/client"
)

func main() {
	configPath := "configs/tome.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	ctx := context.Background()

	// Build LLM provider via factory; only embedding is needed here.
	factory := llm.NewFactory()
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
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
		log.Fatal().Err(err).Msg("creating LLM provider")
	}
	if provider == nil {
		log.Fatal().Msg("an LLM provider is required for embeddings")
	}
	provider = llm.WrapWithRetry(provider, pcfg)

	repo, err := vector.NewQdrant(ctx, cfg.Vector.Host, cfg.Vector.Port)
	if err != nil {
		log.Fatal().Err(err).Msg("vector store")
	}
	defer repo.Close()

	chunker, err := chunk.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		log.Fatal().Err(err).Msg("chunking config")
	}

	var graph docgraph.Repository
	if cfg.Graph.URI != "" {
		graph, err = docgraph.NewNeo4j(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
		if err != nil {
			log.Fatal().Err(err).Msg("graph")
		}
		defer graph.Close(ctx)
	}

	indexer := ingest.New(provider, repo, chunker, graph, ingest.Config{
		Collection: cfg.Vector.Collection,
		VectorSize: cfg.Vector.VectorSize,
	}, log)

	temporalmod.SetDependencies(&temporalmod.Dependencies{
		Indexer: indexer,
	})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("temporal client")
	}
	defer c.Close()

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("worker")
	}

	log.Info().Str("task_queue", cfg.Temporal.TaskQueue).Msg("worker started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	w.Stop()
	log.Info().Msg("worker stopped")
}
