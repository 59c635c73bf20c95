package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Vector   VectorConfig   `mapstructure:"vector"`
	Graph    GraphConfig    `mapstructure:"graph"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Search   SearchConfig   `mapstructure:"search"`
	Chunking ChunkingConfig `mapstructure:"chunking"`
	Rerank   RerankConfig   `mapstructure:"rerank"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

type LLMConfig struct {
	Provider          string `mapstructure:"provider"`
	Model             string `mapstructure:"model"`
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	EmbedModel        string `mapstructure:"embed_model"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	TokensPerMinute   int    `mapstructure:"tokens_per_minute"`
}

type VectorConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	VectorSize int    `mapstructure:"vector_size"`
}

type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type CacheConfig struct {
	Capacity   int           `mapstructure:"capacity"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

type SearchConfig struct {
	TopK           int           `mapstructure:"top_k"`
	ScoreThreshold float64       `mapstructure:"score_threshold"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
}

type ChunkingConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

type RerankConfig struct {
	WeightOriginal float64 `mapstructure:"weight_original"`
	WeightRerank   float64 `mapstructure:"weight_rerank"`
}

type ServerConfig struct {
	Addr         string `mapstructure:"addr"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}

	if c.Chunking.Size > 0 && c.Chunking.Overlap >= c.Chunking.Size {
		warnings = append(warnings, fmt.Sprintf("chunking overlap %d must be smaller than size %d", c.Chunking.Overlap, c.Chunking.Size))
	}

	if c.Search.ScoreThreshold < 0 || c.Search.ScoreThreshold > 1 {
		warnings = append(warnings, fmt.Sprintf("search score_threshold %.2f is outside [0, 1]", c.Search.ScoreThreshold))
	}

	if w := c.Rerank.WeightOriginal + c.Rerank.WeightRerank; w != 0 && (w < 0.99 || w > 1.01) {
		warnings = append(warnings, fmt.Sprintf("rerank weights sum to %.2f, conventionally 1.0", w))
	}

	return warnings
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("TOME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.base_url", "http://localhost:11434/v1")
	v.SetDefault("llm.model", "qwen2.5:14b")
	v.SetDefault("llm.embed_model", "nomic-embed-text")
	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "documents")
	v.SetDefault("vector.vector_size", 768)
	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "tome-ingestion")
	v.SetDefault("cache.capacity", 1000)
	v.SetDefault("cache.default_ttl", time.Hour)
	v.SetDefault("search.top_k", 5)
	v.SetDefault("search.score_threshold", 0.7)
	v.SetDefault("search.call_timeout", 30*time.Second)
	v.SetDefault("chunking.size", 512)
	v.SetDefault("chunking.overlap", 128)
	v.SetDefault("rerank.weight_original", 0.3)
	v.SetDefault("rerank.weight_rerank", 0.7)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
