package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderTogether  = "together"
	ProviderAnthropic = "anthropic"
)

// Embedding cache backends.
const (
	CacheNone     = "none"
	CacheRedis    = "redis"
	CachePostgres = "postgres"
)

// TogetherBaseURL is Together's OpenAI-compatible endpoint.
const TogetherBaseURL = "https://api.together.xyz/v1"

var defaultModels = map[string]string{
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderTogether:  "meta-llama/Llama-3.3-70B-Instruct-Turbo-Free",
	ProviderAnthropic: "claude-sonnet-4-20250514",
}

type Config struct {
	Port        int
	NatsURL     string
	NatsToken   string
	DatabaseURL string
	LogLevel    string
	APIToken    string

	LLMProvider     string
	LLMModel        string
	LLMMaxTokens    int
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	TogetherAPIKey  string

	EmbeddingModel   string
	EmbeddingAPIKey  string
	EmbeddingBaseURL string
	EmbeddingCache   string
	RedisURL         string

	MatchThreshold      float64
	StudentTopK         int
	ObjectiveTopK       int
	PipelineConcurrency int
}

func Load() Config {
	provider := envStr("LLM_PROVIDER", ProviderOpenAI)
	openAIKey := envStr("OPENAI_API_KEY", "")
	return Config{
		Port:        envInt("IEPSCRIBE_PORT", 8760),
		NatsURL:     envStr("NATS_URL", ""),
		NatsToken:   envStr("NATS_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		APIToken:    envStr("IEPSCRIBE_API_TOKEN", ""),

		LLMProvider:     provider,
		LLMModel:        envStr("LLM_MODEL", defaultModels[provider]),
		LLMMaxTokens:    envInt("LLM_MAX_TOKENS", 1024),
		OpenAIAPIKey:    openAIKey,
		OpenAIBaseURL:   envStr("OPENAI_BASE_URL", ""),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		TogetherAPIKey:  envStr("TOGETHER_API_KEY", ""),

		EmbeddingModel:   envStr("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingAPIKey:  envStr("EMBEDDING_API_KEY", openAIKey),
		EmbeddingBaseURL: envStr("EMBEDDING_BASE_URL", ""),
		EmbeddingCache:   envStr("EMBEDDING_CACHE", CacheNone),
		RedisURL:         envStr("REDIS_URL", ""),

		MatchThreshold:      envFloat("MATCH_THRESHOLD", 0),
		StudentTopK:         envInt("STUDENT_TOP_K", 3),
		ObjectiveTopK:       envInt("OBJECTIVE_TOP_K", 3),
		PipelineConcurrency: envInt("PIPELINE_CONCURRENCY", 4),
	}
}

// LLMAPIKey returns the key for the configured provider.
func (c Config) LLMAPIKey() string {
	switch c.LLMProvider {
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	case ProviderTogether:
		return c.TogetherAPIKey
	default:
		return c.OpenAIAPIKey
	}
}

// LLMBaseURL returns the OpenAI-compatible endpoint for the provider, or ""
// for the library default.
func (c Config) LLMBaseURL() string {
	if c.LLMProvider == ProviderTogether && c.OpenAIBaseURL == "" {
		return TogetherBaseURL
	}
	return c.OpenAIBaseURL
}

// Validate reports every setting that prevents the pipeline from running.
func (c Config) Validate() error {
	var errs []error

	if _, ok := defaultModels[c.LLMProvider]; !ok {
		errs = append(errs, fmt.Errorf("LLM_PROVIDER %q: want openai, together or anthropic", c.LLMProvider))
	} else if c.LLMAPIKey() == "" {
		errs = append(errs, fmt.Errorf("missing API key for LLM provider %s", c.LLMProvider))
	}
	if c.EmbeddingAPIKey == "" {
		errs = append(errs, errors.New("missing EMBEDDING_API_KEY (or OPENAI_API_KEY)"))
	}

	switch c.EmbeddingCache {
	case CacheNone:
	case CacheRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("EMBEDDING_CACHE=redis requires REDIS_URL"))
		}
	case CachePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("EMBEDDING_CACHE=postgres requires DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("EMBEDDING_CACHE %q: want none, redis or postgres", c.EmbeddingCache))
	}

	if c.MatchThreshold < -1 || c.MatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD %v outside [-1, 1]", c.MatchThreshold))
	}
	if c.StudentTopK < 1 || c.ObjectiveTopK < 1 {
		errs = append(errs, errors.New("STUDENT_TOP_K and OBJECTIVE_TOP_K must be at least 1"))
	}
	if c.PipelineConcurrency < 1 {
		errs = append(errs, errors.New("PIPELINE_CONCURRENCY must be at least 1"))
	}

	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
