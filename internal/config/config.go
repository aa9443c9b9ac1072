// Package config loads and validates the process configuration: archive,
// vector store, queue, fetcher, chunker, embedder, normalizer, ranker, and
// persona settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"lodestar/internal/core"
)

// Config holds all application configuration.
type Config struct {
	App App `mapstructure:"app"`
	Archive Archive `mapstructure:"archive"`
	VectorDB VectorDB `mapstructure:"vector_store"`
	Vocabulary Vocabulary `mapstructure:"vocabulary"`
	Queue Queue `mapstructure:"queue"`
	Proxy Proxy `mapstructure:"proxy"`
	RateLimit RateLimit `mapstructure:"rate_limit"`
	Chunker Chunker `mapstructure:"chunker"`
	Embedder Embedder `mapstructure:"embedder"`
	Normalizer Normalizer `mapstructure:"normalizer"`
	Ranker Ranker `mapstructure:"ranker"`
	Personas PersonaStore `mapstructure:"personas"`
	Logging Logging `mapstructure:"logging"`
	Gemini Gemini `mapstructure:"gemini"`
}

// App holds general process configuration.
type App struct {
	Debug bool `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// Archive holds Archive Store configuration.
type Archive struct {
	Root string `mapstructure:"root"`
}

// VectorDB holds Vector Store configuration. ConnectionString is a
// standard libpq/Postgres DSN; the two collections are fixed table names.
type VectorDB struct {
	ConnectionString string `mapstructure:"connection_string"`
	Dimensions int `mapstructure:"dimensions"`
}

// Vocabulary holds Vocabulary Manager configuration.
type Vocabulary struct {
	Root string `mapstructure:"root"`
	SeedTopK int `mapstructure:"seed_top_k"`
}

// Queue holds Ingestion Controller configuration.
type Queue struct {
	Root string `mapstructure:"root"`
	MaxConcurrentNoProxy int `mapstructure:"max_concurrent_no_proxy"`
	MaxConcurrentProxy int `mapstructure:"max_concurrent_proxy"`
	RateLimitDBPath string `mapstructure:"rate_limit_db_path"`
}

// Proxy holds the optional rotating HTTP proxy configuration.
type Proxy struct {
	URL string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// RateLimit holds per-source rolling-window rate limits.
type RateLimit struct {
	YouTube SourceRateLimit `mapstructure:"youtube"`
	Web SourceRateLimit `mapstructure:"web"`
}

// SourceRateLimit configures one source's rolling window.
type SourceRateLimit struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxManual int `mapstructure:"max_manual"`
	MaxScheduled int `mapstructure:"max_scheduled"`
}

// Chunker holds both chunking strategies' knobs.
type Chunker struct {
	Transcript TranscriptChunker `mapstructure:"transcript"`
	Web WebChunker `mapstructure:"web"`
}

type TranscriptChunker struct {
	TargetTokens int `mapstructure:"target_tokens"`
	HardCapTokens int `mapstructure:"hard_cap_tokens"`
	PauseSeconds int `mapstructure:"pause_seconds"`
	OverlapSegments int `mapstructure:"overlap_segments"`
}

type WebChunker struct {
	TargetTokens int `mapstructure:"target_tokens"`
	HardCapTokens int `mapstructure:"hard_cap_tokens"`
}

// Embedder holds model/dimension/context configuration for both embedding
// functions.
type Embedder struct {
	Global EmbedderModel `mapstructure:"global"`
	Chunk EmbedderModel `mapstructure:"chunk"`
}

type EmbedderModel struct {
	Model string `mapstructure:"model"`
	Dim int `mapstructure:"dim"`
	Context int `mapstructure:"context"`
}

// Normalizer holds Tag Normalizer configuration.
type Normalizer struct {
	NeighborsK int `mapstructure:"neighbors_k"`
	VocabularyTopN int `mapstructure:"vocabulary_top_n"`
	MaxParseRetries int `mapstructure:"max_parse_retries"`
}

// Ranker holds the mode-dependent scoring weights.
type Ranker struct {
	Weights map[string]RankWeights `mapstructure:"weights"`
}

type RankWeights struct {
	Chunk float64 `mapstructure:"chunk"`
	Global float64 `mapstructure:"global"`
	Persona float64 `mapstructure:"persona"`
	Pref float64 `mapstructure:"pref"`
}

// PersonaStore holds the Persona Store's persistence path plus the
// configured set of persona labels/descriptions.
type PersonaStore struct {
	Path string `mapstructure:"path"`
	List []PersonaConfig `mapstructure:"list"`
}

// PersonaConfig is one configured persona label/description pair.
type PersonaConfig struct {
	Label string `mapstructure:"label"`
	Description string `mapstructure:"description"`
}

// Logging holds structured-logging configuration.
type Logging struct {
	Level string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Gemini holds LLM/embedding provider configuration.
type Gemini struct {
	APIKey string `mapstructure:"api_key"`
	Model string `mapstructure:"model"`
	Timeout string `mapstructure:"timeout"`
	MaxTokens int32 `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

var globalConfig *Config

// Load loads configuration from a YAML file (if given, else
// "./.lodestar.yaml" or "$HOME/.lodestar.yaml"), an optional ".env"
// file, and environment variables, in that order of increasing
// precedence: ".env" values never override variables already set in
// the environment.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("warning: error loading.env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".lodestar")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it with defaults if
// Load has not yet been called.
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("failed to load configuration: %v", err))
		}
		return cfg
	}
	return globalConfig
}

// Reset clears the cached global configuration; used by tests that need
// to reload config under different environment variables.
func Reset() {
	globalConfig = nil
}

func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")

	viper.SetDefault("archive.root", ".lodestar/archive")

	viper.SetDefault("vector_store.connection_string", "postgres://localhost:5432/lodestar?sslmode=disable")
	viper.SetDefault("vector_store.dimensions", 1024)

	viper.SetDefault("vocabulary.root", ".lodestar/vocabulary")
	viper.SetDefault("vocabulary.seed_top_k", 50)

	viper.SetDefault("queue.root", ".lodestar/queue")
	viper.SetDefault("queue.max_concurrent_no_proxy", 1)
	viper.SetDefault("queue.max_concurrent_proxy", 5)
	viper.SetDefault("queue.rate_limit_db_path", ".lodestar/ratelimit.db")

	viper.SetDefault("rate_limit.youtube.window_seconds", 900)
	viper.SetDefault("rate_limit.youtube.max_manual", 5)
	viper.SetDefault("rate_limit.youtube.max_scheduled", 1)
	viper.SetDefault("rate_limit.web.window_seconds", 60)
	viper.SetDefault("rate_limit.web.max_manual", 30)
	viper.SetDefault("rate_limit.web.max_scheduled", 10)

	viper.SetDefault("chunker.transcript.target_tokens", 2500)
	viper.SetDefault("chunker.transcript.hard_cap_tokens", 6000)
	viper.SetDefault("chunker.transcript.pause_seconds", 9)
	viper.SetDefault("chunker.transcript.overlap_segments", 1)
	viper.SetDefault("chunker.web.target_tokens", 1500)
	viper.SetDefault("chunker.web.hard_cap_tokens", 6000)

	viper.SetDefault("embedder.global.model", "gemini-embedding-001")
	viper.SetDefault("embedder.global.dim", 1024)
	viper.SetDefault("embedder.global.context", 8192)
	viper.SetDefault("embedder.chunk.model", "gemini-embedding-001")
	viper.SetDefault("embedder.chunk.dim", 1024)
	viper.SetDefault("embedder.chunk.context", 8192)

	viper.SetDefault("normalizer.neighbors_k", 5)
	viper.SetDefault("normalizer.vocabulary_top_n", 30)
	viper.SetDefault("normalizer.max_parse_retries", 3)

	viper.SetDefault("ranker.weights.search.chunk", 0.60)
	viper.SetDefault("ranker.weights.search.global", 0.30)
	viper.SetDefault("ranker.weights.search.persona", 0.05)
	viper.SetDefault("ranker.weights.search.pref", 0.05)

	viper.SetDefault("ranker.weights.recommendation.chunk", 0.10)
	viper.SetDefault("ranker.weights.recommendation.global", 0.30)
	viper.SetDefault("ranker.weights.recommendation.persona", 0.35)
	viper.SetDefault("ranker.weights.recommendation.pref", 0.25)

	viper.SetDefault("ranker.weights.application.chunk", 0.45)
	viper.SetDefault("ranker.weights.application.global", 0.25)
	viper.SetDefault("ranker.weights.application.persona", 0.15)
	viper.SetDefault("ranker.weights.application.pref", 0.15)

	viper.SetDefault("personas.path", ".lodestar/personas.json")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("gemini.model", "gemini-flash-lite-latest")
	viper.SetDefault("gemini.timeout", "60s")
	viper.SetDefault("gemini.max_tokens", 8192)
	viper.SetDefault("gemini.temperature", 0.3)
	viper.SetDefault("gemini.embedding_model", "gemini-embedding-001")
}

func bindEnvironmentVariables() {
	bindEnvKeys("gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})
	bindEnvKeys("vector_store.connection_string", []string{
		"LODESTAR_DATABASE_URL",
		"DATABASE_URL",
	})
	bindEnvKeys("proxy.url", []string{
		"LODESTAR_PROXY_URL",
		"HTTPS_PROXY",
	})
	bindEnvKeys("proxy.username", []string{"LODESTAR_PROXY_USERNAME"})
	bindEnvKeys("proxy.password", []string{"LODESTAR_PROXY_PASSWORD"})
	bindEnvKeys("app.debug", []string{"LODESTAR_DEBUG", "DEBUG"})
}

func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

func postProcessConfig(config *Config) error {
	config.Archive.Root = expandPath(config.Archive.Root)
	config.Vocabulary.Root = expandPath(config.Vocabulary.Root)
	config.Queue.Root = expandPath(config.Queue.Root)
	config.Queue.RateLimitDBPath = expandPath(config.Queue.RateLimitDBPath)
	config.Personas.Path = expandPath(config.Personas.Path)

	durations := map[string]string{
		"gemini.timeout": config.Gemini.Timeout,
	}
	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

func validateConfig(config *Config) error {
	var errs []string

	if config.Archive.Root == "" {
		errs = append(errs, "archive.root must not be empty")
	}
	if config.Queue.Root == "" {
		errs = append(errs, "queue.root must not be empty")
	}
	if config.Vocabulary.Root == "" {
		errs = append(errs, "vocabulary.root must not be empty")
	}
	if config.Embedder.Global.Dim != core.EmbeddingDim {
		// dimension mismatch between the two embedders would break the
		// ranker's ability to compare global and persona vectors
		errs = append(errs, fmt.Sprintf("embedder.global.dim must be %d", core.EmbeddingDim))
	}
	if config.Embedder.Chunk.Dim != core.EmbeddingDim {
		errs = append(errs, fmt.Sprintf("embedder.chunk.dim must be %d", core.EmbeddingDim))
	}

	for mode, w := range config.Ranker.Weights {
		sum := w.Chunk + w.Global + w.Persona + w.Pref
		if sum < 0.99 || sum > 1.01 {
			errs = append(errs, fmt.Sprintf("ranker.weights.%s must sum to 1.0, got %.3f", mode, sum))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
