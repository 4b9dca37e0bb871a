package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to upper-cased keys for environment overrides,
// e.g. MINIRAG_VECTOR_STORE_TYPE=qdrant.
const EnvPrefix = "MINIRAG"

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address            string   `mapstructure:"address" yaml:"address"`
	CORSOrigins        []string `mapstructure:"cors_origins" yaml:"cors_origins"`
	RequestTimeoutSecs int      `mapstructure:"request_timeout_secs" yaml:"request_timeout_secs"`
}

// TokenizerConfig selects the tokenizer used for chunk bounds.
type TokenizerConfig struct {
	Type     string `mapstructure:"type" yaml:"type"`
	Encoding string `mapstructure:"encoding" yaml:"encoding"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type      string  `mapstructure:"type" yaml:"type"`
	ChunkSize int     `mapstructure:"chunk_size" yaml:"chunk_size"`
	Overlap   float64 `mapstructure:"overlap" yaml:"overlap"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url"`
	APIKeyEnv         string  `mapstructure:"api_key_env" yaml:"api_key_env"`
	Model             string  `mapstructure:"model" yaml:"model"`
	TimeoutSecs       int     `mapstructure:"timeout_secs" yaml:"timeout_secs"`
	BatchSize         int     `mapstructure:"batch_size" yaml:"batch_size"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// EmbeddingCacheConfig enables a Redis cache in front of the embedder.
type EmbeddingCacheConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	TTLSecs   int    `mapstructure:"ttl_secs" yaml:"ttl_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string               `mapstructure:"type" yaml:"type"`
	Dimension int                  `mapstructure:"dimension" yaml:"dimension"`
	OpenAI    OpenAIEmbedderConfig `mapstructure:"openai" yaml:"openai"`
	Cache     EmbeddingCacheConfig `mapstructure:"cache" yaml:"cache"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `mapstructure:"url" yaml:"url"`
	APIKey      string `mapstructure:"api_key" yaml:"api_key"`
	Collection  string `mapstructure:"collection" yaml:"collection"`
	Distance    string `mapstructure:"distance" yaml:"distance"`
	TimeoutSecs int    `mapstructure:"timeout_secs" yaml:"timeout_secs"`
}

// PostgresConfig contains connection details for the pgvector store.
type PostgresConfig struct {
	URL           string `mapstructure:"url" yaml:"url"`
	MigrationsDir string `mapstructure:"migrations_dir" yaml:"migrations_dir"`
	AutoMigrate   bool   `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

// RedisConfig contains connection details for the RediSearch store.
type RedisConfig struct {
	Addr           string `mapstructure:"addr" yaml:"addr"`
	Password       string `mapstructure:"password" yaml:"password"`
	DB             int    `mapstructure:"db" yaml:"db"`
	Index          string `mapstructure:"index" yaml:"index"`
	Prefix         string `mapstructure:"prefix" yaml:"prefix"`
	EFConstruction int    `mapstructure:"ef_construction" yaml:"ef_construction"`
	M              int    `mapstructure:"m" yaml:"m"`
}

// SQLiteConfig points at the SQLite database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string         `mapstructure:"type" yaml:"type"`
	Qdrant   QdrantConfig   `mapstructure:"qdrant" yaml:"qdrant"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
}

// RetrievalConfig sizes the candidate pool and the diversity pass.
type RetrievalConfig struct {
	TopN      int     `mapstructure:"top_n" yaml:"top_n"`
	MMRK      int     `mapstructure:"mmr_k" yaml:"mmr_k"`
	MMRLambda float64 `mapstructure:"mmr_lambda" yaml:"mmr_lambda"`
}

// JinaConfig configures the Jina rerank API client.
type JinaConfig struct {
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url"`
	APIKeyEnv         string  `mapstructure:"api_key_env" yaml:"api_key_env"`
	Model             string  `mapstructure:"model" yaml:"model"`
	TimeoutSecs       int     `mapstructure:"timeout_secs" yaml:"timeout_secs"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// RerankerConfig selects the reranker and its output size.
type RerankerConfig struct {
	Type            string     `mapstructure:"type" yaml:"type"`
	TopK            int        `mapstructure:"top_k" yaml:"top_k"`
	FallbackOnError bool       `mapstructure:"fallback_on_error" yaml:"fallback_on_error"`
	Jina            JinaConfig `mapstructure:"jina" yaml:"jina"`
}

// GeneratorConfig selects the answer generator.
type GeneratorConfig struct {
	Type           string  `mapstructure:"type" yaml:"type"`
	Model          string  `mapstructure:"model" yaml:"model"`
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url"`
	APIKeyEnv      string  `mapstructure:"api_key_env" yaml:"api_key_env"`
	Temperature    float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxSentences   int     `mapstructure:"max_sentences" yaml:"max_sentences"`
	CitationPolicy string  `mapstructure:"citation_policy" yaml:"citation_policy"`
}

// LogConfig controls log output.
type LogConfig struct {
	Verbose bool `mapstructure:"verbose" yaml:"verbose"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Tokenizer   TokenizerConfig   `mapstructure:"tokenizer" yaml:"tokenizer"`
	Chunker     ChunkerConfig     `mapstructure:"chunker" yaml:"chunker"`
	Embedder    EmbedderConfig    `mapstructure:"embedder" yaml:"embedder"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store" yaml:"vector_store"`
	Retrieval   RetrievalConfig   `mapstructure:"retrieval" yaml:"retrieval"`
	Reranker    RerankerConfig    `mapstructure:"reranker" yaml:"reranker"`
	Generator   GeneratorConfig   `mapstructure:"generator" yaml:"generator"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

// Load reads a config from path, layering MINIRAG_* environment variables
// over it. A missing file yields defaults plus environment.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/minirag/config.yaml.
// If neither exists, it writes defaults to ~/.config/minirag/config.yaml and
// returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, Default()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultUserConfigPath is ~/.config/minirag/config.yaml.
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "minirag", "config.yaml"), nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	if c.Chunker.ChunkSize <= 0 {
		return fmt.Errorf("chunker.chunk_size must be positive, got %d", c.Chunker.ChunkSize)
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= 1 {
		return fmt.Errorf("chunker.overlap must be in [0,1), got %g", c.Chunker.Overlap)
	}
	if c.Retrieval.MMRLambda < 0 || c.Retrieval.MMRLambda > 1 {
		return fmt.Errorf("retrieval.mmr_lambda must be in [0,1], got %g", c.Retrieval.MMRLambda)
	}
	if c.Reranker.TopK < 1 || c.Reranker.TopK > MaxTopK {
		return fmt.Errorf("reranker.top_k must be in [1,%d], got %d", MaxTopK, c.Reranker.TopK)
	}
	switch c.Generator.CitationPolicy {
	case "strip", "reject":
	default:
		return fmt.Errorf("generator.citation_policy must be strip or reject, got %q", c.Generator.CitationPolicy)
	}
	return nil
}
