package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/alan-mat/docqa/internal/provider"
	"github.com/alan-mat/docqa/internal/splitter"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	QueueModeAsynq  = "asynq"
	QueueModeInline = "inline"
)

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ServerConfig struct {
	ListenHost string `yaml:"listen_host"`
	ListenPort int    `yaml:"listen_port"`

	MaxUploadBytes    int64    `yaml:"max_upload_bytes"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
}

type WorkerConfig struct {
	Workers int `yaml:"workers"`
}

type QueueConfig struct {
	// Mode is either "asynq" (background worker) or "inline".
	Mode     string `yaml:"mode"`
	Name     string `yaml:"name"`
	MaxRetry int    `yaml:"max_retry"`
}

type SessionConfig struct {
	Type string        `yaml:"type"`
	TTL  time.Duration `yaml:"ttl"`
}

type VectorStoreConfig struct {
	Type string `yaml:"type"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	DSN  string `yaml:"dsn"`
}

type ProviderConfig struct {
	Type       string `yaml:"type"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"`

	// APIKey is read from the environment when empty.
	APIKey string `yaml:"api_key"`
}

type GuardConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	FailureThreshold  uint32        `yaml:"failure_threshold"`
	OpenTimeout       time.Duration `yaml:"open_timeout"`
}

type ProvidersConfig struct {
	Chat      ProviderConfig `yaml:"chat"`
	Embedding ProviderConfig `yaml:"embedding"`
	Rerank    ProviderConfig `yaml:"rerank"`
	Guard     GuardConfig    `yaml:"guard"`
}

type IngestConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

type RetrievalConfig struct {
	TopK            int     `yaml:"top_k"`
	RerankTopN      int     `yaml:"rerank_top_n"`
	RerankThreshold float64 `yaml:"rerank_threshold"`
}

type GenerationConfig struct {
	Model            string  `yaml:"model"`
	Temperature      float32 `yaml:"temperature"`
	MaxContextTokens int     `yaml:"max_context_tokens"`

	// Stream reads answers from the provider's completion stream.
	Stream bool `yaml:"stream"`
}

type Config struct {
	LogLevel string `yaml:"log_level"`

	Server ServerConfig `yaml:"server"`
	Worker WorkerConfig `yaml:"worker"`
	Queue  QueueConfig  `yaml:"queue"`

	Transport   RedisConfig       `yaml:"transport"`
	Session     SessionConfig     `yaml:"session"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`

	Providers  ProvidersConfig  `yaml:"providers"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Generation GenerationConfig `yaml:"generation"`
}

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			ListenPort:        8080,
			MaxUploadBytes:    20 << 20,
			RequestsPerSecond: 5,
			Burst:             20,
		},
		Worker: WorkerConfig{
			Workers: 10,
		},
		Queue: QueueConfig{
			Mode:     QueueModeAsynq,
			Name:     "default",
			MaxRetry: 3,
		},
		Transport: RedisConfig{
			Addr: "localhost:6379",
		},
		Session: SessionConfig{
			Type: "redis",
			TTL:  24 * time.Hour,
		},
		VectorStore: VectorStoreConfig{
			Type: "qdrant",
			Host: "localhost",
			Port: 6334,
		},
		Providers: ProvidersConfig{
			Chat:      ProviderConfig{Type: "openai", Model: "gpt-4o"},
			Embedding: ProviderConfig{Type: "openai"},
			Rerank:    ProviderConfig{Type: "none"},
			Guard: GuardConfig{
				RequestsPerSecond: 10,
				Burst:             5,
				FailureThreshold:  5,
				OpenTimeout:       time.Minute,
			},
		},
		Ingest: IngestConfig{
			ChunkSize:    splitter.DefaultChunkSize,
			ChunkOverlap: splitter.DefaultChunkOverlap,
		},
		Retrieval: RetrievalConfig{
			TopK:            3,
			RerankThreshold: 0.5,
		},
		Generation: GenerationConfig{
			Temperature:      0.75,
			MaxContextTokens: 6000,
		},
	}
}

// Read loads the YAML file at path over the defaults. A missing file
// leaves the defaults in place. Variables from a .env file in the working
// directory are loaded before API keys are resolved.
func Read(path string) (*Config, error) {
	conf := Default()

	file, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("config file not found, using defaults", "path", path)
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(file, conf); err != nil {
			return nil, fmt.Errorf("failed to parse config '%s': %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "err", err)
	}
	conf.resolveAPIKeys()

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

var apiKeyEnv = map[string]string{
	"openai": "OPENAI_API_KEY",
	"gemini": "GEMINI_API_KEY",
	"cohere": "COHERE_API_KEY",
	"jina":   "JINA_API_KEY",
}

func (c *Config) resolveAPIKeys() {
	for _, p := range []*ProviderConfig{&c.Providers.Chat, &c.Providers.Embedding, &c.Providers.Rerank} {
		if p.APIKey != "" {
			continue
		}
		if env, ok := apiKeyEnv[p.Type]; ok {
			p.APIKey = os.Getenv(env)
		}
	}
}

func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Queue.Mode != QueueModeAsynq && c.Queue.Mode != QueueModeInline {
		return fmt.Errorf("%w: queue mode '%s'", ErrInvalidConfig, c.Queue.Mode)
	}
	if c.Ingest.ChunkSize < splitter.MinChunkSize || c.Ingest.ChunkSize > splitter.MaxChunkSize {
		return fmt.Errorf("%w: ingest chunk size %d not in [%d, %d]", ErrInvalidConfig,
			c.Ingest.ChunkSize, splitter.MinChunkSize, splitter.MaxChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= splitter.MinChunkSize {
		return fmt.Errorf("%w: chunk overlap %d", ErrInvalidConfig, c.Ingest.ChunkOverlap)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: retrieval top_k must be positive", ErrInvalidConfig)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: server max_upload_bytes must be positive", ErrInvalidConfig)
	}
	return nil
}

func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: log level '%s'", ErrInvalidConfig, level)
	}
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.ListenHost, c.Server.ListenPort)
}

func (p ProviderConfig) ProviderConfig(temperature float32) provider.Config {
	return provider.Config{
		Type:        p.Type,
		APIKey:      p.APIKey,
		BaseURL:     p.BaseURL,
		Model:       p.Model,
		Temperature: temperature,
		Dimensions:  p.Dimensions,
	}
}

func (g GuardConfig) GuardOptions() provider.GuardOptions {
	opts := provider.DefaultGuardOptions()
	if g.RequestsPerSecond != 0 {
		opts.RequestsPerSecond = g.RequestsPerSecond
	}
	if g.Burst > 0 {
		opts.Burst = g.Burst
	}
	if g.FailureThreshold > 0 {
		opts.FailureThreshold = g.FailureThreshold
	}
	if g.OpenTimeout > 0 {
		opts.OpenTimeout = g.OpenTimeout
	}
	return opts
}
