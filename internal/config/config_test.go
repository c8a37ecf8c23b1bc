package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alan-mat/docqa/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docqa.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	conf, err := config.Read(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if conf.Ingest.ChunkSize != 1000 || conf.Ingest.ChunkOverlap != 200 {
		t.Errorf("unexpected ingest defaults %+v", conf.Ingest)
	}
	if conf.Retrieval.TopK != 3 {
		t.Errorf("expected top_k 3, got %d", conf.Retrieval.TopK)
	}
	if conf.Generation.Temperature != 0.75 || conf.Providers.Chat.Model != "gpt-4o" {
		t.Errorf("unexpected generation defaults %+v / %+v", conf.Generation, conf.Providers.Chat)
	}
	if conf.Providers.Chat.APIKey != "sk-test" || conf.Providers.Embedding.APIKey != "sk-test" {
		t.Error("expected api keys to be read from the environment")
	}
	if conf.Server.MaxUploadBytes != 20<<20 {
		t.Errorf("expected 20 MiB upload limit, got %d", conf.Server.MaxUploadBytes)
	}
}

func TestReadOverrides(t *testing.T) {
	t.Setenv("COHERE_API_KEY", "co-env")

	path := writeConfig(t, `
log_level: debug
server:
  listen_port: 9000
queue:
  mode: inline
session:
  type: memory
  ttl: 2h
vector_store:
  type: pgvector
  dsn: postgres://localhost/docqa
providers:
  chat:
    type: gemini
    api_key: from-file
  rerank:
    type: cohere
ingest:
  chunk_size: 2000
`)

	conf, err := config.Read(path)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if conf.ListenAddr() != ":9000" {
		t.Errorf("expected ':9000', got '%s'", conf.ListenAddr())
	}
	if conf.Queue.Mode != config.QueueModeInline {
		t.Errorf("expected inline queue mode, got %s", conf.Queue.Mode)
	}
	if conf.Session.TTL != 2*time.Hour {
		t.Errorf("expected 2h session ttl, got %s", conf.Session.TTL)
	}
	if conf.VectorStore.Type != "pgvector" || conf.VectorStore.DSN == "" {
		t.Errorf("unexpected vector store config %+v", conf.VectorStore)
	}
	if conf.Providers.Chat.APIKey != "from-file" {
		t.Errorf("expected file api key to win, got '%s'", conf.Providers.Chat.APIKey)
	}
	if conf.Providers.Rerank.APIKey != "co-env" {
		t.Errorf("expected cohere key from env, got '%s'", conf.Providers.Rerank.APIKey)
	}
	if conf.Ingest.ChunkSize != 2000 || conf.Ingest.ChunkOverlap != 200 {
		t.Errorf("unexpected ingest config %+v", conf.Ingest)
	}
	if conf.Retrieval.TopK != 3 {
		t.Errorf("expected untouched default top_k, got %d", conf.Retrieval.TopK)
	}
}

func TestReadInvalid(t *testing.T) {
	tests := map[string]string{
		"log level":  "log_level: loud\n",
		"queue mode": "queue:\n  mode: kafka\n",
		"chunk size": "ingest:\n  chunk_size: 100\n",
		"top k":      "retrieval:\n  top_k: 0\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.Read(writeConfig(t, content))
			if !errors.Is(err, config.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if _, err := config.Read(writeConfig(t, "server: [")); err == nil {
		t.Error("expected parse error, got nil")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := config.ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) expected %v, got %v (%v)", in, want, got, err)
		}
	}
}

func TestGuardOptions(t *testing.T) {
	opts := config.GuardConfig{Burst: 2}.GuardOptions()
	if opts.Burst != 2 || opts.FailureThreshold != 5 {
		t.Errorf("unexpected guard options %+v", opts)
	}
}
