// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alan-mat/docqa/internal/api"
	"github.com/alan-mat/docqa/internal/provider/cohere"
	"github.com/alan-mat/docqa/internal/provider/gemini"
	"github.com/alan-mat/docqa/internal/provider/jina"
	"github.com/alan-mat/docqa/internal/provider/openai"
	"github.com/alan-mat/docqa/internal/registry"
)

var (
	ErrInvalidProviderType = errors.New("no provider found for given type")
	ErrMissingAPIKey       = errors.New("missing api key for provider")
)

type ChatProvider interface {
	Chat(ctx context.Context, req api.ChatRequest) (api.CompletionStream, error)
	Complete(ctx context.Context, req api.ChatRequest) (string, error)
}

type Embedder interface {
	EmbedQuery(ctx context.Context, q string) ([]float32, error)
	EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error)
	GetDimensions() uint
}

type Reranker interface {
	Rerank(ctx context.Context, req api.RerankRequest) (*api.RerankResponse, error)
}

// Config selects and configures a provider implementation.
type Config struct {
	Type    string
	APIKey  string
	BaseURL string

	Model       string
	Temperature float32
	Dimensions  int
}

type ChatFactory func(ctx context.Context, cfg Config) (ChatProvider, error)

type EmbedderFactory func(ctx context.Context, cfg Config) (Embedder, error)

type RerankerFactory func(cfg Config) (Reranker, error)

var (
	chatProviders = registry.New[string, ChatFactory]()
	embedders     = registry.New[string, EmbedderFactory]()
	rerankers     = registry.New[string, RerankerFactory]()
)

func init() {
	chatProviders.RegisterMany(
		registry.Entry[string, ChatFactory]{Key: "openai", Value: newOpenAIChat},
		registry.Entry[string, ChatFactory]{Key: "gemini", Value: newGeminiChat},
	)
	embedders.RegisterMany(
		registry.Entry[string, EmbedderFactory]{Key: "openai", Value: newOpenAIEmbedder},
		registry.Entry[string, EmbedderFactory]{Key: "gemini", Value: newGeminiEmbedder},
		registry.Entry[string, EmbedderFactory]{Key: "jina", Value: newJinaEmbedder},
	)
	rerankers.Register("cohere", newCohereReranker)
}

// RegisterChatProvider makes a chat provider available under name,
// replacing any provider already registered under it.
func RegisterChatProvider(name string, f ChatFactory) {
	if chatProviders.Exists(name) {
		slog.Warn("replacing registered chat provider", "name", name)
	}
	chatProviders.Register(name, f)
}

func RegisterEmbedder(name string, f EmbedderFactory) {
	if embedders.Exists(name) {
		slog.Warn("replacing registered embedder", "name", name)
	}
	embedders.Register(name, f)
}

func RegisterReranker(name string, f RerankerFactory) {
	if rerankers.Exists(name) {
		slog.Warn("replacing registered reranker", "name", name)
	}
	rerankers.Register(name, f)
}

func NewChatProvider(ctx context.Context, cfg Config) (ChatProvider, error) {
	if err := checkAPIKey(cfg); err != nil {
		return nil, err
	}

	f, ok := chatProviders.Get(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("%w: chat '%s'", ErrInvalidProviderType, cfg.Type)
	}
	return f(ctx, cfg)
}

func NewEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	if err := checkAPIKey(cfg); err != nil {
		return nil, err
	}

	f, ok := embedders.Get(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("%w: embedder '%s'", ErrInvalidProviderType, cfg.Type)
	}
	return f(ctx, cfg)
}

// NewReranker returns nil and no error when cfg.Type is empty or "none".
func NewReranker(cfg Config) (Reranker, error) {
	if cfg.Type == "" || cfg.Type == "none" {
		return nil, nil
	}

	f, ok := rerankers.Get(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("%w: reranker '%s'", ErrInvalidProviderType, cfg.Type)
	}
	if err := checkAPIKey(cfg); err != nil {
		return nil, err
	}
	return f(cfg)
}

func newOpenAIChat(ctx context.Context, cfg Config) (ChatProvider, error) {
	return openai.New(openai.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		ChatModel:   cfg.Model,
		Temperature: cfg.Temperature,
	}), nil
}

func newGeminiChat(ctx context.Context, cfg Config) (ChatProvider, error) {
	p, err := gemini.New(ctx, gemini.Config{
		APIKey:      cfg.APIKey,
		ChatModel:   cfg.Model,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newOpenAIEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	return openai.New(openai.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		EmbedModel: cfg.Model,
		Dimensions: cfg.Dimensions,
	}), nil
}

func newGeminiEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	p, err := gemini.New(ctx, gemini.Config{
		APIKey:     cfg.APIKey,
		EmbedModel: cfg.Model,
		Dimensions: cfg.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newJinaEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	return jina.New(jina.Config{
		APIKey:     cfg.APIKey,
		Endpoint:   cfg.BaseURL,
		EmbedModel: cfg.Model,
		Dimensions: cfg.Dimensions,
	}), nil
}

func newCohereReranker(cfg Config) (Reranker, error) {
	return cohere.New(cohere.Config{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
	}), nil
}

func checkAPIKey(cfg Config) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("%w '%s'", ErrMissingAPIKey, cfg.Type)
	}
	return nil
}
