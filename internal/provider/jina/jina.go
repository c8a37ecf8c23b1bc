package jina

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alan-mat/docqa/internal/api"
	"github.com/alan-mat/docqa/internal/http"
)

const (
	Endpoint            = "https://api.jina.ai"
	DefaultEmbedModel   = "jina-embeddings-v3"
	DefaultDimensions   = 1024
	EmbedItemsMaxLength = 2048
)

type embeddingResponse struct {
	Model     string `json:"model"`
	UsageInfo struct {
		TotalTokens  int `json:"total_tokens"`
		PromptTokens int `json:"prompt_tokens"`
	} `json:"usage"`
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type Config struct {
	APIKey     string
	Endpoint   string
	EmbedModel string
	Dimensions int
}

type JinaAIProvider struct {
	client     http.Client
	model      string
	vectorDims uint
}

func New(cfg Config) *JinaAIProvider {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = Endpoint
	}

	p := &JinaAIProvider{
		client: http.NewClient(
			endpoint,
			http.WithMaxRetries(3),
			http.WithApiKey(cfg.APIKey),
		),
		model:      cfg.EmbedModel,
		vectorDims: DefaultDimensions,
	}

	if p.model == "" {
		p.model = DefaultEmbedModel
	}
	if cfg.Dimensions > 0 {
		p.vectorDims = uint(cfg.Dimensions)
	}
	return p
}

func (p JinaAIProvider) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	vals, err := p.requestEmbedding(ctx, "retrieval.query", []string{q})
	if err != nil {
		return nil, err
	}

	if len(vals) == 0 {
		return nil, errors.New("failed to deserialize embeddings")
	}

	return vals[0], nil
}

func (p JinaAIProvider) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	embeddings := make([]*api.DocumentEmbedding, 0, len(docs))

	for _, doc := range docs {
		slog.Debug("embedding document", "name", doc.Title, "chunks", len(doc.Chunks))

		vals := make([][]float32, 0, len(doc.Chunks))
		for start := 0; start < len(doc.Chunks); start += EmbedItemsMaxLength {
			end := min(start+EmbedItemsMaxLength, len(doc.Chunks))

			batch, err := p.requestEmbedding(ctx, "retrieval.passage", doc.Chunks[start:end])
			if err != nil {
				return nil, fmt.Errorf("failed to create embeddings for document '%s': %w", doc.Title, err)
			}
			vals = append(vals, batch...)
		}

		embeddings = append(embeddings, &api.DocumentEmbedding{
			Title:  doc.Title,
			Chunks: doc.Chunks,
			Values: vals,
		})
	}

	return embeddings, nil
}

func (p JinaAIProvider) GetDimensions() uint {
	return p.vectorDims
}

func (p JinaAIProvider) requestEmbedding(ctx context.Context, task string, input []string) ([][]float32, error) {
	requestData := map[string]any{
		"input":      input,
		"model":      p.model,
		"task":       task,
		"dimensions": p.vectorDims,
	}

	var resp embeddingResponse
	if err := p.client.Request(ctx, http.MethodPost, "/v1/embeddings", requestData, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) != len(input) {
		return nil, fmt.Errorf("expected %d embeddings, received %d", len(input), len(resp.Data))
	}

	vals := make([][]float32, len(resp.Data))
	for _, e := range resp.Data {
		if e.Index < 0 || e.Index >= len(vals) {
			return nil, fmt.Errorf("embedding index %d out of range", e.Index)
		}
		vals[e.Index] = e.Embedding
	}

	return vals, nil
}
