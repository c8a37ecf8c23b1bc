package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/alan-mat/docqa/internal/api"
)

const (
	DefaultChatModel   = openai.GPT4o
	DefaultEmbedModel  = "text-embedding-3-small"
	DefaultTemperature = 0.75

	embedMaxDocsLength = 2048
	embedConcurrency   = 4
)

type Config struct {
	APIKey  string
	BaseURL string

	ChatModel   string
	EmbedModel  string
	Temperature float32

	// Dimensions is sent with embedding requests when non-zero.
	Dimensions int
}

type OpenAIProvider struct {
	client *openai.Client

	chatModel   string
	embedModel  string
	temperature float32
	vectorDims  int
}

func New(cfg Config) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	p := &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientConfig),
		chatModel:   cfg.ChatModel,
		embedModel:  cfg.EmbedModel,
		temperature: cfg.Temperature,
		vectorDims:  cfg.Dimensions,
	}

	if p.chatModel == "" {
		p.chatModel = DefaultChatModel
	}
	if p.embedModel == "" {
		p.embedModel = DefaultEmbedModel
	}
	if p.temperature == 0 {
		p.temperature = DefaultTemperature
	}

	return p
}

func (p OpenAIProvider) Chat(ctx context.Context, req api.ChatRequest) (api.CompletionStream, error) {
	openaiReq := p.chatRequest(req)
	openaiReq.Stream = true

	s, err := p.client.CreateChatCompletionStream(ctx, openaiReq)
	if err != nil {
		return nil, fmt.Errorf("chat streaming request failed: %w", err)
	}

	return &OpenAIChatStream{stream: s}, nil
}

// Complete performs a single non-streaming chat completion.
func (p OpenAIProvider) Complete(ctx context.Context, req api.ChatRequest) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.chatRequest(req))
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (p OpenAIProvider) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	vals, err := p.embed(ctx, []string{q})
	if err != nil {
		return nil, err
	}

	if len(vals) == 0 {
		return nil, errors.New("embed request returned no embeddings")
	}
	return vals[0], nil
}

func (p OpenAIProvider) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	docEmbeddings := make([]*api.DocumentEmbedding, 0, len(docs))

	for _, doc := range docs {
		vals := make([][]float32, len(doc.Chunks))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(embedConcurrency)

		for start := 0; start < len(doc.Chunks); start += embedMaxDocsLength {
			end := min(start+embedMaxDocsLength, len(doc.Chunks))

			g.Go(func() error {
				batch, err := p.embed(gctx, doc.Chunks[start:end])
				if err != nil {
					return err
				}
				if len(batch) != end-start {
					return fmt.Errorf("expected %d embeddings, received %d", end-start, len(batch))
				}
				copy(vals[start:end], batch)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("failed to create embeddings for document '%s': %w", doc.Title, err)
		}

		docEmbeddings = append(docEmbeddings, &api.DocumentEmbedding{
			Title:  doc.Title,
			Chunks: doc.Chunks,
			Values: vals,
		})
	}

	return docEmbeddings, nil
}

func (p OpenAIProvider) GetDimensions() uint {
	if p.vectorDims != 0 {
		return uint(p.vectorDims)
	}

	switch p.embedModel {
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}

func (p OpenAIProvider) embed(ctx context.Context, input []string) ([][]float32, error) {
	openaiReq := openai.EmbeddingRequestStrings{
		Input:          input,
		Model:          openai.EmbeddingModel(p.embedModel),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		Dimensions:     p.vectorDims,
	}

	res, err := p.client.CreateEmbeddings(ctx, openaiReq)
	if err != nil {
		return nil, err
	}

	vals := make([][]float32, len(res.Data))
	for i, e := range res.Data {
		idx := e.Index
		if idx < 0 || idx >= len(vals) {
			idx = i
		}
		vals[idx] = e.Embedding
	}
	return vals, nil
}

func (p OpenAIProvider) chatRequest(req api.ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)

	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	messages = append(messages, parseRequestHistory(req.History)...)

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Query,
	})

	openaiReq := openai.ChatCompletionRequest{
		Model:       p.chatModel,
		Messages:    messages,
		Temperature: p.temperature,
	}

	if req.ModelName != "" {
		openaiReq.Model = req.ModelName
	}
	if req.Temperature != nil {
		openaiReq.Temperature = *req.Temperature
	}

	return openaiReq
}

func parseRequestHistory(h []*api.ChatMessage) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, len(h))
	for i, m := range h {
		msgs[i] = openai.ChatCompletionMessage{
			Role:    m.Role.String(),
			Content: m.Content,
		}
	}
	return msgs
}

type OpenAIChatStream struct {
	stream *openai.ChatCompletionStream
}

func (s OpenAIChatStream) Recv() (string, error) {
	for {
		res, err := s.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", err
		}

		if len(res.Choices) == 0 {
			continue
		}
		return res.Choices[0].Delta.Content, nil
	}
}

func (s OpenAIChatStream) Close() error {
	return s.stream.Close()
}
