package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"google.golang.org/genai"

	"github.com/alan-mat/docqa/internal/api"
)

const (
	DefaultChatModel  = "gemini-2.0-flash"
	DefaultEmbedModel = "text-embedding-004"
	DefaultDimensions = 768

	embedMaxDocsLength = 100
)

type Config struct {
	APIKey string

	ChatModel   string
	EmbedModel  string
	Temperature float32
	Dimensions  int
}

type GeminiProvider struct {
	client *genai.Client

	chatModel   string
	embedModel  string
	temperature float32
	vectorDims  *int32
}

func New(ctx context.Context, cfg Config) (*GeminiProvider, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	p := &GeminiProvider{
		client:      c,
		chatModel:   cfg.ChatModel,
		embedModel:  cfg.EmbedModel,
		temperature: cfg.Temperature,
		vectorDims:  new(int32),
	}

	if p.chatModel == "" {
		p.chatModel = DefaultChatModel
	}
	if p.embedModel == "" {
		p.embedModel = DefaultEmbedModel
	}

	*(p.vectorDims) = DefaultDimensions
	if cfg.Dimensions > 0 {
		*(p.vectorDims) = int32(cfg.Dimensions)
	}

	return p, nil
}

func (p GeminiProvider) Chat(ctx context.Context, req api.ChatRequest) (api.CompletionStream, error) {
	model, contents, config := p.chatRequest(req)
	i := p.client.Models.GenerateContentStream(ctx, model, contents, config)

	next, stop := iter.Pull2(i)
	return &GeminiCompletionStream{
		next: next,
		stop: stop,
	}, nil
}

func (p GeminiProvider) Complete(ctx context.Context, req api.ChatRequest) (string, error) {
	model, contents, config := p.chatRequest(req)

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate content request failed: %w", err)
	}

	return resp.Text(), nil
}

func (p GeminiProvider) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	config := &genai.EmbedContentConfig{
		TaskType:             "RETRIEVAL_QUERY",
		OutputDimensionality: p.vectorDims,
	}

	res, err := p.client.Models.EmbedContent(ctx, p.embedModel, genai.Text(q), config)
	if err != nil {
		return nil, err
	}

	if len(res.Embeddings) == 0 {
		return nil, errors.New("embed request returned no embeddings")
	}
	return res.Embeddings[0].Values, nil
}

func (p GeminiProvider) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	embeddings := make([]*api.DocumentEmbedding, 0, len(docs))

	for _, doc := range docs {
		values := make([][]float32, 0, len(doc.Chunks))

		for start := 0; start < len(doc.Chunks); start += embedMaxDocsLength {
			end := min(start+embedMaxDocsLength, len(doc.Chunks))

			contents := make([]*genai.Content, 0, end-start)
			for _, chunk := range doc.Chunks[start:end] {
				contents = append(contents, genai.NewContentFromText(chunk, genai.RoleUser))
			}

			config := &genai.EmbedContentConfig{
				TaskType:             "RETRIEVAL_DOCUMENT",
				Title:                doc.Title,
				OutputDimensionality: p.vectorDims,
			}

			res, err := p.client.Models.EmbedContent(ctx, p.embedModel, contents, config)
			if err != nil {
				return nil, fmt.Errorf("failed to create embeddings for document '%s': %w", doc.Title, err)
			}

			for _, e := range res.Embeddings {
				values = append(values, e.Values)
			}
		}

		embeddings = append(embeddings, &api.DocumentEmbedding{
			Title:  doc.Title,
			Values: values,
			Chunks: doc.Chunks,
		})
	}

	return embeddings, nil
}

func (p GeminiProvider) GetDimensions() uint {
	return uint(*p.vectorDims)
}

func (p GeminiProvider) chatRequest(req api.ChatRequest) (string, []*genai.Content, *genai.GenerateContentConfig) {
	contents := parseRequestHistory(req.History)
	contents = append(contents, genai.NewContentFromText(req.Query, genai.RoleUser))

	temperature := p.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	config := &genai.GenerateContentConfig{}
	if temperature != 0 {
		config.Temperature = &temperature
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, "")
	}

	model := p.chatModel
	if req.ModelName != "" {
		model = req.ModelName
	}

	return model, contents, config
}

func parseRequestHistory(h []*api.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(h))
	roleTypes := map[api.ChatMessageRole]genai.Role{
		api.RoleUser:      genai.RoleUser,
		api.RoleAssistant: genai.RoleModel,
	}
	for _, m := range h {
		role, ok := roleTypes[m.Role]
		if !ok {
			continue
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}

type GeminiCompletionStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
}

func (s GeminiCompletionStream) Recv() (string, error) {
	res, err, valid := s.next()
	if !valid {
		// iterator is finished
		return "", io.EOF
	}

	if err != nil {
		return "", err
	}

	return res.Text(), nil
}

func (s GeminiCompletionStream) Close() error {
	s.stop()
	return nil
}
