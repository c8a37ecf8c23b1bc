// Package providertest contains in-process providers for tests.
package providertest

import (
	"context"
	"hash/fnv"
	"io"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/alan-mat/docqa/internal/api"
)

const Dimensions = 64

// Embedder embeds text as a bag of hashed words, so texts sharing words
// score higher under cosine similarity.
type Embedder struct {
	mu    sync.Mutex
	Calls int
	Err   error
}

func (e *Embedder) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Calls++
	if e.Err != nil {
		return nil, e.Err
	}
	return Embed(q), nil
}

func (e *Embedder) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Calls++
	if e.Err != nil {
		return nil, e.Err
	}

	res := make([]*api.DocumentEmbedding, 0, len(docs))
	for _, doc := range docs {
		vals := make([][]float32, 0, len(doc.Chunks))
		for _, c := range doc.Chunks {
			vals = append(vals, Embed(c))
		}
		res = append(res, &api.DocumentEmbedding{
			Title:  doc.Title,
			Chunks: doc.Chunks,
			Values: vals,
		})
	}
	return res, nil
}

func (e *Embedder) GetDimensions() uint {
	return Dimensions
}

func Embed(text string) []float32 {
	vec := make([]float32, Dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%Dimensions] += 1
	}
	return vec
}

// Chat answers every request with Answer and records the requests it received.
type Chat struct {
	mu       sync.Mutex
	Answer   string
	Err      error
	Requests []api.ChatRequest
}

func (c *Chat) Chat(ctx context.Context, req api.ChatRequest) (api.CompletionStream, error) {
	answer, err := c.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return &stream{parts: []string{answer}}, nil
}

func (c *Chat) Complete(ctx context.Context, req api.ChatRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Requests = append(c.Requests, req)
	if c.Err != nil {
		return "", c.Err
	}
	return c.Answer, nil
}

func (c *Chat) LastRequest() (api.ChatRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.Requests) == 0 {
		return api.ChatRequest{}, false
	}
	return c.Requests[len(c.Requests)-1], true
}

type stream struct {
	parts []string
}

func (s *stream) Recv() (string, error) {
	if len(s.parts) == 0 {
		return "", io.EOF
	}
	p := s.parts[0]
	s.parts = s.parts[1:]
	return p, nil
}

func (s *stream) Close() error {
	return nil
}

// Reranker scores documents by the number of query words they contain.
type Reranker struct{}

func (Reranker) Rerank(ctx context.Context, req api.RerankRequest) (*api.RerankResponse, error) {
	words := strings.Fields(strings.ToLower(req.Query))

	results := make([]api.RerankResult, 0, len(req.Documents))
	for i, d := range req.Documents {
		lower := strings.ToLower(d)
		hits := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				hits++
			}
		}
		score := 0.0
		if len(words) > 0 {
			score = float64(hits) / float64(len(words))
		}
		results = append(results, api.RerankResult{Index: i, Score: score})
	}

	threshold := api.RerankScoreThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	kept := make([]api.RerankResult, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if req.Limit > 0 && len(kept) > req.Limit {
		kept = kept[:req.Limit]
	}

	return &api.RerankResponse{Query: req.Query, Results: kept}, nil
}
