package cohere

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"

	"github.com/alan-mat/docqa/internal/api"
)

const DefaultRerankModel = "rerank-v3.5"

var (
	ErrMissingQuery     = errors.New("rerank request failed: missing parameter 'query' in request")
	ErrMissingDocuments = errors.New("rerank request failed: missing parameter 'documents' in request")
)

type Config struct {
	APIKey string
	Model  string
}

type CohereProvider struct {
	client *cohereclient.Client
	model  string
}

func New(cfg Config) *CohereProvider {
	c := cohereclient.NewClient(
		cohereclient.WithToken(cfg.APIKey),
		cohereclient.WithHTTPClient(
			&http.Client{
				Timeout: 60 * time.Second,
			},
		),
	)

	model := cfg.Model
	if model == "" {
		model = DefaultRerankModel
	}

	return &CohereProvider{
		client: c,
		model:  model,
	}
}

func (p CohereProvider) Rerank(ctx context.Context, req api.RerankRequest) (*api.RerankResponse, error) {
	if req.Query == "" {
		return nil, ErrMissingQuery
	}

	if len(req.Documents) == 0 {
		return nil, ErrMissingDocuments
	}

	coReq := &cohere.V2RerankRequest{
		Query:     req.Query,
		Documents: req.Documents,
		Model:     p.model,
	}

	if req.ModelName != "" {
		coReq.Model = req.ModelName
	}

	if req.Limit != 0 {
		limit := req.Limit
		coReq.TopN = &limit
	}

	resp, err := p.client.V2.Rerank(ctx, coReq)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}

	threshold := api.RerankScoreThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	results := make([]api.RerankResult, 0, len(resp.Results))
	for _, result := range resp.Results {
		if result == nil {
			continue
		}
		results = append(results, api.RerankResult{
			Index: result.Index,
			Score: result.RelevanceScore,
		})
	}

	return &api.RerankResponse{
		Query:     req.Query,
		Results:   filterResults(results, threshold),
		ModelName: coReq.Model,
	}, nil
}

// filterResults drops results scoring below threshold and orders the rest by
// descending score.
func filterResults(results []api.RerankResult, threshold float64) []api.RerankResult {
	kept := make([]api.RerankResult, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			kept = append(kept, r)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})
	return kept
}
