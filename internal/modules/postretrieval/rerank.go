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

package postretrieval

import (
	"fmt"
	"log/slog"

	"github.com/alan-mat/docqa/internal/api"
	"github.com/alan-mat/docqa/internal/engine"
	"github.com/alan-mat/docqa/internal/provider"
)

var rerankModuleDescriptor = "post.Rerank"

const OperatorRerank = "rerank"

type Rerank struct {
	reranker provider.Reranker

	operators map[string]engine.ExecuterFunc
}

// NewRerank returns a module whose operator passes context documents through
// unchanged when reranker is nil.
func NewRerank(reranker provider.Reranker) *Rerank {
	m := &Rerank{
		reranker: reranker,
	}
	m.operators = map[string]engine.ExecuterFunc{
		OperatorRerank: m.rerank,
	}
	return m
}

func (m *Rerank) Operator(name string) (engine.Executer, error) {
	op, ok := m.operators[name]
	if !ok {
		return nil, engine.ErrOperatorNotFound{ModuleName: rerankModuleDescriptor, OperatorName: name}
	}
	return op, nil
}

func (m *Rerank) rerank(c engine.Context, p *engine.Params) *engine.Response {
	state := c.State()
	if m.reranker == nil || len(state.ContextDocs) == 0 {
		return &engine.Response{State: state}
	}

	docs := make([]*api.ScoredDocument, 0, len(state.ContextDocs))
	texts := make([]string, 0, len(state.ContextDocs))
	for _, d := range state.ContextDocs {
		if d.Content == "" {
			slog.Warn("malformed retrieved context document: missing content", "source", d.Source)
			continue
		}
		docs = append(docs, d)
		texts = append(texts, d.Content)
	}

	rerankRequest := api.RerankRequest{
		Query:     state.Query.Text,
		Documents: texts,
	}

	// optional args:
	// top_n - limit the amount of documents returned after reranking
	// threshold - minimum relevance score
	if topN, ok := engine.GetTypedArgument[int](p.Args, "top_n"); ok && topN > 0 {
		rerankRequest.Limit = topN
	}
	if threshold, ok := engine.GetTypedArgument[float64](p.Args, "threshold"); ok {
		rerankRequest.Threshold = &threshold
	}

	resp, err := m.reranker.Rerank(c.Context(), rerankRequest)
	if err != nil {
		return engine.ErrorResponse(state, fmt.Errorf("rerank request failed: %w", err))
	}

	reranked := make([]*api.ScoredDocument, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(docs) {
			slog.Warn("rerank result index out of range, skipping...", "index", r.Index)
			continue
		}
		d := docs[r.Index].Copy()
		d.Score = r.Score
		reranked = append(reranked, d)
	}

	state.SetContextDocs(reranked)
	return &engine.Response{State: state}
}
