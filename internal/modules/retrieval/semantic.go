package retrieval

import (
	"fmt"
	"log/slog"

	"github.com/alan-mat/docqa/internal/engine"
	"github.com/alan-mat/docqa/internal/provider"
	"github.com/alan-mat/docqa/internal/vector"
)

var semanticModuleDescriptor = "retrieval.Semantic"

const (
	OperatorDense = "dense"
	DefaultTopK   = 3

	// ValueDocument is the context value holding the title of the processed
	// document. When set, only chunks of that document are retrieved.
	ValueDocument = "document"
)

type Semantic struct {
	embedder provider.Embedder
	store    vector.Store

	operators map[string]engine.ExecuterFunc
}

func NewSemantic(embedder provider.Embedder, store vector.Store) *Semantic {
	m := &Semantic{
		embedder: embedder,
		store:    store,
	}
	m.operators = map[string]engine.ExecuterFunc{
		OperatorDense: m.dense,
	}
	return m
}

func (m *Semantic) Operator(name string) (engine.Executer, error) {
	op, ok := m.operators[name]
	if !ok {
		return nil, engine.ErrOperatorNotFound{ModuleName: semanticModuleDescriptor, OperatorName: name}
	}
	return op, nil
}

func (m *Semantic) dense(c engine.Context, p *engine.Params) *engine.Response {
	// optional args:
	// top_k - number of chunks to retrieve
	// collection_name - overrides the collection of the context
	topK := engine.GetTypedArgumentWithDefault(p.Args, "top_k", DefaultTopK)
	collection := engine.GetTypedArgumentWithDefault(p.Args, "collection_name", c.Collection())

	state := c.State()
	query := state.Query.Text

	if collection == "" {
		return engine.ErrorResponse(state, fmt.Errorf("operator failed: no collection given"))
	}
	if topK <= 0 {
		return engine.ErrorResponse(state, fmt.Errorf("operator failed: top_k must be positive, got %d", topK))
	}

	ctx := c.Context()
	vec, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return engine.ErrorResponse(state, fmt.Errorf("failed to embed query '%s': %w", query, err))
	}

	opts := []vector.QueryParamsOption{
		vector.WithPayload(true),
		vector.WithLimit(uint(topK)),
	}
	if title, ok := c.Value(ValueDocument).(string); ok && title != "" {
		opts = append(opts, vector.WithFilter(&vector.QueryMatch{Key: vector.PayloadTitle, Value: title}))
	}

	queryParams := vector.NewQueryParams(collection, vec, opts...)

	docs, err := m.store.Query(ctx, queryParams)
	if err != nil {
		return engine.ErrorResponse(state, fmt.Errorf("failed to get results for query '%s': %w", query, err))
	}

	for _, d := range docs {
		if d.Content == "" {
			slog.Warn("retrieved context document has no text", "source", d.Source, "collection", collection)
		}
	}

	slog.Debug("retrieved context documents", "collection", collection, "count", len(docs), "id", c.TaskId())

	state.AddContextDocs(docs...)
	return &engine.Response{State: state}
}
