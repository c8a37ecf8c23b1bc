package postretrieval_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/alan-mat/docqa/internal/api"
	"github.com/alan-mat/docqa/internal/engine"
	"github.com/alan-mat/docqa/internal/modules/postretrieval"
	"github.com/alan-mat/docqa/internal/provider/providertest"
)

func contextWithDocs(query string, docs ...*api.ScoredDocument) engine.Context {
	c := engine.NewContext(context.Background(), "t1", "s1", "docqa_s1", engine.TextQuery(query))
	state := c.State()
	state.AddContextDocs(docs...)
	return c.WithState(state)
}

func TestRerank(t *testing.T) {
	m := postretrieval.NewRerank(providertest.Reranker{})
	op, err := m.Operator(postretrieval.OperatorRerank)
	if err != nil {
		t.Fatal(err)
	}

	c := contextWithDocs("eiffel tower",
		&api.ScoredDocument{Content: "bananas", Score: 0.9, Source: "chunk_0"},
		&api.ScoredDocument{Content: "the eiffel tower", Score: 0.5, Source: "chunk_1"},
		&api.ScoredDocument{Content: "tower bridge", Score: 0.4, Source: "chunk_2"},
	)

	resp := op.Execute(c, engine.DefaultParams())
	if resp.Err != nil {
		t.Fatalf("expected nil error, got %v", resp.Err)
	}

	got := make([]string, 0)
	for _, d := range resp.State.ContextDocs {
		got = append(got, d.Source)
	}

	expected := []string{"chunk_1", "chunk_2"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("expected sources %v, got %v", expected, got)
	}

	if resp.State.ContextDocs[0].Score != 1 {
		t.Errorf("expected rerank score 1, got %v", resp.State.ContextDocs[0].Score)
	}
}

func TestRerankTopN(t *testing.T) {
	m := postretrieval.NewRerank(providertest.Reranker{})
	op, _ := m.Operator(postretrieval.OperatorRerank)

	c := contextWithDocs("tower",
		&api.ScoredDocument{Content: "tower one", Source: "chunk_0"},
		&api.ScoredDocument{Content: "tower two", Source: "chunk_1"},
	)

	p := engine.DefaultParams()
	p.SetArgument("top_n", 1)

	resp := op.Execute(c, p)
	if len(resp.State.ContextDocs) != 1 {
		t.Errorf("expected 1 document, got %d", len(resp.State.ContextDocs))
	}
}

func TestRerankPassThrough(t *testing.T) {
	m := postretrieval.NewRerank(nil)
	op, _ := m.Operator(postretrieval.OperatorRerank)

	docs := []*api.ScoredDocument{{Content: "x", Source: "chunk_0"}}
	c := contextWithDocs("q", docs...)

	resp := op.Execute(c, engine.DefaultParams())
	if !reflect.DeepEqual(resp.State.ContextDocs, docs) {
		t.Errorf("expected documents to pass through unchanged")
	}
}
