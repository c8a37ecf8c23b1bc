package jina_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/alan-mat/docqa/internal/api"
	"github.com/alan-mat/docqa/internal/provider/jina"
)

func TestEmbedDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Task  string   `json:"task"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		if req.Task != "retrieval.passage" {
			t.Errorf("unexpected task '%s'", req.Task)
		}

		// respond in reverse order to exercise index mapping
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"index":     i,
				"embedding": []float32{float32(i)},
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"model": "jina-embeddings-v3", "data": data})
	}))
	defer srv.Close()

	p := jina.New(jina.Config{APIKey: "k", Endpoint: srv.URL})

	res, err := p.EmbedDocuments(context.Background(), []*api.EmbedDocumentRequest{
		{Title: "doc", Chunks: []string{"a", "b", "c"}},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	want := [][]float32{{0}, {1}, {2}}
	if !reflect.DeepEqual(res[0].Values, want) {
		t.Errorf("expected %v, got %v", want, res[0].Values)
	}
}

func TestEmbedQueryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := jina.New(jina.Config{Endpoint: srv.URL})

	if _, err := p.EmbedQuery(context.Background(), "q"); err == nil {
		t.Error("expected error, got nil")
	}
}
