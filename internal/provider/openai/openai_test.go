package openai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/alan-mat/docqa/internal/api"
	"github.com/alan-mat/docqa/internal/provider/openai"
)

type fakeServer struct {
	t           *testing.T
	lastChatReq map[string]any
	embedCalls  atomic.Int32
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("failed to decode chat request: %v", err)
		}
		f.lastChatReq = req

		if stream, _ := req["stream"].(bool); stream {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, part := range []string{"Hello", ", world"} {
				fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"The answer is 42."},"finish_reason":"stop"}]}`)
	})

	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		f.embedCalls.Add(1)

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("failed to decode embedding request: %v", err)
		}
		if req.Model != openai.DefaultEmbedModel {
			f.t.Errorf("expected model '%s', got '%s'", openai.DefaultEmbedModel, req.Model)
		}

		data := make([]map[string]any, len(req.Input))
		for i, in := range req.Input {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(in)), 1},
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
		})
	})

	return mux
}

func newTestProvider(t *testing.T) (*openai.OpenAIProvider, *fakeServer) {
	f := &fakeServer{t: t}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	p := openai.New(openai.Config{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1",
	})
	return p, f
}

func TestComplete(t *testing.T) {
	p, f := newTestProvider(t)

	got, err := p.Complete(context.Background(), api.ChatRequest{
		Query:        "What is the answer?",
		SystemPrompt: "Use the context.",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got != "The answer is 42." {
		t.Errorf("unexpected completion '%s'", got)
	}

	if f.lastChatReq["model"] != openai.DefaultChatModel {
		t.Errorf("expected model '%s', got '%v'", openai.DefaultChatModel, f.lastChatReq["model"])
	}
	if temp, _ := f.lastChatReq["temperature"].(float64); temp != 0.75 {
		t.Errorf("expected temperature 0.75, got %v", f.lastChatReq["temperature"])
	}

	msgs, _ := f.lastChatReq["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if role := msgs[0].(map[string]any)["role"]; role != "system" {
		t.Errorf("expected first message to be system, got %v", role)
	}
}

func TestChatStream(t *testing.T) {
	p, _ := newTestProvider(t)

	stream, err := p.Chat(context.Background(), api.ChatRequest{Query: "hi"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	got, err := api.StreamReadAll(context.Background(), stream)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got != "Hello, world" {
		t.Errorf("expected 'Hello, world', got '%s'", got)
	}
}

func TestEmbedDocuments(t *testing.T) {
	p, f := newTestProvider(t)

	chunks := make([]string, 2500)
	for i := range chunks {
		chunks[i] = fmt.Sprintf("chunk %d", i)
	}

	res, err := p.EmbedDocuments(context.Background(), []*api.EmbedDocumentRequest{
		{Title: "doc.pdf", Chunks: chunks},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if f.embedCalls.Load() != 2 {
		t.Errorf("expected 2 batched requests, got %d", f.embedCalls.Load())
	}

	if len(res) != 1 || len(res[0].Values) != len(chunks) {
		t.Fatalf("unexpected embeddings shape")
	}

	for i, v := range res[0].Values {
		want := []float32{float32(len(chunks[i])), 1}
		if !reflect.DeepEqual(v, want) {
			t.Fatalf("embedding %d out of order: expected %v, got %v", i, want, v)
		}
	}
}

func TestEmbedQuery(t *testing.T) {
	p, _ := newTestProvider(t)

	v, err := p.EmbedQuery(context.Background(), "abc")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !reflect.DeepEqual(v, []float32{3, 1}) {
		t.Errorf("unexpected embedding %v", v)
	}

	if p.GetDimensions() != 1536 {
		t.Errorf("expected 1536 dimensions, got %d", p.GetDimensions())
	}
}
