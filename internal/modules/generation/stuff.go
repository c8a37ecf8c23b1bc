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

package generation

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/alan-mat/docqa/internal/api"
	"github.com/alan-mat/docqa/internal/engine"
	"github.com/alan-mat/docqa/internal/llm"
	"github.com/alan-mat/docqa/internal/provider"
)

var stuffModuleDescriptor = "generation.Stuff"

const (
	OperatorStuff = "stuff"

	NoAnswer = "No answer found."

	DefaultMaxContextTokens = 6000

	contextSeparator = "\n\n"
)

const promptStuffSystem = `Use the following pieces of context to answer the user's question. 
If you don't know the answer, just say that you don't know, don't try to make up an answer.
----------------
{{.Context}}`

type Stuff struct {
	chat    provider.ChatProvider
	counter TokenCounter

	operators map[string]engine.ExecuterFunc

	templateSystem *template.Template
}

type StuffOption func(*Stuff)

func WithTokenCounter(counter TokenCounter) StuffOption {
	return func(s *Stuff) {
		s.counter = counter
	}
}

func NewStuff(chat provider.ChatProvider, opts ...StuffOption) *Stuff {
	m := &Stuff{
		chat:           chat,
		counter:        NewTiktokenCounter("gpt-4o"),
		templateSystem: template.Must(template.New("promptStuffSystem").Parse(promptStuffSystem)),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.operators = map[string]engine.ExecuterFunc{
		OperatorStuff: m.stuff,
	}
	return m
}

func (m *Stuff) Operator(name string) (engine.Executer, error) {
	op, ok := m.operators[name]
	if !ok {
		return nil, engine.ErrOperatorNotFound{ModuleName: stuffModuleDescriptor, OperatorName: name}
	}
	return op, nil
}

func (m *Stuff) stuff(c engine.Context, p *engine.Params) *engine.Response {
	// optional args:
	// max_context_tokens - token budget for the stuffed context
	// temperature - sampling temperature override
	// model - chat model override
	// stream - read the answer from a completion stream
	maxTokens := engine.GetTypedArgumentWithDefault(p.Args, "max_context_tokens", DefaultMaxContextTokens)

	state := c.State()
	query := state.Query.Text

	docs := m.fitContext(state.ContextDocs, maxTokens)
	if len(docs) < len(state.ContextDocs) {
		slog.Warn("context documents exceed token budget, dropping...",
			"kept", len(docs), "total", len(state.ContextDocs), "budget", maxTokens)
		state.SetContextDocs(docs)
	}

	systemPrompt, err := m.SystemPrompt(docs)
	if err != nil {
		return engine.ErrorResponse(state, fmt.Errorf("failed to parse prompt template for query '%s': %w", query, err))
	}

	req := api.ChatRequest{
		Query:        query,
		SystemPrompt: systemPrompt,
	}
	if temp, ok := engine.GetTypedArgument[float32](p.Args, "temperature"); ok {
		req.Temperature = &temp
	}
	if model, ok := engine.GetTypedArgument[string](p.Args, "model"); ok {
		req.ModelName = model
	}

	answer, err := m.complete(c, req, engine.GetTypedArgumentWithDefault(p.Args, "stream", false))
	if err != nil {
		return engine.ErrorResponse(state, fmt.Errorf("chat completion failed: %w", err))
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = NoAnswer
	}

	state.AddContents(engine.ContentsFromMessages(
		llm.TextMessage(llm.MessageRoleAssistant, answer),
	))
	return &engine.Response{State: state}
}

func (m *Stuff) complete(c engine.Context, req api.ChatRequest, stream bool) (string, error) {
	if !stream {
		return m.chat.Complete(c.Context(), req)
	}

	cs, err := m.chat.Chat(c.Context(), req)
	if err != nil {
		return "", err
	}
	return api.StreamReadAll(c.Context(), cs)
}

// SystemPrompt renders the stuff prompt with the documents joined by blank lines.
func (m *Stuff) SystemPrompt(docs []*api.ScoredDocument) (string, error) {
	texts := make([]string, 0, len(docs))
	for _, d := range docs {
		texts = append(texts, d.Content)
	}

	var buf bytes.Buffer
	err := m.templateSystem.Execute(&buf, struct{ Context string }{
		Context: strings.Join(texts, contextSeparator),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fitContext keeps documents in order while they fit in the token budget.
func (m *Stuff) fitContext(docs []*api.ScoredDocument, maxTokens int) []*api.ScoredDocument {
	if maxTokens <= 0 {
		return docs
	}

	total := 0
	for i, d := range docs {
		total += m.counter.Count(d.Content)
		if total > maxTokens {
			return docs[:i]
		}
	}
	return docs
}
