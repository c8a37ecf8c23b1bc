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

// Package qa answers questions about the PDF processed in a session.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alan-mat/docqa/internal/api"
	"github.com/alan-mat/docqa/internal/document"
	"github.com/alan-mat/docqa/internal/engine"
	"github.com/alan-mat/docqa/internal/modules/generation"
	"github.com/alan-mat/docqa/internal/modules/indexing"
	"github.com/alan-mat/docqa/internal/modules/postretrieval"
	"github.com/alan-mat/docqa/internal/modules/retrieval"
	"github.com/alan-mat/docqa/internal/provider"
	"github.com/alan-mat/docqa/internal/session"
	"github.com/alan-mat/docqa/internal/splitter"
	"github.com/alan-mat/docqa/internal/vector"
)

var (
	ErrNotReady     = errors.New("session has no processed document")
	ErrEmptyQuery   = errors.New("query must not be empty")
	ErrNotPDF       = errors.New("file is not a pdf document")
	ErrMissingID    = errors.New("session id must not be empty")
	ErrNoAnswerText = errors.New("chain produced no answer")
)

const (
	// NotReadyMessage is shown to users asking before a document was processed.
	NotReadyMessage = "Please upload and process a PDF first."

	collectionPrefix = "docqa_"
)

// CollectionName returns the vector store collection holding the document
// of the given session.
func CollectionName(sessionID string) string {
	return collectionPrefix + sessionID
}

// IsValidationError reports whether err was caused by the uploaded document
// or request parameters rather than by a backing service.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrNotPDF) ||
		errors.Is(err, ErrEmptyQuery) ||
		errors.Is(err, ErrMissingID) ||
		errors.Is(err, document.ErrEmptyDocument) ||
		errors.Is(err, document.ErrInvalidPDF) ||
		errors.Is(err, document.ErrNoText) ||
		errors.Is(err, splitter.ErrInvalidChunkSize) ||
		errors.Is(err, indexing.ErrNoChunks)
}

type Source struct {
	Label   string  `json:"label"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type Answer struct {
	Query   string   `json:"query"`
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// SourceLabels returns the labels of the answer sources in order.
func (a Answer) SourceLabels() []string {
	labels := make([]string, 0, len(a.Sources))
	for _, s := range a.Sources {
		labels = append(labels, s.Label)
	}
	return labels
}

type ProcessRequest struct {
	SessionID string
	Filename  string
	Data      []byte
	ChunkSize int
}

type Options struct {
	TopK             int
	RerankTopN       int
	RerankThreshold  float64
	MaxContextTokens int
	Temperature      float32
	Model            string
	Stream           bool
	ChunkOverlap     int

	counter generation.TokenCounter
}

func DefaultOptions() Options {
	return Options{
		TopK:             retrieval.DefaultTopK,
		RerankThreshold:  api.RerankScoreThreshold,
		MaxContextTokens: generation.DefaultMaxContextTokens,
		Temperature:      0.75,
		ChunkOverlap:     splitter.DefaultChunkOverlap,
	}
}

type Option func(*Options)

func WithOptions(o Options) Option {
	return func(opts *Options) {
		counter := opts.counter
		*opts = o
		if opts.counter == nil {
			opts.counter = counter
		}
	}
}

func WithTokenCounter(counter generation.TokenCounter) Option {
	return func(opts *Options) {
		opts.counter = counter
	}
}

type Service struct {
	indexer  *indexing.Indexer
	sessions session.Store
	chain    *engine.Chain

	logger *slog.Logger
}

// NewService builds the QA chain. A nil reranker leaves retrieval order as is.
func NewService(
	embedder provider.Embedder,
	chat provider.ChatProvider,
	reranker provider.Reranker,
	store vector.Store,
	sessions session.Store,
	opts ...Option,
) *Service {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.TopK <= 0 {
		o.TopK = retrieval.DefaultTopK
	}

	stuffOpts := []generation.StuffOption{}
	if o.counter != nil {
		stuffOpts = append(stuffOpts, generation.WithTokenCounter(o.counter))
	}

	steps := []*engine.Step{
		engine.NewStep(retrieval.NewSemantic(embedder, store), retrieval.OperatorDense, engine.Arguments{
			"top_k": o.TopK,
		}),
	}
	if reranker != nil {
		rerankArgs := engine.Arguments{"threshold": o.RerankThreshold}
		if o.RerankTopN > 0 {
			rerankArgs["top_n"] = o.RerankTopN
		}
		steps = append(steps, engine.NewStep(postretrieval.NewRerank(reranker), postretrieval.OperatorRerank, rerankArgs))
	}

	genArgs := engine.Arguments{
		"max_context_tokens": o.MaxContextTokens,
		"temperature":        o.Temperature,
	}
	if o.Model != "" {
		genArgs["model"] = o.Model
	}
	if o.Stream {
		genArgs["stream"] = true
	}
	steps = append(steps, engine.NewStep(generation.NewStuff(chat, stuffOpts...), generation.OperatorStuff, genArgs))

	return &Service{
		indexer:  indexing.NewIndexer(embedder, store, indexing.WithChunkOverlap(o.ChunkOverlap)),
		sessions: sessions,
		chain:    engine.NewChain("qa", steps...),
		logger:   slog.Default(),
	}
}

func (s *Service) Process(ctx context.Context, sessionID, filename string, data []byte, chunkSize int) (*session.Session, error) {
	return s.ProcessWithProgress(ctx, ProcessRequest{
		SessionID: sessionID,
		Filename:  filename,
		Data:      data,
		ChunkSize: chunkSize,
	}, nil)
}

// ProcessWithProgress indexes the document into the session collection,
// replacing any previously processed document, and marks the session ready.
func (s *Service) ProcessWithProgress(ctx context.Context, req ProcessRequest, progress indexing.ProgressFunc) (*session.Session, error) {
	if req.SessionID == "" {
		return nil, ErrMissingID
	}
	if len(req.Data) == 0 {
		return nil, document.ErrEmptyDocument
	}
	if !document.IsPDF(req.Filename, req.Data) {
		return nil, fmt.Errorf("%w: '%s'", ErrNotPDF, req.Filename)
	}

	collection := CollectionName(req.SessionID)
	res, err := s.indexer.Index(ctx, indexing.Request{
		Collection: collection,
		Title:      req.Filename,
		Data:       req.Data,
		ChunkSize:  req.ChunkSize,
	}, progress)
	if err != nil {
		if !IsValidationError(err) {
			s.markNotReady(ctx, req.SessionID)
		}
		return nil, err
	}

	sess := &session.Session{
		ID:          req.SessionID,
		Collection:  collection,
		Document:    req.Filename,
		Pages:       res.Pages,
		Chunks:      res.Chunks,
		ChunkSize:   req.ChunkSize,
		Ready:       true,
		ProcessedAt: time.Now().UnixNano(),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.logger.Info("processed document", "session", req.SessionID, "document", req.Filename,
		"pages", res.Pages, "chunks", res.Chunks)
	return sess, nil
}

func (s *Service) markNotReady(ctx context.Context, sessionID string) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return
	}
	sess.Ready = false
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.Warn("failed to reset session readiness", "session", sessionID, "err", err)
	}
}

func (s *Service) Ask(ctx context.Context, sessionID, question string) (*Answer, error) {
	query := strings.TrimSpace(question)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrNotReady
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !sess.Ready {
		return nil, ErrNotReady
	}

	taskID := uuid.NewString()
	c := engine.NewContext(ctx, taskID, sessionID, sess.Collection, engine.TextQuery(query)).
		WithValues(map[string]any{retrieval.ValueDocument: sess.Document})

	exec := s.chain.Executer(
		engine.LoggingMiddleware(s.logger),
		engine.RecoverMiddleware(),
	)
	resp := exec.Execute(c, engine.DefaultParams())
	if resp.Err != nil {
		return nil, fmt.Errorf("qa chain failed: %w", resp.Err)
	}

	msg, ok := resp.State.Contents.Last()
	if !ok {
		return nil, ErrNoAnswerText
	}

	answer := &Answer{
		Query:   query,
		Text:    msg.Text(),
		Sources: make([]Source, 0, len(resp.State.ContextDocs)),
	}
	for _, d := range resp.State.ContextDocs {
		answer.Sources = append(answer.Sources, Source{
			Label:   d.Source,
			Content: d.Content,
			Score:   d.Score,
		})
	}

	entry := session.HistoryEntry{
		Query:   answer.Query,
		Answer:  answer.Text,
		Sources: answer.SourceLabels(),
		AskedAt: time.Now().UnixNano(),
	}
	if err := s.sessions.PushHistory(ctx, sessionID, entry); err != nil {
		s.logger.Warn("failed to record history entry", "session", sessionID, "err", err)
	}

	s.logger.Debug("answered question", "session", sessionID, "id", taskID, "sources", len(answer.Sources))
	return answer, nil
}

// Session returns the state of the session, or a fresh, not ready session
// when none was stored yet.
func (s *Service) Session(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return &session.Session{ID: sessionID, Collection: CollectionName(sessionID)}, nil
	}
	return sess, err
}

func (s *Service) History(ctx context.Context, sessionID string) ([]session.HistoryEntry, error) {
	return s.sessions.History(ctx, sessionID)
}
