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

package indexing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alan-mat/docqa/internal/api"
	"github.com/alan-mat/docqa/internal/document"
	"github.com/alan-mat/docqa/internal/provider"
	"github.com/alan-mat/docqa/internal/splitter"
	"github.com/alan-mat/docqa/internal/vector"
)

var ErrNoChunks = errors.New("document produced no chunks")

type Stage string

const (
	StageExtracted Stage = "extracted"
	StageSplit     Stage = "split"
	StageEmbedded  Stage = "embedded"
	StageIndexed   Stage = "indexed"
)

// ProgressFunc is called after each completed stage with the number of items
// it produced.
type ProgressFunc func(stage Stage, count int)

type Request struct {
	Collection string
	Title      string
	Data       []byte
	ChunkSize  int
}

type Result struct {
	Pages  int
	Chunks int
	Points int
}

// Indexer turns a PDF into vector store points in a single collection.
type Indexer struct {
	embedder     provider.Embedder
	store        vector.Store
	chunkOverlap int
}

type Option func(*Indexer)

func WithChunkOverlap(overlap int) Option {
	return func(i *Indexer) {
		i.chunkOverlap = overlap
	}
}

func NewIndexer(embedder provider.Embedder, store vector.Store, opts ...Option) *Indexer {
	i := &Indexer{
		embedder:     embedder,
		store:        store,
		chunkOverlap: splitter.DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Index replaces the contents of req.Collection with the chunks of the document.
func (i *Indexer) Index(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(Stage, int) {}
	}

	s, err := splitter.New(req.ChunkSize, splitter.WithChunkOverlap(i.chunkOverlap))
	if err != nil {
		return nil, err
	}

	content, err := document.Extract(ctx, req.Data)
	if err != nil {
		return nil, err
	}
	progress(StageExtracted, len(content.Pages))

	chunks, err := s.Split(content.Text())
	if err != nil {
		return nil, fmt.Errorf("failed to split document '%s': %w", req.Title, err)
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	progress(StageSplit, len(chunks))

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}

	embeddings, err := i.embedder.EmbedDocuments(ctx, []*api.EmbedDocumentRequest{
		{Title: req.Title, Chunks: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed document '%s': %w", req.Title, err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("expected embeddings for 1 document, got %d", len(embeddings))
	}
	progress(StageEmbedded, len(embeddings[0].Values))

	points, err := vector.CreatePoints(req.Title, chunks, embeddings[0].Values)
	if err != nil {
		return nil, err
	}

	if err := i.resetCollection(ctx, req.Collection, dimensionsOf(embeddings[0].Values, i.embedder)); err != nil {
		return nil, err
	}

	if err := i.store.Upsert(ctx, req.Collection, points); err != nil {
		return nil, fmt.Errorf("failed to upsert points to vector store: %w", err)
	}
	progress(StageIndexed, len(points))

	slog.Info("indexed document", "title", req.Title, "collection", req.Collection,
		"pages", len(content.Pages), "chunks", len(chunks))

	return &Result{
		Pages:  len(content.Pages),
		Chunks: len(chunks),
		Points: len(points),
	}, nil
}

func (i *Indexer) resetCollection(ctx context.Context, name string, dims uint) error {
	exists, err := i.store.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to communicate with vector store: %w", err)
	}

	if exists {
		slog.Debug("replacing existing collection", "name", name)
		if err := i.store.DeleteCollection(ctx, name); err != nil {
			return fmt.Errorf("failed to delete collection: %w", err)
		}
	}

	err = i.store.CreateCollection(ctx, vector.Collection{
		Name:       name,
		Dimensions: dims,
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func dimensionsOf(values [][]float32, embedder provider.Embedder) uint {
	if len(values) > 0 && len(values[0]) > 0 {
		return uint(len(values[0]))
	}
	return embedder.GetDimensions()
}
