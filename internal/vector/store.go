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

package vector

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/alan-mat/docqa/internal/api"
	"github.com/alan-mat/docqa/internal/splitter"
)

var (
	ErrInvalidStoreType      = errors.New("no vector store found for given type")
	ErrFailedStoreInitialize = errors.New("failed to initialise vector store")
	ErrCollectionNotFound    = errors.New("collection not found")
	ErrDimensionMismatch     = errors.New("vector dimensions do not match collection")
)

// Payload keys stored with every point.
const (
	PayloadText       = "text"
	PayloadSource     = "source"
	PayloadTitle      = "title"
	PayloadChunkIndex = "chunk_index"
)

const (
	StoreTypeQdrant = iota
	StoreTypePgvector
	StoreTypeMemory
)

var storeTypeMap = map[string]StoreType{
	"qdrant":   StoreTypeQdrant,
	"pgvector": StoreTypePgvector,
	"memory":   StoreTypeMemory,
}

type StoreType int

type Store interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, collection Collection) error
	DeleteCollection(ctx context.Context, collectionName string) error

	Upsert(ctx context.Context, collectionName string, points []*Point) error

	Query(ctx context.Context, params *QueryParams) ([]*api.ScoredDocument, error)

	Close() error
}

type Config struct {
	Type string

	// qdrant
	Host string
	Port int

	// pgvector
	DSN string
}

func NewStore(ctx context.Context, cfg Config) (Store, error) {
	storeType, ok := storeTypeMap[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidStoreType, cfg.Type)
	}

	var (
		store Store
		err   error
	)

	switch storeType {
	case StoreTypeQdrant:
		host, port := cfg.Host, cfg.Port
		if host == "" {
			host = "localhost"
		}
		if port == 0 {
			port = 6334
		}
		store, err = NewQdrantStore(host, port)
	case StoreTypePgvector:
		store, err = NewPgvectorStore(ctx, cfg.DSN)
	case StoreTypeMemory:
		store = NewMemoryStore()
	default:
		return nil, ErrInvalidStoreType
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedStoreInitialize, err)
	}
	return store, nil
}

type Collection struct {
	Name       string
	Dimensions uint
}

type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// CreatePoints pairs each chunk with its embedding. The embedding values
// must be in chunk order.
func CreatePoints(title string, chunks []splitter.Chunk, values [][]float32) ([]*Point, error) {
	if len(chunks) != len(values) {
		return nil, fmt.Errorf("received %d embeddings for %d chunks", len(values), len(chunks))
	}

	points := make([]*Point, 0, len(chunks))
	for i, chunk := range chunks {
		points = append(points, &Point{
			ID:     uuid.NewString(),
			Vector: values[i],
			Payload: map[string]any{
				PayloadTitle:      title,
				PayloadText:       chunk.Text,
				PayloadSource:     chunk.Source,
				PayloadChunkIndex: chunk.Index,
			},
		})
	}
	return points, nil
}

type QueryMatch struct {
	Key   string
	Value string
}

type QueryParams struct {
	collection  string
	query       []float32
	withPayload bool
	limit       uint
	filters     []*QueryMatch
}

type QueryParamsOption func(*QueryParams)

func NewQueryParams(collection string, query []float32, opts ...QueryParamsOption) *QueryParams {
	qp := &QueryParams{
		collection:  collection,
		query:       query,
		withPayload: false,
		limit:       0,
		filters:     make([]*QueryMatch, 0),
	}

	for _, opt := range opts {
		opt(qp)
	}
	return qp
}

func WithPayload(w bool) QueryParamsOption {
	return func(qp *QueryParams) {
		qp.withPayload = w
	}
}

func WithLimit(limit uint) QueryParamsOption {
	return func(qp *QueryParams) {
		qp.limit = limit
	}
}

func WithFilter(filter *QueryMatch) QueryParamsOption {
	return func(qp *QueryParams) {
		qp.filters = append(qp.filters, filter)
	}
}

// scoredDocumentFromPayload maps stored payload values onto a scored document.
func scoredDocumentFromPayload(score float64, payload map[string]any) *api.ScoredDocument {
	doc := &api.ScoredDocument{Score: score}

	if v, ok := payload[PayloadText].(string); ok {
		doc.Content = v
	}
	if v, ok := payload[PayloadTitle].(string); ok {
		doc.Title = v
	}
	if v, ok := payload[PayloadSource].(string); ok {
		doc.Source = v
	}

	switch v := payload[PayloadChunkIndex].(type) {
	case int:
		doc.Index = v
	case int64:
		doc.Index = int(v)
	case float64:
		doc.Index = int(v)
	}

	return doc
}
