package vector

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sort"
	"sync"

	"github.com/alan-mat/docqa/internal/api"
)

type memoryCollection struct {
	dimensions uint
	points     map[string]*Point
}

// MemoryStore keeps collections in process memory and scores by cosine similarity.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
	}
}

func (s *MemoryStore) CollectionExists(ctx context.Context, collectionName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.collections[collectionName]
	return ok, nil
}

func (s *MemoryStore) CreateCollection(ctx context.Context, collection Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection.Name]; ok {
		return fmt.Errorf("collection '%s' already exists", collection.Name)
	}

	s.collections[collection.Name] = &memoryCollection{
		dimensions: collection.Dimensions,
		points:     make(map[string]*Point),
	}
	return nil
}

func (s *MemoryStore) DeleteCollection(ctx context.Context, collectionName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, collectionName)
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, collectionName string, points []*Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collectionName]
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrCollectionNotFound, collectionName)
	}

	for _, p := range points {
		if c.dimensions != 0 && uint(len(p.Vector)) != c.dimensions {
			return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, c.dimensions, len(p.Vector))
		}

		c.points[p.ID] = &Point{
			ID:      p.ID,
			Vector:  append([]float32(nil), p.Vector...),
			Payload: maps.Clone(p.Payload),
		}
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, params *QueryParams) ([]*api.ScoredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[params.collection]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrCollectionNotFound, params.collection)
	}

	type scored struct {
		score float64
		point *Point
	}

	results := make([]scored, 0, len(c.points))
	for _, p := range c.points {
		if !matchesFilters(p, params.filters) {
			continue
		}
		results = append(results, scored{
			score: cosineSimilarity(params.query, p.Vector),
			point: p,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	if params.limit > 0 && uint(len(results)) > params.limit {
		results = results[:params.limit]
	}

	docs := make([]*api.ScoredDocument, 0, len(results))
	for _, r := range results {
		var payload map[string]any
		if params.withPayload {
			payload = r.point.Payload
		}
		docs = append(docs, scoredDocumentFromPayload(r.score, payload))
	}
	return docs, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func matchesFilters(p *Point, filters []*QueryMatch) bool {
	for _, f := range filters {
		v, ok := p.Payload[f.Key]
		if !ok || fmt.Sprint(v) != f.Value {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
