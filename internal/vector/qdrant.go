package vector

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/alan-mat/docqa/internal/api"
)

const qdrantUpsertBatchSize = 256

type QdrantStore struct {
	client     *qdrant.Client
	host       string
	port       int
	waitUpsert bool
}

func NewQdrantStore(host string, port int) (*QdrantStore, error) {
	c, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, err
	}

	s := &QdrantStore{
		client:     c,
		host:       host,
		port:       port,
		waitUpsert: true,
	}
	return s, nil
}

func (s QdrantStore) CollectionExists(ctx context.Context, collectionName string) (bool, error) {
	return s.client.CollectionExists(ctx, collectionName)
}

func (s QdrantStore) CreateCollection(ctx context.Context, collection Collection) error {
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection.Name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(collection.Dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (s QdrantStore) DeleteCollection(ctx context.Context, collectionName string) error {
	return s.client.DeleteCollection(ctx, collectionName)
}

func (s QdrantStore) Upsert(ctx context.Context, collectionName string, points []*Point) error {
	for start := 0; start < len(points); start += qdrantUpsertBatchSize {
		end := min(start+qdrantUpsertBatchSize, len(points))

		upsertPoints := make([]*qdrant.PointStruct, 0, end-start)
		for _, point := range points[start:end] {
			payload, err := qdrant.TryValueMap(point.Payload)
			if err != nil {
				return fmt.Errorf("invalid payload for point '%s': %w", point.ID, err)
			}

			upsertPoints = append(upsertPoints, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(point.ID),
				Vectors: qdrant.NewVectors(point.Vector...),
				Payload: payload,
			})
		}

		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collectionName,
			Wait:           &s.waitUpsert,
			Points:         upsertPoints,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (s QdrantStore) Query(ctx context.Context, params *QueryParams) ([]*api.ScoredDocument, error) {
	queryPoints := &qdrant.QueryPoints{
		CollectionName: params.collection,
		Query:          qdrant.NewQuery(params.query...),
		WithPayload:    qdrant.NewWithPayload(params.withPayload),
	}

	if params.limit > 0 {
		limit := uint64(params.limit)
		queryPoints.Limit = &limit
	}

	if len(params.filters) > 0 {
		conds := make([]*qdrant.Condition, 0, len(params.filters))
		for _, filter := range params.filters {
			conds = append(conds, qdrant.NewMatch(filter.Key, filter.Value))
		}

		queryPoints.Filter = &qdrant.Filter{
			Must: conds,
		}
	}

	res, err := s.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, err
	}

	docs := make([]*api.ScoredDocument, 0, len(res))
	for _, sp := range res {
		payload := make(map[string]any, len(sp.Payload))
		for k, v := range sp.Payload {
			switch v.GetKind().(type) {
			case *qdrant.Value_StringValue:
				payload[k] = v.GetStringValue()
			case *qdrant.Value_IntegerValue:
				payload[k] = v.GetIntegerValue()
			}
		}

		docs = append(docs, scoredDocumentFromPayload(float64(sp.Score), payload))
	}

	return docs, nil
}

func (s QdrantStore) Close() error {
	return s.client.Close()
}
