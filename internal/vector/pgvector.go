package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/alan-mat/docqa/internal/api"
)

const pgvectorSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS docqa_collections (
	name       TEXT PRIMARY KEY,
	dimensions INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS docqa_points (
	id         UUID PRIMARY KEY,
	collection TEXT NOT NULL REFERENCES docqa_collections(name) ON DELETE CASCADE,
	payload    JSONB NOT NULL DEFAULT '{}'::jsonb,
	embedding  vector NOT NULL
);

CREATE INDEX IF NOT EXISTS docqa_points_collection_idx ON docqa_points (collection);
`

// PgvectorStore keeps every collection in a single points table keyed by
// collection name.
type PgvectorStore struct {
	pool *pgxpool.Pool
}

func NewPgvectorStore(ctx context.Context, dsn string) (*PgvectorStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, pgvectorSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &PgvectorStore{pool: pool}, nil
}

func (s *PgvectorStore) CollectionExists(ctx context.Context, collectionName string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM docqa_collections WHERE name = $1)`,
		collectionName,
	).Scan(&exists)
	return exists, err
}

func (s *PgvectorStore) CreateCollection(ctx context.Context, collection Collection) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO docqa_collections (name, dimensions) VALUES ($1, $2)`,
		collection.Name, int(collection.Dimensions),
	)
	return err
}

func (s *PgvectorStore) DeleteCollection(ctx context.Context, collectionName string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM docqa_collections WHERE name = $1`, collectionName)
	return err
}

func (s *PgvectorStore) Upsert(ctx context.Context, collectionName string, points []*Point) error {
	var dims int
	err := s.pool.QueryRow(ctx,
		`SELECT dimensions FROM docqa_collections WHERE name = $1`,
		collectionName,
	).Scan(&dims)
	if err != nil {
		return collectionError(collectionName, err)
	}

	batch := &pgx.Batch{}
	for _, p := range points {
		if len(p.Vector) != dims {
			return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dims, len(p.Vector))
		}

		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("invalid payload for point '%s': %w", p.ID, err)
		}

		batch.Queue(`
			INSERT INTO docqa_points (id, collection, payload, embedding)
			VALUES ($1, $2, $3::jsonb, $4::vector)
			ON CONFLICT (id) DO UPDATE
			SET payload = EXCLUDED.payload, embedding = EXCLUDED.embedding`,
			p.ID, collectionName, string(payload), pgvector.NewVector(p.Vector),
		)
	}

	return s.pool.SendBatch(ctx, batch).Close()
}

func (s *PgvectorStore) Query(ctx context.Context, params *QueryParams) ([]*api.ScoredDocument, error) {
	limit := int(params.limit)
	if limit == 0 {
		limit = 10
	}

	filter := make(map[string]string, len(params.filters))
	for _, f := range params.filters {
		filter[f.Key] = f.Value
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT payload::text, 1 - (embedding <=> $2::vector) AS score
		FROM docqa_points
		WHERE collection = $1 AND payload @> $3::jsonb
		ORDER BY embedding <=> $2::vector
		LIMIT $4`,
		params.collection, pgvector.NewVector(params.query), string(filterJSON), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]*api.ScoredDocument, 0, limit)
	for rows.Next() {
		var (
			payloadText string
			score       float64
		)
		if err := rows.Scan(&payloadText, &score); err != nil {
			return nil, err
		}

		var payload map[string]any
		if params.withPayload {
			if err := json.Unmarshal([]byte(payloadText), &payload); err != nil {
				return nil, err
			}
		}
		docs = append(docs, scoredDocumentFromPayload(score, payload))
	}

	return docs, rows.Err()
}

func (s *PgvectorStore) Close() error {
	s.pool.Close()
	return nil
}

func collectionError(collectionName string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: '%s'", ErrCollectionNotFound, collectionName)
	}
	return err
}
