package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type RedisTransport struct {
	rdb *redis.Client
}

func NewRedisTransport(rdb *redis.Client) *RedisTransport {
	return &RedisTransport{
		rdb: rdb,
	}
}

func traceKey(id string) string {
	return "docqa:trace:" + id
}

func streamKey(id string) string {
	return "docqa:stream:" + id
}

func (t *RedisTransport) GetMessageStream(id string) (MessageStream, error) {
	if len(id) == 0 {
		return nil, ErrInvalidStreamID
	}
	rs := &RedisStream{
		id:          id,
		key:         streamKey(id),
		lastRedisID: "0",
		rdb:         t.rdb,
	}
	return rs, nil
}

func (t *RedisTransport) SetTrace(ctx context.Context, trace *Trace) error {
	key := traceKey(trace.ID)
	_, err := t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"id", trace.ID,
			"status", int(trace.Status),
			"started_at", trace.StartedAt,
			"completed_at", trace.CompletedAt,
			"session", trace.Session,
			"document", trace.Document,
			"fail_reason", trace.FailReason,
		)
		pipe.Expire(ctx, key, TraceExpiry)
		return nil
	})
	return err
}

func (t *RedisTransport) GetTrace(ctx context.Context, traceId string) (*Trace, error) {
	res := t.rdb.HGetAll(ctx, traceKey(traceId))
	vals, err := res.Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, ErrTraceNotFound
	}

	var trace Trace
	if err := res.Scan(&trace); err != nil {
		return nil, fmt.Errorf("failed to decode trace '%s': %w", traceId, err)
	}
	return &trace, nil
}

type RedisStream struct {
	id          string
	key         string
	lastRedisID string

	rdb *redis.Client
}

func (s *RedisStream) Send(ctx context.Context, payload MessageStreamPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.key,
			ID:     "*",
			Values: map[string]any{
				"payload": string(payloadJSON),
			},
		})
		pipe.Expire(ctx, s.key, TraceExpiry)
		return nil
	})
	if err != nil {
		return err
	}

	slog.Debug("sent message to stream", "id", s.id, "status", payload.Status, "stage", payload.Stage)
	return nil
}

func (s *RedisStream) Recv(ctx context.Context) (*MessageStreamPayload, error) {
	rstreams, err := s.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.key, s.lastRedisID},
		Count:   1,
		Block:   0,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(rstreams) == 0 || len(rstreams[0].Messages) == 0 {
		return nil, fmt.Errorf("no message received from stream '%s'", s.id)
	}

	msg := rstreams[0].Messages[0]
	s.lastRedisID = msg.ID
	return decodeMessage(msg)
}

func (s *RedisStream) ReadAll(ctx context.Context) ([]*MessageStreamPayload, error) {
	msgs, err := s.rdb.XRange(ctx, s.key, "-", "+").Result()
	if err != nil {
		return nil, err
	}

	payloads := make([]*MessageStreamPayload, 0, len(msgs))
	for _, msg := range msgs {
		p, err := decodeMessage(msg)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, p)
	}
	return payloads, nil
}

func (s *RedisStream) GetID() string {
	return s.id
}

func decodeMessage(msg redis.XMessage) (*MessageStreamPayload, error) {
	payloadJSON, ok := msg.Values["payload"].(string)
	if !ok {
		return nil, fmt.Errorf("failed to read payload from stream message")
	}

	var payload MessageStreamPayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return nil, fmt.Errorf("failed to deserialize stream message payload: %w", err)
	}
	return &payload, nil
}
