package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
	}
}

func sessionKey(id string) string {
	return "docqa:session:" + id
}

func historyKey(id string) string {
	return "docqa:session:" + id + ":history"
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	res := s.rdb.HGetAll(ctx, sessionKey(id))
	vals, err := res.Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}

	var sess Session
	if err := res.Scan(&sess); err != nil {
		return nil, fmt.Errorf("failed to decode session '%s': %w", id, err)
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	key := sessionKey(sess.ID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, sess)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

func (s *RedisStore) PushHistory(ctx context.Context, id string, entry HistoryEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	key := historyKey(id)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, string(entryJSON))
		pipe.LTrim(ctx, key, 0, MaxHistory-1)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

func (s *RedisStore) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	vals, err := s.rdb.LRange(ctx, historyKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(vals))
	for _, v := range vals {
		var e HistoryEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			slog.Warn("skipping malformed history entry", "session", id, "err", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, sessionKey(id), historyKey(id)).Err()
}
