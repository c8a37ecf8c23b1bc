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

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound           = errors.New("session not found")
	ErrInvalidStoreType   = errors.New("invalid session store type")
	ErrMissingRedisClient = errors.New("redis session store requires a client")
)

const (
	DefaultTTL = 24 * time.Hour

	// MaxHistory bounds the number of entries kept per session.
	MaxHistory = 100

	historyDivider = 100
)

// Session is the state of a single browser session.
type Session struct {
	ID          string `redis:"id" json:"id"`
	Collection  string `redis:"collection" json:"collection"`
	Document    string `redis:"document" json:"document"`
	Pages       int    `redis:"pages" json:"pages"`
	Chunks      int    `redis:"chunks" json:"chunks"`
	ChunkSize   int    `redis:"chunk_size" json:"chunk_size"`
	Ready       bool   `redis:"ready" json:"ready"`
	ProcessedAt int64  `redis:"processed_at" json:"processed_at"`
}

// HistoryEntry is a single answered question.
type HistoryEntry struct {
	Query   string   `json:"query"`
	Answer  string   `json:"answer"`
	Sources []string `json:"sources,omitempty"`
	AskedAt int64    `json:"asked_at"`
}

// String renders the entry as a markdown Q/A block followed by a divider line.
func (e HistoryEntry) String() string {
	return fmt.Sprintf("**Q:** %s\n**A:** %s\n%s\n", e.Query, e.Answer, strings.Repeat("-", historyDivider))
}

// RenderHistory concatenates entries in the given order.
func RenderHistory(entries []HistoryEntry) string {
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.String())
	}
	return sb.String()
}

type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error

	// PushHistory prepends entry to the history of session id.
	PushHistory(ctx context.Context, id string, entry HistoryEntry) error

	// History returns the entries of session id, newest first.
	History(ctx context.Context, id string) ([]HistoryEntry, error)

	Delete(ctx context.Context, id string) error
}

type StoreType string

const (
	StoreTypeRedis  StoreType = "redis"
	StoreTypeMemory StoreType = "memory"
)

type Config struct {
	Type StoreType
	TTL  time.Duration
}

func NewStore(cfg Config, rdb *redis.Client) (Store, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	switch cfg.Type {
	case StoreTypeRedis, "":
		if rdb == nil {
			return nil, ErrMissingRedisClient
		}
		return NewRedisStore(rdb, ttl), nil
	case StoreTypeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidStoreType, cfg.Type)
	}
}
