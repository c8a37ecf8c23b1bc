package session_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/alan-mat/docqa/internal/session"
)

func TestHistoryEntryString(t *testing.T) {
	e := session.HistoryEntry{Query: "What is Go?", Answer: "A language."}

	expected := "**Q:** What is Go?\n**A:** A language.\n" + strings.Repeat("-", 100) + "\n"
	if got := e.String(); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

func TestRenderHistory(t *testing.T) {
	entries := []session.HistoryEntry{
		{Query: "q2", Answer: "a2"},
		{Query: "q1", Answer: "a1"},
	}

	got := session.RenderHistory(entries)
	if !strings.HasPrefix(got, "**Q:** q2") {
		t.Errorf("expected newest entry first, got %q", got)
	}
	if strings.Count(got, strings.Repeat("-", 100)) != 2 {
		t.Errorf("expected two dividers, got %q", got)
	}
	if session.RenderHistory(nil) != "" {
		t.Error("expected empty rendering for no entries")
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := session.NewMemoryStore()

	if _, err := s.Get(ctx, "s1"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	sess := &session.Session{ID: "s1", Collection: "docqa_s1", Document: "a.pdf", Ready: true}
	if err := s.Save(ctx, sess); err != nil {
		t.Fatal(err)
	}

	sess.Ready = false
	got, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Ready {
		t.Error("expected stored session to be unaffected by later mutation")
	}

	for i := range 3 {
		s.PushHistory(ctx, "s1", session.HistoryEntry{Query: fmt.Sprintf("q%d", i)})
	}

	history, _ := s.History(ctx, "s1")
	queries := make([]string, 0, len(history))
	for _, h := range history {
		queries = append(queries, h.Query)
	}
	if !reflect.DeepEqual(queries, []string{"q2", "q1", "q0"}) {
		t.Errorf("expected newest first, got %v", queries)
	}

	if err := s.Delete(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "s1"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if history, _ := s.History(ctx, "s1"); len(history) != 0 {
		t.Errorf("expected empty history after delete, got %d entries", len(history))
	}
}

func TestMemoryStoreHistoryLimit(t *testing.T) {
	ctx := context.Background()
	s := session.NewMemoryStore()

	for i := range session.MaxHistory + 5 {
		s.PushHistory(ctx, "s1", session.HistoryEntry{Query: fmt.Sprintf("q%d", i)})
	}

	history, _ := s.History(ctx, "s1")
	if len(history) != session.MaxHistory {
		t.Fatalf("expected %d entries, got %d", session.MaxHistory, len(history))
	}
	if history[0].Query != fmt.Sprintf("q%d", session.MaxHistory+4) {
		t.Errorf("expected newest entry first, got %s", history[0].Query)
	}
}

func TestNewStore(t *testing.T) {
	if _, err := session.NewStore(session.Config{Type: session.StoreTypeMemory}, nil); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if _, err := session.NewStore(session.Config{Type: session.StoreTypeRedis}, nil); !errors.Is(err, session.ErrMissingRedisClient) {
		t.Errorf("expected ErrMissingRedisClient, got %v", err)
	}
	if _, err := session.NewStore(session.Config{Type: "mongo"}, nil); !errors.Is(err, session.ErrInvalidStoreType) {
		t.Errorf("expected ErrInvalidStoreType, got %v", err)
	}
}
