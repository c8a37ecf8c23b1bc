package server

import (
	"testing"
	"time"
)

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newRateLimiter(1, 1)
	l.now = func() time.Time { return now }
	l.lastSweep = now

	first := l.get("10.0.0.1")
	l.get("10.0.0.2")
	if l.limiters.Len() != 2 {
		t.Fatalf("expected 2 limiters, got %d", l.limiters.Len())
	}

	now = now.Add(limiterIdleTTL / 2)
	if l.get("10.0.0.1") != first {
		t.Error("expected the same limiter for a returning client")
	}

	now = now.Add(limiterIdleTTL + time.Second)
	l.get("10.0.0.3")

	if l.limiters.Exists("10.0.0.1") || l.limiters.Exists("10.0.0.2") {
		t.Errorf("expected idle limiters to be evicted, got %v", l.limiters.List())
	}
	if !l.limiters.Exists("10.0.0.3") || l.limiters.Len() != 1 {
		t.Errorf("expected only the active limiter to remain, got %v", l.limiters.List())
	}
}
