package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/alan-mat/docqa/internal/api"
)

var ErrProviderUnavailable = errors.New("provider unavailable")

type GuardOptions struct {
	// RequestsPerSecond of zero or less disables rate limiting.
	RequestsPerSecond float64
	Burst             int

	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func DefaultGuardOptions() GuardOptions {
	return GuardOptions{
		RequestsPerSecond: 10,
		Burst:             5,
		FailureThreshold:  5,
		OpenTimeout:       60 * time.Second,
	}
}

// Guard protects calls to a remote provider with a rate limiter and a circuit breaker.
type Guard struct {
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewGuard(name string, opts GuardOptions) *Guard {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := max(opts.Burst, 1)

	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker changed state", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Guard{
		breaker: breaker,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (g *Guard) State() gobreaker.State {
	return g.breaker.State()
}

func (g *Guard) execute(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	res, err := g.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %w", ErrProviderUnavailable, g.breaker.Name(), err)
	}
	return res, err
}

type guardedChat struct {
	p ChatProvider
	g *Guard
}

func GuardChat(p ChatProvider, g *Guard) ChatProvider {
	return &guardedChat{p: p, g: g}
}

// Chat guards opening the stream only.
func (c *guardedChat) Chat(ctx context.Context, req api.ChatRequest) (api.CompletionStream, error) {
	res, err := c.g.execute(ctx, func() (any, error) {
		return c.p.Chat(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return res.(api.CompletionStream), nil
}

func (c *guardedChat) Complete(ctx context.Context, req api.ChatRequest) (string, error) {
	res, err := c.g.execute(ctx, func() (any, error) {
		return c.p.Complete(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

type guardedEmbedder struct {
	e Embedder
	g *Guard
}

func GuardEmbedder(e Embedder, g *Guard) Embedder {
	return &guardedEmbedder{e: e, g: g}
}

func (e *guardedEmbedder) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	res, err := e.g.execute(ctx, func() (any, error) {
		return e.e.EmbedQuery(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return res.([]float32), nil
}

func (e *guardedEmbedder) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	res, err := e.g.execute(ctx, func() (any, error) {
		return e.e.EmbedDocuments(ctx, docs)
	})
	if err != nil {
		return nil, err
	}
	return res.([]*api.DocumentEmbedding), nil
}

func (e *guardedEmbedder) GetDimensions() uint {
	return e.e.GetDimensions()
}
