package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/alan-mat/docqa/internal/config"
	"github.com/alan-mat/docqa/internal/provider"
	"github.com/alan-mat/docqa/internal/qa"
	"github.com/alan-mat/docqa/internal/session"
	"github.com/alan-mat/docqa/internal/tasks"
	"github.com/alan-mat/docqa/internal/transport"
	"github.com/alan-mat/docqa/internal/vector"
)

// app holds the services shared by every subcommand.
type app struct {
	conf *config.Config

	rdb       *redis.Client
	store     vector.Store
	sessions  session.Store
	transport transport.Transport
	qa        *qa.Service
}

func (a *app) usesRedis() bool {
	return a.conf.Queue.Mode == config.QueueModeAsynq || a.conf.Session.Type == string(session.StoreTypeRedis)
}

func newApp(ctx context.Context, conf *config.Config) (*app, error) {
	a := &app{conf: conf}

	if a.usesRedis() {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     conf.Transport.Addr,
			Username: conf.Transport.Username,
			Password: conf.Transport.Password,
			DB:       conf.Transport.DB,
		})
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis at '%s': %w", conf.Transport.Addr, err)
		}
		a.transport = transport.NewRedisTransport(a.rdb)
	} else {
		a.transport = transport.NewMemoryTransport()
	}

	sessions, err := session.NewStore(session.Config{
		Type: session.StoreType(conf.Session.Type),
		TTL:  conf.Session.TTL,
	}, a.rdb)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.sessions = sessions

	store, err := vector.NewStore(ctx, vector.Config{
		Type: conf.VectorStore.Type,
		Host: conf.VectorStore.Host,
		Port: conf.VectorStore.Port,
		DSN:  conf.VectorStore.DSN,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	a.store = store

	svc, err := newQAService(ctx, conf, store, sessions)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.qa = svc

	return a, nil
}

func newQAService(ctx context.Context, conf *config.Config, store vector.Store, sessions session.Store) (*qa.Service, error) {
	guardOpts := conf.Providers.Guard.GuardOptions()

	chat, err := provider.NewChatProvider(ctx, conf.Providers.Chat.ProviderConfig(conf.Generation.Temperature))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	chat = provider.GuardChat(chat, provider.NewGuard("chat", guardOpts))

	embedder, err := provider.NewEmbedder(ctx, conf.Providers.Embedding.ProviderConfig(0))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	embedder = provider.GuardEmbedder(embedder, provider.NewGuard("embedding", guardOpts))

	reranker, err := provider.NewReranker(conf.Providers.Rerank.ProviderConfig(0))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize reranker: %w", err)
	}

	model := conf.Generation.Model
	if model == "" {
		model = conf.Providers.Chat.Model
	}

	slog.Debug("initialized providers",
		"chat", conf.Providers.Chat.Type, "embedding", conf.Providers.Embedding.Type,
		"rerank", conf.Providers.Rerank.Type)

	return qa.NewService(embedder, chat, reranker, store, sessions, qa.WithOptions(qa.Options{
		TopK:             conf.Retrieval.TopK,
		RerankTopN:       conf.Retrieval.RerankTopN,
		RerankThreshold:  conf.Retrieval.RerankThreshold,
		MaxContextTokens: conf.Generation.MaxContextTokens,
		Temperature:      conf.Generation.Temperature,
		Model:            model,
		Stream:           conf.Generation.Stream,
		ChunkOverlap:     conf.Ingest.ChunkOverlap,
	})), nil
}

func (a *app) runner() *tasks.Runner {
	return tasks.NewRunner(a.transport, a.qa)
}

// dispatcher returns the asynq dispatcher and its client, or an inline
// dispatcher and a nil client.
func (a *app) dispatcher() (tasks.Dispatcher, *asynq.Client) {
	if a.conf.Queue.Mode == config.QueueModeInline {
		return tasks.NewInlineDispatcher(a.runner(), a.transport), nil
	}

	client := asynq.NewClientFromRedisClient(a.rdb)
	d := tasks.NewAsynqDispatcher(client, a.transport,
		tasks.WithQueue(a.conf.Queue.Name),
		tasks.WithMaxRetry(a.conf.Queue.MaxRetry),
	)
	return d, client
}

func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	return errors.Join(errs...)
}
