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

package worker

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/alan-mat/docqa/internal/tasks"
)

type WorkerConfig struct {
	Concurrency int
	Queue       string
}

func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency: 10,
		Queue:       tasks.DefaultQueue,
	}
}

// Worker consumes index tasks from the asynq queue.
type Worker struct {
	config WorkerConfig

	rdb         *redis.Client
	asynqServer *asynq.Server

	handler *tasks.TaskHandler
}

func New(rdb *redis.Client, config WorkerConfig, handler *tasks.TaskHandler) *Worker {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConfig().Concurrency
	}
	if config.Queue == "" {
		config.Queue = tasks.DefaultQueue
	}

	return &Worker{
		config:  config,
		rdb:     rdb,
		handler: handler,
	}
}

// Start runs the worker until it receives a termination signal.
func (w *Worker) Start() error {
	w.asynqServer = asynq.NewServerFromRedisClient(
		w.rdb,
		asynq.Config{
			Concurrency: w.config.Concurrency,
			Queues:      map[string]int{w.config.Queue: 1},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				id, _ := asynq.GetTaskID(ctx)
				slog.Error("task failed", "id", id, "type", task.Type(), "err", err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeIndex, w.handler)

	slog.Info("Worker starting", "concurrency", w.config.Concurrency, "queue", w.config.Queue)
	if err := w.asynqServer.Run(mux); err != nil {
		return err
	}
	return nil
}
