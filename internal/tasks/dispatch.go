package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/alan-mat/docqa/internal/transport"
)

// Job identifies a dispatched index job and its status at dispatch time.
type Job struct {
	ID     string                `json:"job_id"`
	Status transport.TraceStatus `json:"status"`
}

type Dispatcher interface {
	// Dispatch starts an index job. Implementations that run the job
	// before returning report its error.
	Dispatch(ctx context.Context, p IndexPayload) (*Job, error)
}

type AsynqDispatcher struct {
	client    *asynq.Client
	transport transport.Transport

	queue    string
	maxRetry int
}

type AsynqDispatcherOption func(*AsynqDispatcher)

func WithQueue(queue string) AsynqDispatcherOption {
	return func(d *AsynqDispatcher) {
		if queue != "" {
			d.queue = queue
		}
	}
}

func WithMaxRetry(n int) AsynqDispatcherOption {
	return func(d *AsynqDispatcher) {
		d.maxRetry = n
	}
}

func NewAsynqDispatcher(client *asynq.Client, transport transport.Transport, opts ...AsynqDispatcherOption) *AsynqDispatcher {
	d := &AsynqDispatcher{
		client:    client,
		transport: transport,
		queue:     DefaultQueue,
		maxRetry:  DefaultMaxRetry,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, p IndexPayload) (*Job, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	t, err := NewIndexTask(p,
		asynq.TaskID(id),
		asynq.Queue(d.queue),
		asynq.MaxRetry(d.maxRetry),
		asynq.Timeout(DefaultTimeout),
	)
	if err != nil {
		return nil, err
	}

	trace := transport.NewTrace(id, p.SessionID, p.Filename)
	if err := d.transport.SetTrace(ctx, trace); err != nil {
		return nil, fmt.Errorf("failed to set trace: %w", err)
	}

	info, err := d.client.EnqueueContext(ctx, t)
	if err != nil {
		trace.Fail("enqueue failed")
		d.transport.SetTrace(ctx, trace)
		return nil, fmt.Errorf("failed to enqueue index task: %w", err)
	}

	slog.Info("enqueued task successfully", "id", info.ID, "queue", info.Queue)
	return &Job{ID: info.ID, Status: trace.Status}, nil
}

// InlineDispatcher runs index jobs in the calling goroutine.
type InlineDispatcher struct {
	runner    *Runner
	transport transport.Transport
}

func NewInlineDispatcher(runner *Runner, transport transport.Transport) *InlineDispatcher {
	return &InlineDispatcher{
		runner:    runner,
		transport: transport,
	}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, p IndexPayload) (*Job, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if err := d.transport.SetTrace(ctx, transport.NewTrace(id, p.SessionID, p.Filename)); err != nil {
		return nil, fmt.Errorf("failed to set trace: %w", err)
	}

	job := &Job{ID: id, Status: transport.TraceStatusCompleted}
	if err := d.runner.Run(ctx, id, p); err != nil {
		job.Status = transport.TraceStatusFailed
		return job, err
	}
	return job, nil
}
