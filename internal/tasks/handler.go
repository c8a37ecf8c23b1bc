package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/alan-mat/docqa/internal/modules/indexing"
	"github.com/alan-mat/docqa/internal/qa"
	"github.com/alan-mat/docqa/internal/session"
	"github.com/alan-mat/docqa/internal/transport"
)

// Progress stages reported by the runner in addition to the indexing stages.
const (
	StageRetrying = "retrying"
	StageFailed   = "failed"
)

// Processor indexes a document for a session.
type Processor interface {
	ProcessWithProgress(ctx context.Context, req qa.ProcessRequest, progress indexing.ProgressFunc) (*session.Session, error)
}

// Runner executes index jobs while keeping their trace and progress
// stream up to date.
type Runner struct {
	transport transport.Transport
	processor Processor
}

func NewRunner(transport transport.Transport, processor Processor) *Runner {
	return &Runner{
		transport: transport,
		processor: processor,
	}
}

// Run executes a job that is not retried.
func (r *Runner) Run(ctx context.Context, id string, p IndexPayload) error {
	return r.RunAttempt(ctx, id, p, false)
}

// RunAttempt executes one attempt of a job. When retry is set, a failure
// other than a validation error leaves the trace queued for the next attempt.
func (r *Runner) RunAttempt(ctx context.Context, id string, p IndexPayload, retry bool) error {
	ms, err := r.transport.GetMessageStream(id)
	if err != nil {
		return fmt.Errorf("failed to initialize message stream: %w", err)
	}

	trace, err := r.transport.GetTrace(ctx, id)
	if err != nil {
		trace = transport.NewTrace(id, p.SessionID, p.Filename)
	}
	trace.Start()
	r.setTrace(ctx, trace)

	// message ids continue across attempts
	msgId := 0
	if prev, err := ms.ReadAll(ctx); err == nil {
		msgId = len(prev)
	}
	send := func(payload transport.MessageStreamPayload) {
		payload.ID = msgId
		msgId += 1
		if err := ms.Send(ctx, payload); err != nil {
			slog.Debug("failed sending message to stream", "id", id, "err", err)
		}
	}

	progress := func(stage indexing.Stage, count int) {
		send(transport.MessageStreamPayload{
			Status: transport.StatusOK,
			Stage:  string(stage),
			Count:  count,
		})
	}

	_, err = r.processor.ProcessWithProgress(ctx, qa.ProcessRequest{
		SessionID: p.SessionID,
		Filename:  p.Filename,
		Data:      p.Content,
		ChunkSize: p.ChunkSize,
	}, progress)
	if err != nil && retry && !qa.IsValidationError(err) {
		slog.Warn("index attempt failed, retrying", "id", id, "session", p.SessionID, "err", err)
		send(transport.MessageStreamPayload{
			Status:  transport.StatusOK,
			Stage:   StageRetrying,
			Content: err.Error(),
		})
		trace.Retry()
		r.setTrace(ctx, trace)
		return err
	}
	if err != nil {
		slog.Error("index job failed", "id", id, "session", p.SessionID, "err", err)
		send(transport.MessageStreamPayload{
			Status:  transport.StatusErr,
			Stage:   StageFailed,
			Content: err.Error(),
		})
		trace.Fail(err.Error())
		r.setTrace(ctx, trace)
		return err
	}

	send(transport.MessageStreamPayload{
		Status:  transport.StatusDone,
		Content: "task finished",
	})
	trace.Complete()
	r.setTrace(ctx, trace)
	return nil
}

func (r *Runner) setTrace(ctx context.Context, trace *transport.Trace) {
	if err := r.transport.SetTrace(ctx, trace); err != nil {
		slog.Error("failed to set trace", "id", trace.ID, "err", err)
	}
}

type TaskHandler struct {
	runner *Runner
}

func NewTaskHandler(runner *Runner) *TaskHandler {
	return &TaskHandler{
		runner: runner,
	}
}

func (h TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeIndex {
		return fmt.Errorf("unrecognized task type '%s' (%w)", t.Type(), asynq.SkipRetry)
	}

	p, err := parseIndexPayload(t)
	if err != nil {
		return fmt.Errorf("%v (%w)", err, asynq.SkipRetry)
	}

	id, ok := asynq.GetTaskID(ctx)
	if !ok {
		id = uuid.NewString()
	}
	slog.Info("received index task", "id", id, "session", p.SessionID, "document", p.Filename, "chunk_size", p.ChunkSize)

	err = h.runner.RunAttempt(ctx, id, p, retriesLeft(ctx))
	if err != nil && qa.IsValidationError(err) {
		return fmt.Errorf("%w (%w)", err, asynq.SkipRetry)
	}
	return err
}

// retriesLeft reports whether asynq will run the task again after a failure.
func retriesLeft(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return false
	}
	return retried < maxRetry
}
