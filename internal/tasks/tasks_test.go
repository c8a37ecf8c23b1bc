package tasks_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/alan-mat/docqa/internal/document"
	"github.com/alan-mat/docqa/internal/document/pdftest"
	"github.com/alan-mat/docqa/internal/modules/indexing"
	"github.com/alan-mat/docqa/internal/qa"
	"github.com/alan-mat/docqa/internal/session"
	"github.com/alan-mat/docqa/internal/tasks"
	"github.com/alan-mat/docqa/internal/transport"
)

type mockProcessor struct {
	err      error
	requests []qa.ProcessRequest
}

func (m *mockProcessor) ProcessWithProgress(ctx context.Context, req qa.ProcessRequest, progress indexing.ProgressFunc) (*session.Session, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	progress(indexing.StageExtracted, 1)
	progress(indexing.StageIndexed, 3)
	return &session.Session{ID: req.SessionID, Ready: true}, nil
}

func payload() tasks.IndexPayload {
	return tasks.IndexPayload{
		SessionID: "s1",
		Filename:  "a.pdf",
		Content:   pdftest.Build("hello"),
		ChunkSize: 1000,
	}
}

func TestNewIndexTask(t *testing.T) {
	task, err := tasks.NewIndexTask(payload())
	if err != nil {
		t.Fatal(err)
	}
	if task.Type() != tasks.TypeIndex {
		t.Errorf("expected type %s, got %s", tasks.TypeIndex, task.Type())
	}
}

func TestIndexPayloadValidate(t *testing.T) {
	p := payload()
	if err := p.Validate(); err != nil {
		t.Errorf("expected valid payload, got %v", err)
	}

	p.Content = nil
	if err := p.Validate(); !errors.Is(err, tasks.ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestRunner(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewMemoryTransport()
	proc := &mockProcessor{}
	r := tasks.NewRunner(tr, proc)

	if err := r.Run(ctx, "job1", payload()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	trace, err := tr.GetTrace(ctx, "job1")
	if err != nil {
		t.Fatal(err)
	}
	if trace.Status != transport.TraceStatusCompleted || trace.Session != "s1" || trace.Document != "a.pdf" {
		t.Errorf("unexpected trace %+v", trace)
	}

	ms, _ := tr.GetMessageStream("job1")
	msgs, _ := ms.ReadAll(ctx)

	stages := make([]string, 0, len(msgs))
	for _, m := range msgs {
		stages = append(stages, m.Status+":"+m.Stage)
	}
	expected := []string{"OK:extracted", "OK:indexed", "DONE:"}
	if !reflect.DeepEqual(stages, expected) {
		t.Errorf("expected messages %v, got %v", expected, stages)
	}
	if msgs[2].ID != 2 {
		t.Errorf("expected sequential message ids, got %d", msgs[2].ID)
	}
}

func TestRunnerFailure(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewMemoryTransport()
	r := tasks.NewRunner(tr, &mockProcessor{err: document.ErrNoText})

	err := r.Run(ctx, "job1", payload())
	if !errors.Is(err, document.ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}

	trace, _ := tr.GetTrace(ctx, "job1")
	if trace.Status != transport.TraceStatusFailed || trace.FailReason == "" {
		t.Errorf("expected failed trace with reason, got %+v", trace)
	}

	ms, _ := tr.GetMessageStream("job1")
	msgs, _ := ms.ReadAll(ctx)
	if len(msgs) != 1 || msgs[0].Status != transport.StatusErr {
		t.Errorf("expected a single error message, got %+v", msgs)
	}
}

func TestRunnerRetry(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewMemoryTransport()
	proc := &mockProcessor{err: errors.New("openai: 503 service unavailable")}
	r := tasks.NewRunner(tr, proc)

	if err := r.RunAttempt(ctx, "job1", payload(), true); err == nil {
		t.Fatal("expected error from failed attempt")
	}

	trace, _ := tr.GetTrace(ctx, "job1")
	if trace.Status != transport.TraceStatusQueued || trace.FailReason != "" || trace.Done() {
		t.Errorf("expected queued trace while retries remain, got %+v", trace)
	}

	proc.err = nil
	if err := r.RunAttempt(ctx, "job1", payload(), true); err != nil {
		t.Fatalf("expected nil error on retry, got %v", err)
	}

	trace, _ = tr.GetTrace(ctx, "job1")
	if trace.Status != transport.TraceStatusCompleted || trace.FailReason != "" {
		t.Errorf("expected completed trace without fail reason, got %+v", trace)
	}

	ms, _ := tr.GetMessageStream("job1")
	msgs, _ := ms.ReadAll(ctx)

	stages := make([]string, 0, len(msgs))
	for i, m := range msgs {
		stages = append(stages, m.Status+":"+m.Stage)
		if m.ID != i {
			t.Errorf("expected message id %d, got %d", i, m.ID)
		}
	}
	expected := []string{"OK:retrying", "OK:extracted", "OK:indexed", "DONE:"}
	if !reflect.DeepEqual(stages, expected) {
		t.Errorf("expected messages %v, got %v", expected, stages)
	}
	if msgs[0].Final() {
		t.Error("expected retry message not to end the stream")
	}
}

func TestRunnerRetryValidationError(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewMemoryTransport()
	r := tasks.NewRunner(tr, &mockProcessor{err: qa.ErrNotPDF})

	if err := r.RunAttempt(ctx, "job1", payload(), true); !errors.Is(err, qa.ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}

	trace, _ := tr.GetTrace(ctx, "job1")
	if trace.Status != transport.TraceStatusFailed {
		t.Errorf("expected failed trace for validation error, got %+v", trace)
	}
}

func TestTaskHandler(t *testing.T) {
	proc := &mockProcessor{}
	h := tasks.NewTaskHandler(tasks.NewRunner(transport.NewMemoryTransport(), proc))

	task, err := tasks.NewIndexTask(payload())
	if err != nil {
		t.Fatal(err)
	}

	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(proc.requests) != 1 || proc.requests[0].Filename != "a.pdf" {
		t.Errorf("expected one processed request, got %+v", proc.requests)
	}
}

func TestTaskHandlerValidationError(t *testing.T) {
	h := tasks.NewTaskHandler(tasks.NewRunner(transport.NewMemoryTransport(), &mockProcessor{err: qa.ErrNotPDF}))

	task, _ := tasks.NewIndexTask(payload())
	err := h.ProcessTask(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) || !errors.Is(err, qa.ErrNotPDF) {
		t.Errorf("expected SkipRetry wrapping ErrNotPDF, got %v", err)
	}
}

func TestTaskHandlerInvalidPayload(t *testing.T) {
	h := tasks.NewTaskHandler(tasks.NewRunner(transport.NewMemoryTransport(), &mockProcessor{}))

	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeIndex, []byte("{not json")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("expected SkipRetry, got %v", err)
	}

	err = h.ProcessTask(context.Background(), asynq.NewTask("docqa:other", nil))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("expected SkipRetry for unknown type, got %v", err)
	}
}

func TestInlineDispatcher(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewMemoryTransport()
	proc := &mockProcessor{}
	d := tasks.NewInlineDispatcher(tasks.NewRunner(tr, proc), tr)

	job, err := d.Dispatch(ctx, payload())
	if err != nil {
		t.Fatal(err)
	}
	if job.ID == "" || job.Status != transport.TraceStatusCompleted {
		t.Errorf("unexpected job %+v", job)
	}
	if len(proc.requests) != 1 || proc.requests[0].SessionID != "s1" {
		t.Errorf("expected one processed request, got %+v", proc.requests)
	}

	trace, _ := tr.GetTrace(ctx, job.ID)
	if !trace.Done() {
		t.Errorf("expected finished trace, got %+v", trace)
	}

	proc.err = qa.ErrNotPDF
	job, err = d.Dispatch(ctx, payload())
	if !errors.Is(err, qa.ErrNotPDF) || job.Status != transport.TraceStatusFailed {
		t.Errorf("expected failed job with ErrNotPDF, got %+v (%v)", job, err)
	}

	if _, err := d.Dispatch(ctx, tasks.IndexPayload{}); !errors.Is(err, tasks.ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}
}
