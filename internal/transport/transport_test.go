package transport_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alan-mat/docqa/internal/transport"
)

func TestTrace(t *testing.T) {
	trace := transport.NewTrace("t1", "s1", "a.pdf")
	if trace.Status != transport.TraceStatusQueued {
		t.Errorf("expected queued status, got %s", trace.Status)
	}

	trace.Start()
	if trace.Status != transport.TraceStatusRunning || trace.StartedAt == 0 {
		t.Errorf("expected running trace with start time, got %+v", trace)
	}
	if trace.Done() {
		t.Error("expected running trace not to be done")
	}

	trace.Fail("invalid pdf")
	if trace.Status != transport.TraceStatusFailed || trace.FailReason != "invalid pdf" {
		t.Errorf("expected failed trace, got %+v", trace)
	}
	if !trace.Done() || trace.CompletedAt < trace.StartedAt {
		t.Errorf("expected completed timestamps, got %+v", trace)
	}
}

func TestTraceStatusText(t *testing.T) {
	b, _ := transport.TraceStatusCompleted.MarshalText()
	if string(b) != "completed" {
		t.Errorf("expected 'completed', got '%s'", b)
	}
	if transport.TraceStatus(42).String() != "unspecified" {
		t.Error("expected unknown status to be unspecified")
	}
}

func TestMemoryTransportTrace(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewMemoryTransport()

	if _, err := tr.GetTrace(ctx, "t1"); !errors.Is(err, transport.ErrTraceNotFound) {
		t.Fatalf("expected ErrTraceNotFound, got %v", err)
	}

	trace := transport.NewTrace("t1", "s1", "a.pdf")
	tr.SetTrace(ctx, trace)
	trace.Complete()

	got, err := tr.GetTrace(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != transport.TraceStatusQueued {
		t.Errorf("expected stored trace to be a copy, got status %s", got.Status)
	}
}

func TestMemoryStream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	tr := transport.NewMemoryTransport()
	if _, err := tr.GetMessageStream(""); !errors.Is(err, transport.ErrInvalidStreamID) {
		t.Errorf("expected ErrInvalidStreamID, got %v", err)
	}

	writer, _ := tr.GetMessageStream("t1")
	reader, _ := tr.GetMessageStream("t1")

	received := make(chan *transport.MessageStreamPayload)
	go func() {
		msg, err := reader.Recv(ctx)
		if err != nil {
			close(received)
			return
		}
		received <- msg
	}()

	sent := transport.MessageStreamPayload{ID: 0, Status: transport.StatusOK, Stage: "extracted", Count: 2}
	if err := writer.Send(ctx, sent); err != nil {
		t.Fatal(err)
	}

	msg, ok := <-received
	if !ok {
		t.Fatal("expected a message, got none")
	}
	if !reflect.DeepEqual(*msg, sent) {
		t.Errorf("expected %+v, got %+v", sent, *msg)
	}

	writer.Send(ctx, transport.MessageStreamPayload{ID: 1, Status: transport.StatusDone})

	all, _ := reader.ReadAll(ctx)
	if len(all) != 2 || !all[1].Final() {
		t.Errorf("expected two messages ending in a final one, got %+v", all)
	}
}

func TestMemoryStreamRecvCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := transport.NewMemoryTransport()
	s, _ := tr.GetMessageStream("t1")
	if _, err := s.Recv(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
