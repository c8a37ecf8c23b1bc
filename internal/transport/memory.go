package transport

import (
	"context"
	"sync"
)

// MemoryTransport keeps traces and streams in process memory.
type MemoryTransport struct {
	mu      sync.Mutex
	traces  map[string]Trace
	streams map[string]*memoryStreamData
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		traces:  make(map[string]Trace),
		streams: make(map[string]*memoryStreamData),
	}
}

type memoryStreamData struct {
	mu       sync.Mutex
	messages []MessageStreamPayload
	notify   chan struct{}
}

func (t *MemoryTransport) GetMessageStream(id string) (MessageStream, error) {
	if len(id) == 0 {
		return nil, ErrInvalidStreamID
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	data, ok := t.streams[id]
	if !ok {
		data = &memoryStreamData{notify: make(chan struct{})}
		t.streams[id] = data
	}
	return &MemoryStream{id: id, data: data}, nil
}

func (t *MemoryTransport) SetTrace(ctx context.Context, trace *Trace) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.traces[trace.ID] = *trace
	return nil
}

func (t *MemoryTransport) GetTrace(ctx context.Context, traceId string) (*Trace, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	trace, ok := t.traces[traceId]
	if !ok {
		return nil, ErrTraceNotFound
	}
	return &trace, nil
}

type MemoryStream struct {
	id   string
	next int
	data *memoryStreamData
}

func (s *MemoryStream) Send(ctx context.Context, payload MessageStreamPayload) error {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()

	s.data.messages = append(s.data.messages, payload)
	close(s.data.notify)
	s.data.notify = make(chan struct{})
	return nil
}

func (s *MemoryStream) Recv(ctx context.Context) (*MessageStreamPayload, error) {
	for {
		s.data.mu.Lock()
		if s.next < len(s.data.messages) {
			p := s.data.messages[s.next]
			s.next++
			s.data.mu.Unlock()
			return &p, nil
		}
		notify := s.data.notify
		s.data.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-notify:
		}
	}
}

func (s *MemoryStream) ReadAll(ctx context.Context) ([]*MessageStreamPayload, error) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()

	payloads := make([]*MessageStreamPayload, 0, len(s.data.messages))
	for _, m := range s.data.messages {
		payloads = append(payloads, &m)
	}
	return payloads, nil
}

func (s *MemoryStream) GetID() string {
	return s.id
}
