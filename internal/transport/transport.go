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

package transport

import (
	"context"
	"errors"
	"time"
)

var (
	TraceExpiry = time.Hour * 24

	ErrTraceNotFound   = errors.New("trace not found")
	ErrInvalidStreamID = errors.New("invalid stream ID")
)

type Transport interface {
	GetMessageStream(id string) (MessageStream, error)
	SetTrace(ctx context.Context, trace *Trace) error
	GetTrace(ctx context.Context, traceId string) (*Trace, error)
}

type MessageStream interface {
	Send(ctx context.Context, payload MessageStreamPayload) error

	// Recv blocks until the next message is available.
	Recv(ctx context.Context) (*MessageStreamPayload, error)

	// ReadAll returns every message sent to the stream so far
	// without blocking.
	ReadAll(ctx context.Context) ([]*MessageStreamPayload, error)

	GetID() string
}

const (
	StatusOK   = "OK"
	StatusErr  = "ERR"
	StatusDone = "DONE"
)

type MessageStreamPayload struct {
	ID     int    `json:"id"`
	Status string `json:"status"`

	// Stage names the completed ingest stage, Count the number of
	// items it produced.
	Stage string `json:"stage,omitempty"`
	Count int    `json:"count,omitempty"`

	Content string `json:"content,omitempty"`
}

// Final reports whether no further messages follow this one.
func (p MessageStreamPayload) Final() bool {
	return p.Status == StatusErr || p.Status == StatusDone
}

type Trace struct {
	ID          string      `redis:"id" json:"id"`
	Status      TraceStatus `redis:"status" json:"status"`
	StartedAt   int64       `redis:"started_at" json:"started_at"`
	CompletedAt int64       `redis:"completed_at" json:"completed_at"`
	Session     string      `redis:"session" json:"session"`
	Document    string      `redis:"document" json:"document"`
	FailReason  string      `redis:"fail_reason" json:"fail_reason,omitempty"`
}

func NewTrace(id, session, document string) *Trace {
	return &Trace{
		ID:       id,
		Status:   TraceStatusQueued,
		Session:  session,
		Document: document,
	}
}

func (t *Trace) Start() {
	t.Status = TraceStatusRunning
	t.StartedAt = time.Now().UnixNano()
	t.CompletedAt = 0
	t.FailReason = ""
}

// Retry puts a failed attempt back in the queue.
func (t *Trace) Retry() {
	t.Status = TraceStatusQueued
}

func (t *Trace) Complete() {
	t.Status = TraceStatusCompleted
	t.CompletedAt = time.Now().UnixNano()
}

func (t *Trace) Fail(reason string) {
	t.Status = TraceStatusFailed
	t.CompletedAt = time.Now().UnixNano()
	t.FailReason = reason
}

// Done reports whether the trace reached a terminal status.
func (t Trace) Done() bool {
	return t.Status == TraceStatusCompleted || t.Status == TraceStatusFailed
}

type TraceStatus int

const (
	TraceStatusUnspecified TraceStatus = iota
	TraceStatusQueued
	TraceStatusRunning
	TraceStatusCompleted
	TraceStatusFailed
)

func (s TraceStatus) String() string {
	switch s {
	case TraceStatusQueued:
		return "queued"
	case TraceStatusRunning:
		return "running"
	case TraceStatusCompleted:
		return "completed"
	case TraceStatusFailed:
		return "failed"
	default:
		return "unspecified"
	}
}

func (s TraceStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
