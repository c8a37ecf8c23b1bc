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

package tasks

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeIndex = "docqa:index"

	DefaultQueue    = "default"
	DefaultMaxRetry = 3
	DefaultTimeout  = 10 * time.Minute
)

var ErrInvalidPayload = errors.New("invalid index task payload")

type IndexPayload struct {
	SessionID string `json:"session_id"`
	Filename  string `json:"filename"`
	Content   []byte `json:"content"`
	ChunkSize int    `json:"chunk_size"`
}

func (p IndexPayload) Validate() error {
	if p.SessionID == "" || p.Filename == "" || len(p.Content) == 0 {
		return ErrInvalidPayload
	}
	return nil
}

func NewIndexTask(p IndexPayload, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeIndex, payload, opts...), nil
}

func parseIndexPayload(t *asynq.Task) (IndexPayload, error) {
	var p IndexPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, errors.Join(ErrInvalidPayload, err)
	}
	return p, p.Validate()
}
