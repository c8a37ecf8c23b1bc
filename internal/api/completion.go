package api

import (
	"context"
	"errors"
	"io"
)

type ChatRequest struct {
	// Required
	Query string

	// Optional params
	ModelName    string
	SystemPrompt string
	History      []*ChatMessage
	Temperature  *float32
}

type CompletionStream interface {
	Recv() (string, error)
	Close() error
}

type completionStreamPayload struct {
	content string
	err     error
}

// StreamReadAll receives from a completion stream accumulating the results
// and returning the streamed chunks as a whole. This function will return an error
// if one is received from the CompletionStream, along with the content read so far.
// Calling this function will always close the underlying stream.
func StreamReadAll(ctx context.Context, stream CompletionStream) (string, error) {
	defer stream.Close()
	dataChan := make(chan completionStreamPayload)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(dataChan)

		for {
			chunk, err := stream.Recv()

			if errors.Is(err, io.EOF) {
				return
			}

			payload := completionStreamPayload{content: chunk, err: err}
			select {
			case dataChan <- payload:
			case <-done:
				return
			}

			if err != nil {
				return
			}
		}
	}()

	var acc string

	for {
		select {
		case <-ctx.Done():
			return acc, ctx.Err()
		case payload, ok := <-dataChan:
			if !ok {
				// data stream closed
				return acc, nil
			}

			if payload.err != nil {
				return acc, payload.err
			}

			acc += payload.content
		}
	}
}
