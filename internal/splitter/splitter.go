// Package splitter breaks document text into overlapping chunks.
package splitter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	MinChunkSize        = 500
	MaxChunkSize        = 10000
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var ErrInvalidChunkSize = errors.New("invalid chunk size")

// Chunk is a bounded piece of the document text.
// Source is a stable label of the form "chunk_<index>".
type Chunk struct {
	Index  int
	Text   string
	Source string
}

type Splitter struct {
	chunkSize    int
	chunkOverlap int
	splitter     textsplitter.RecursiveCharacter
}

type Option func(*Splitter)

func WithChunkOverlap(overlap int) Option {
	return func(s *Splitter) {
		s.chunkOverlap = overlap
	}
}

func New(chunkSize int, opts ...Option) (*Splitter, error) {
	if chunkSize < MinChunkSize || chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidChunkSize, chunkSize, MinChunkSize, MaxChunkSize)
	}

	s := &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.chunkOverlap < 0 || s.chunkOverlap >= s.chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidChunkSize, s.chunkOverlap, s.chunkSize)
	}

	s.splitter = textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.chunkSize),
		textsplitter.WithChunkOverlap(s.chunkOverlap),
	)
	return s, nil
}

func (s *Splitter) ChunkSize() int    { return s.chunkSize }
func (s *Splitter) ChunkOverlap() int { return s.chunkOverlap }

// Split returns the chunks of text in document order.
// Whitespace-only input yields no chunks.
func (s *Splitter) Split(text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	parts, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		idx := len(chunks)
		chunks = append(chunks, Chunk{
			Index:  idx,
			Text:   part,
			Source: SourceLabel(idx),
		})
	}
	return chunks, nil
}

func SourceLabel(index int) string {
	return fmt.Sprintf("chunk_%d", index)
}
