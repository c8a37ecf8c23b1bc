package generation

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

type TokenCounter interface {
	Count(text string) int
}

type TokenCounterFunc func(text string) int

func (f TokenCounterFunc) Count(text string) int {
	return f(text)
}

// EstimateTokens approximates the token count at four runes per token.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// TiktokenCounter counts tokens with the encoding of the given model. The
// encoding is loaded on first use; when it cannot be loaded the counter
// falls back to [EstimateTokens].
type TiktokenCounter struct {
	model string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewTiktokenCounter(model string) *TiktokenCounter {
	return &TiktokenCounter{model: model}
}

func (t *TiktokenCounter) Count(text string) int {
	t.once.Do(t.load)

	if t.enc == nil {
		return EstimateTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

func (t *TiktokenCounter) load() {
	enc, err := tiktoken.EncodingForModel(t.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		slog.Warn("failed to load token encoding, estimating token counts", "model", t.model, "err", err)
		return
	}
	t.enc = enc
}
