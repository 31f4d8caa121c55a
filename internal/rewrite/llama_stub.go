//go:build !llama

package rewrite

import (
	"context"
	"errors"
)

// ErrLlamaUnavailable is returned when the binary was built without the
// 'llama' tag.
var ErrLlamaUnavailable = errors.New("llama support not built (missing 'llama' build tag)")

// LlamaBackend is a stub so default builds stay CGO-free.
type LlamaBackend struct{}

func NewLlamaBackend(modelPath string, threads, maxTokens int, temperature float32) (*LlamaBackend, error) {
	return nil, ErrLlamaUnavailable
}

func (b *LlamaBackend) Name() string { return "llama" }

func (b *LlamaBackend) Complete(ctx context.Context, system, user string) (string, error) {
	return "", ErrLlamaUnavailable
}

func (b *LlamaBackend) Close() error { return nil }
