//go:build llama

package rewrite

import (
	"context"
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// LlamaBackend rewrites prompts with a local GGUF model via llama.cpp.
type LlamaBackend struct {
	path      string
	threads   int
	maxTokens int
	temp      float32

	mu    sync.Mutex
	model *llama.LLama
}

// NewLlamaBackend loads nothing until the first call.
func NewLlamaBackend(modelPath string, threads, maxTokens int, temperature float32) (*LlamaBackend, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("llama model path is empty")
	}
	if threads <= 0 {
		threads = 4
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &LlamaBackend{path: modelPath, threads: threads, maxTokens: maxTokens, temp: temperature}, nil
}

func (b *LlamaBackend) Name() string { return "llama" }

func (b *LlamaBackend) Complete(ctx context.Context, system, user string) (string, error) {
	// llama.cpp contexts are not safe for concurrent use
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model == nil {
		m, err := llama.New(b.path, llama.SetContext(2048))
		if err != nil {
			return "", err
		}
		b.model = m
	}
	b.model.SetTokenCallback(func(string) bool {
		return ctx.Err() == nil
	})
	text, err := b.model.Predict(system+"\n\n"+user+"\nPrompt:",
		llama.SetTokens(b.maxTokens),
		llama.SetThreads(b.threads),
		llama.SetTemperature(b.temp),
		llama.SetTopP(llama.DefaultOptions.TopP),
		llama.SetTopK(llama.DefaultOptions.TopK),
		llama.SetStopWords("\n\n"),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return text, nil
}

// Close frees the model.
func (b *LlamaBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model != nil {
		b.model.Free()
		b.model = nil
	}
	return nil
}
