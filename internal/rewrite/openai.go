package rewrite

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ChatConfig configures an OpenAI-compatible chat backend (DeepSeek by default).
type ChatConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// ChatBackend calls a chat completions endpoint.
type ChatBackend struct {
	client *openai.Client
	cfg    ChatConfig
}

// NewChatBackend returns nil when no API key is configured; callers should
// not pass a nil backend to New.
func NewChatBackend(cfg ChatConfig) *ChatBackend {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		// older configs carried the full endpoint
		base = strings.TrimSuffix(strings.TrimRight(base, "/"), "/chat/completions")
		oc.BaseURL = base
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	return &ChatBackend{client: openai.NewClientWithConfig(oc), cfg: cfg}
}

func (b *ChatBackend) Name() string { return "remote" }

func (b *ChatBackend) Complete(ctx context.Context, system, user string) (string, error) {
	if b == nil {
		return "", errors.New("chat backend not configured")
	}
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: b.cfg.Temperature,
		MaxTokens:   b.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
