package rewrite

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type stubBackend struct {
	name  string
	out   string
	err   error
	calls int
	sys   string
	block bool
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Complete(ctx context.Context, system, user string) (string, error) {
	s.calls++
	s.sys = system
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.out, s.err
}

func TestLocalIsDeterministic(t *testing.T) {
	h := Hints{Style: "watercolor", Lighting: " golden hour ", Pose: ""}
	got := Local("  a red fox ", h)
	want := "a red fox, style: watercolor, lighting: golden hour"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if Local("a red fox", Hints{}) != "a red fox" {
		t.Fatalf("prompt without hints must be unchanged")
	}
	if Local("x", h) != Local("x", h) {
		t.Fatalf("not deterministic")
	}
	if got := Local("   ", h); got != "style: watercolor, lighting: golden hour" {
		t.Fatalf("blank prompt must not leave a leading separator, got %q", got)
	}
}

func TestSystemPromptListsHints(t *testing.T) {
	s := SystemPrompt(Hints{Character: "a fox", Composition: "close-up"})
	if !strings.Contains(s, "- subject: a fox") || !strings.Contains(s, "- composition: close-up") {
		t.Fatalf("missing hints: %q", s)
	}
	if strings.Contains(SystemPrompt(Hints{}), "requirements") {
		t.Fatalf("empty hints must not add a requirements block")
	}
}

func TestRewriteUsesFirstWorkingBackend(t *testing.T) {
	bad := &stubBackend{name: "remote", err: errors.New("401")}
	good := &stubBackend{name: "llama", out: "  \"A detailed fox\"  "}
	s := New(zerolog.Nop(), time.Second, bad, nil, good)
	res := s.Rewrite(context.Background(), "fox", Hints{Style: "ink"})
	if res.Prompt != "A detailed fox" || res.Source != "llama" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if bad.calls != 1 || good.calls != 1 {
		t.Fatalf("calls: bad=%d good=%d", bad.calls, good.calls)
	}
	if !strings.Contains(good.sys, "style: ink") {
		t.Fatalf("system prompt missing hint: %q", good.sys)
	}
}

func TestRewriteFallsBackLocally(t *testing.T) {
	empty := &stubBackend{name: "remote", out: "   "}
	slow := &stubBackend{name: "llama", block: true}
	s := New(zerolog.Nop(), 10*time.Millisecond, empty, slow)
	res := s.Rewrite(context.Background(), "fox", Hints{Background: "snow"})
	if res.Source != SourceLocal || res.Prompt != "fox, setting: snow" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if New(zerolog.Nop(), 0).Remote() {
		t.Fatalf("no backends must not report remote")
	}
}

func TestRewriteBlankPromptSkipsBackends(t *testing.T) {
	b := &stubBackend{name: "remote", out: "should not be used"}
	s := New(zerolog.Nop(), time.Second, b)
	res := s.Rewrite(context.Background(), "  ", Hints{Style: "ink"})
	if res.Source != SourceLocal || res.Prompt != "style: ink" || b.calls != 0 {
		t.Fatalf("unexpected result: %+v calls=%d", res, b.calls)
	}
}

func TestChatBackendAgainstFakeAPI(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		Temperature float32 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"A red fox in deep snow"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	b := NewChatBackend(ChatConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/chat/completions", Temperature: 0.7, MaxTokens: 1500})
	if b == nil {
		t.Fatalf("expected backend")
	}
	s := New(zerolog.Nop(), time.Second, b)
	res := s.Rewrite(context.Background(), "a red fox", Hints{})
	if res.Prompt != "A red fox in deep snow" || res.Source != "remote" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got.Model != "deepseek-chat" || got.MaxTokens != 1500 || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("unexpected request: %+v", got)
	}
	if !strings.Contains(got.Messages[1].Content, "a red fox") {
		t.Fatalf("user message missing prompt: %q", got.Messages[1].Content)
	}
}

func TestChatBackendRequiresKey(t *testing.T) {
	if b := NewChatBackend(ChatConfig{}); b != nil {
		t.Fatalf("expected nil backend without key")
	}
	var b *ChatBackend
	if _, err := b.Complete(context.Background(), "s", "u"); err == nil {
		t.Fatalf("nil backend must error")
	}
}
