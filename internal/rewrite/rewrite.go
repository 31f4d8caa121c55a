// Package rewrite expands short prompts into detailed image prompts. It
// never fails: when every backend errors the deterministic Local
// combination is returned.
package rewrite

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Source names which backend produced a prompt.
const SourceLocal = "local"

// Result is a rewritten prompt.
type Result struct {
	Prompt string
	Source string
}

// Backend is a text completion service.
type Backend interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

// Service tries its backends in order.
type Service struct {
	backends []Backend
	timeout  time.Duration
	log      zerolog.Logger
}

// New returns a Service. timeout bounds each backend call (0 means none).
func New(log zerolog.Logger, timeout time.Duration, backends ...Backend) *Service {
	var bs []Backend
	for _, b := range backends {
		if b != nil {
			bs = append(bs, b)
		}
	}
	return &Service{backends: bs, timeout: timeout, log: log.With().Str("component", "rewrite").Logger()}
}

// Remote reports whether any backend is configured.
func (s *Service) Remote() bool { return len(s.backends) > 0 }

// Rewrite returns an expanded prompt.
func (s *Service) Rewrite(ctx context.Context, prompt string, h Hints) Result {
	if strings.TrimSpace(prompt) == "" {
		return Result{Prompt: Local(prompt, h), Source: SourceLocal}
	}
	system, user := SystemPrompt(h), UserPrompt(prompt)
	for _, b := range s.backends {
		cctx, cancel := ctx, context.CancelFunc(func() {})
		if s.timeout > 0 {
			cctx, cancel = context.WithTimeout(ctx, s.timeout)
		}
		start := time.Now()
		out, err := b.Complete(cctx, system, user)
		cancel()
		out = clean(out)
		if err == nil && out != "" {
			s.log.Debug().Str("backend", b.Name()).Dur("dur", time.Since(start)).Msg("prompt rewritten")
			return Result{Prompt: out, Source: b.Name()}
		}
		if err == nil {
			s.log.Warn().Str("backend", b.Name()).Msg("empty rewrite")
		} else {
			s.log.Warn().Str("backend", b.Name()).Err(err).Msg("rewrite failed")
		}
		if ctx.Err() != nil {
			break
		}
	}
	return Result{Prompt: Local(prompt, h), Source: SourceLocal}
}
