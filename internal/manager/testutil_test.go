package manager

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wenc23/zimagetool/internal/pipeline"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// createModelDir creates a diffusers-style folder and returns its path.
func createModelDir(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "Z-Image-Turbo")
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(p, "model_index.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	return p
}

// fakePipeline records optimizations and closes.
type fakePipeline struct {
	mu         sync.Mutex
	ops        []string
	closed     atomic.Bool
	offloadErr error
}

func (p *fakePipeline) Generate(ctx context.Context, params pipeline.Params, onStep pipeline.StepFunc) (image.Image, error) {
	if p.closed.Load() {
		return nil, errors.New("pipeline closed")
	}
	return image.NewRGBA(image.Rect(0, 0, params.Width, params.Height)), nil
}

func (p *fakePipeline) Close() error {
	p.closed.Store(true)
	return nil
}

func (p *fakePipeline) record(op string) {
	p.mu.Lock()
	p.ops = append(p.ops, op)
	p.mu.Unlock()
}

func (p *fakePipeline) EnableAttentionSlicing(_ context.Context, size string) error {
	p.record("slicing:" + size)
	return nil
}

func (p *fakePipeline) ResetDeviceMap(context.Context) error {
	p.record("reset")
	return nil
}

func (p *fakePipeline) EnableSequentialCPUOffload(context.Context) error {
	p.record("offload")
	return p.offloadErr
}

// fakeLoader hands out fakePipelines. When gate is set, Load blocks until
// it is closed and signals entered first.
type fakeLoader struct {
	calls      atomic.Int32
	err        error
	panicMsg   string
	offloadErr error
	gate       chan struct{}
	entered    chan struct{}
	last       atomic.Pointer[fakePipeline]
	lastOpts   atomic.Pointer[pipeline.LoadOptions]
}

func (l *fakeLoader) Load(ctx context.Context, modelPath string, opts pipeline.LoadOptions) (pipeline.Pipeline, error) {
	l.calls.Add(1)
	l.lastOpts.Store(&opts)
	if l.entered != nil {
		l.entered <- struct{}{}
	}
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.panicMsg != "" {
		panic(l.panicMsg)
	}
	if l.err != nil {
		return nil, l.err
	}
	p := &fakePipeline{offloadErr: l.offloadErr}
	l.last.Store(p)
	return p, nil
}

func newTestManager(t *testing.T, l pipeline.Loader) (*Manager, *MemoryPublisher) {
	t.Helper()
	pub := NewMemoryPublisher(0)
	m := New(Config{Loader: l, OffloadDir: "/tmp/offload", DrainTimeout: time.Second, Publisher: pub, Logger: zerolog.Nop()})
	return m, pub
}

func pipelineParams() pipeline.Params {
	return pipeline.Params{Prompt: "a red fox", Width: 4, Height: 4, Steps: 1}
}
