package jobs

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

	"github.com/wenc23/zimagetool/internal/gallery"
	"github.com/wenc23/zimagetool/internal/manager"
	"github.com/wenc23/zimagetool/internal/pipeline"
	"github.com/wenc23/zimagetool/internal/profile"
	"github.com/wenc23/zimagetool/internal/rewrite"
)

// scriptedPipeline drives the step callback like a real backend would.
type scriptedPipeline struct {
	gate       chan struct{}
	noCallback bool
	err        error

	closed     atomic.Bool
	calls      atomic.Int32
	nilCalls   atomic.Int32
	running    atomic.Int32
	maxRunning atomic.Int32
}

func (p *scriptedPipeline) Generate(ctx context.Context, params pipeline.Params, onStep pipeline.StepFunc) (image.Image, error) {
	p.calls.Add(1)
	if p.closed.Load() {
		return nil, errors.New("pipeline closed")
	}
	n := p.running.Add(1)
	defer p.running.Add(-1)
	for {
		m := p.maxRunning.Load()
		if n <= m || p.maxRunning.CompareAndSwap(m, n) {
			break
		}
	}
	if onStep == nil {
		p.nilCalls.Add(1)
	}
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	if onStep != nil && p.noCallback {
		return nil, pipeline.ErrStepCallbackUnsupported
	}
	for i := 0; i < params.Steps; i++ {
		if onStep != nil {
			if err := onStep(i, params.Steps); err != nil {
				return nil, err
			}
		}
	}
	return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
}

func (p *scriptedPipeline) Close() error {
	p.closed.Store(true)
	return nil
}

// loadedManager returns a manager with pipe loaded under Balanced.
func loadedManager(t *testing.T, pipe pipeline.Pipeline) *manager.Manager {
	t.Helper()
	return loadedManagerDrain(t, pipe, time.Second)
}

func loadedManagerDrain(t *testing.T, pipe pipeline.Pipeline, drain time.Duration) *manager.Manager {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "Z-Image-Turbo")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	m := manager.New(manager.Config{
		Loader: pipeline.LoaderFunc(func(context.Context, string, pipeline.LoadOptions) (pipeline.Pipeline, error) {
			return pipe, nil
		}),
		DrainTimeout: drain,
		Logger:       zerolog.Nop(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := m.EnsureLoaded(ctx, profile.Balanced, dir); err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	return m
}

func newGallery(t *testing.T) *gallery.Store {
	t.Helper()
	s, err := gallery.New(filepath.Join(t.TempDir(), "gallery"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newOrchestrator(t *testing.T, models Models, rw Rewriter, sink Sink, opts Options) *Orchestrator {
	t.Helper()
	opts.Logger = zerolog.Nop()
	o := New(models, rw, sink, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = o.Close(ctx)
	})
	return o
}

func foxRequest() Request {
	return Request{Prompt: "a red fox", Width: 1024, Height: 1024, Steps: 9, Filename: "fox.png"}
}

// waitTerminal polls until the job is terminal and returns every observed
// record.
func waitTerminal(t *testing.T, o *Orchestrator, id string) []Record {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var seen []Record
	for time.Now().Before(deadline) {
		rec, err := o.Query(id)
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		seen = append(seen, rec)
		if rec.State.Terminal() {
			return seen
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

func waitState(t *testing.T, o *Orchestrator, id string, pred func(Record) bool) Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := o.Query(id)
		if err == nil && pred(rec) {
			return rec
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job %s never reached expected state", id)
	return Record{}
}

type stubRewriter struct{ out string }

func (s stubRewriter) Rewrite(_ context.Context, prompt string, _ rewrite.Hints) rewrite.Result {
	return rewrite.Result{Prompt: s.out, Source: "stub"}
}

type failingSink struct{}

func (failingSink) Save(context.Context, image.Image, gallery.Metadata) (gallery.Artifact, error) {
	return gallery.Artifact{}, errors.New("disk full")
}

// recordingSink keeps the metadata it was handed.
type recordingSink struct {
	mu   sync.Mutex
	meta []gallery.Metadata
	next Sink
}

func (s *recordingSink) Save(ctx context.Context, img image.Image, m gallery.Metadata) (gallery.Artifact, error) {
	s.mu.Lock()
	s.meta = append(s.meta, m)
	s.mu.Unlock()
	return s.next.Save(ctx, img, m)
}

// vanishingModels claims to be loaded but has nothing to lend.
type vanishingModels struct{}

func (vanishingModels) IsLoaded() bool { return true }

func (vanishingModels) WithHandle(func(manager.Handle) error) error { return manager.ErrNotLoaded }
