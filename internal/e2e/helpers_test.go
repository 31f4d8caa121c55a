package e2e

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wenc23/zimagetool/internal/client"
	"github.com/wenc23/zimagetool/internal/console"
	"github.com/wenc23/zimagetool/internal/gallery"
	"github.com/wenc23/zimagetool/internal/httpapi"
	"github.com/wenc23/zimagetool/internal/jobs"
	"github.com/wenc23/zimagetool/internal/manager"
	"github.com/wenc23/zimagetool/internal/pipeline"
	"github.com/wenc23/zimagetool/internal/profile"
	"github.com/wenc23/zimagetool/internal/registry"
	"github.com/wenc23/zimagetool/internal/rewrite"
	"github.com/wenc23/zimagetool/pkg/types"
)

// fakeWorker speaks the diffusion worker protocol over HTTP.
type fakeWorker struct {
	mu         sync.Mutex
	loads      []string
	ops        []string
	prompts    []string
	noOffload  bool
	genError   string
	stepDelay  time.Duration
	imageBytes []byte
}

func (f *fakeWorker) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func (f *fakeWorker) opsSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeWorker) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/v1/pipeline/load", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ModelPath string `json:"model_path"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.loads = append(f.loads, req.ModelPath)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/pipeline/optimize", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Op string `json:"op"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.ops = append(f.ops, req.Op)
		f.mu.Unlock()
		if req.Op == "sequential_cpu_offload" && f.noOffload {
			w.WriteHeader(http.StatusNotImplemented)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "accelerate is not installed"})
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/pipeline/unload", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
			Steps  int    `json:"num_inference_steps"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode generate: %v", err)
		}
		f.mu.Lock()
		f.prompts = append(f.prompts, req.Prompt)
		f.mu.Unlock()
		if f.genError != "" {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": f.genError})
			return
		}
		data := base64.StdEncoding.EncodeToString(f.imageBytes)
		if !req.Stream {
			_ = json.NewEncoder(w).Encode(map[string]string{"image": data})
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		fl, _ := w.(http.Flusher)
		for s := 0; s < req.Steps; s++ {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(f.stepDelay):
			}
			_ = enc.Encode(map[string]any{"type": "step", "step": s, "total": req.Steps})
			if fl != nil {
				fl.Flush()
			}
		}
		_ = enc.Encode(map[string]any{"type": "image", "data": data})
	})
	return mux
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 200, G: 80, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

// createModelsDir lays out diffusers-style model folders.
func createModelsDir(t *testing.T, ids ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, id := range ids {
		p := filepath.Join(dir, id)
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", p, err)
		}
		if err := os.WriteFile(filepath.Join(p, "model_index.json"), []byte(`{"_class_name":"ZImagePipeline"}`), 0o644); err != nil {
			t.Fatalf("write index: %v", err)
		}
	}
	return dir
}

type stack struct {
	api        *client.Client
	worker     *fakeWorker
	galleryDir string
}

// newStack wires the daemon the way serve does, against a fake worker.
func newStack(t *testing.T, w *fakeWorker) *stack {
	t.Helper()
	if w.imageBytes == nil {
		w.imageBytes = pngBytes(t, 8, 8)
	}
	ws := httptest.NewServer(w.handler(t))
	t.Cleanup(ws.Close)

	modelsDir := createModelsDir(t, "Z-Image-Turbo")
	models, err := registry.LoadDir(modelsDir)
	if err != nil {
		t.Fatalf("scan models: %v", err)
	}
	log := zerolog.Nop()
	mgr := manager.New(manager.Config{
		Loader:       pipeline.NewWorkerLoader(pipeline.WorkerConfig{URL: ws.URL, DType: "bfloat16"}, log),
		OffloadDir:   t.TempDir(),
		DrainTimeout: 5 * time.Second,
		Logger:       log,
	})
	galleryDir := t.TempDir()
	store, err := gallery.New(galleryDir)
	if err != nil {
		t.Fatalf("gallery: %v", err)
	}
	rw := rewrite.New(log, time.Second)
	orch := jobs.New(mgr, rw, store, jobs.Options{MaxActive: 4, Timeout: 30 * time.Second, Logger: log})
	con := console.New(console.Options{
		Manager:  mgr,
		Jobs:     orch,
		Gallery:  store,
		Rewriter: rw,
		Models:   models,
		Defaults: console.Defaults{
			Width: 512, Height: 512, Steps: 4,
			Filename:  "generated_image.png",
			Profile:   profile.Balanced,
			ModelPath: filepath.Join(modelsDir, "Z-Image-Turbo"),
		},
		Logger: log,
	})
	srv := httptest.NewServer(httpapi.NewMux(con))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = con.Close(ctx)
	})
	api, err := client.New(srv.URL)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return &stack{api: api, worker: w, galleryDir: galleryDir}
}

func (s *stack) load(t *testing.T, req types.LoadRequest) types.LoadResponse {
	t.Helper()
	resp, _, err := s.api.Load(testContext(t), req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return resp
}

func (s *stack) waitJob(t *testing.T, id string) types.ProgressResponse {
	t.Helper()
	p, err := s.api.Wait(testContext(t), id, 5*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("wait %s: %v", id, err)
	}
	return p
}
