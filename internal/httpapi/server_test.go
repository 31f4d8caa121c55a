package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wenc23/zimagetool/internal/jobs"
	"github.com/wenc23/zimagetool/pkg/types"
)

type mockService struct {
	ready     bool
	status    types.StatusResponse
	models    []types.Model
	loadErr   error
	async     bool
	lastLoad  types.LoadRequest
	genErr    error
	lastGen   types.GenerateRequest
	snapshots []types.ProgressResponse
	watchErr  error
	file      string
}

func (m *mockService) Ready() bool { return m.ready }

func (m *mockService) Status() types.StatusResponse { return m.status }

func (m *mockService) Config() types.ConfigResponse {
	return types.ConfigResponse{DefaultWidth: 1024, DefaultHeight: 1024, DefaultSteps: 9}
}

func (m *mockService) Models() types.ModelsResponse { return types.ModelsResponse{Models: m.models} }

func (m *mockService) Load(_ context.Context, req types.LoadRequest) (types.LoadResponse, bool, error) {
	m.lastLoad = req
	if m.loadErr != nil {
		return types.LoadResponse{}, false, m.loadErr
	}
	return types.LoadResponse{Success: true, Message: "ok", Profile: "balanced"}, req.Async && m.async, nil
}

func (m *mockService) Unload(context.Context) (types.UnloadResponse, error) {
	return types.UnloadResponse{Success: true, Message: "model unloaded"}, nil
}

func (m *mockService) RewritePrompt(_ context.Context, req types.RewriteRequest) (types.RewriteResponse, error) {
	return types.RewriteResponse{Success: true, OriginalPrompt: req.Prompt, OptimizedPrompt: req.Prompt + "!", Source: "local"}, nil
}

func (m *mockService) Generate(req types.GenerateRequest) (types.GenerateResponse, error) {
	m.lastGen = req
	if m.genErr != nil {
		return types.GenerateResponse{}, m.genErr
	}
	return types.GenerateResponse{Success: true, TaskID: "job-1"}, nil
}

func (m *mockService) Progress(id string) (types.ProgressResponse, error) {
	if id != "job-1" {
		return types.ProgressResponse{}, &jobs.Error{Kind: jobs.KindNotFound, Message: "job not found: " + id}
	}
	return types.ProgressResponse{Success: true, TaskID: id, Status: "running", Progress: 46}, nil
}

func (m *mockService) Jobs() types.JobsResponse {
	return types.JobsResponse{Jobs: []types.ProgressResponse{{TaskID: "job-1"}}}
}

func (m *mockService) Cancel(id string) (types.ProgressResponse, error) { return m.Progress(id) }

func (m *mockService) Watch(_ context.Context, id string, fn func(types.ProgressResponse) error) error {
	if m.watchErr != nil {
		return m.watchErr
	}
	for _, s := range m.snapshots {
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockService) Gallery() (types.GalleryResponse, error) {
	return types.GalleryResponse{Images: []types.GalleryItem{{Name: "fox.png", Folder: "fox", Path: "/gallery/fox/fox.png"}}}, nil
}

func (m *mockService) DeleteImage(folder string) (types.DeleteResponse, error) {
	if strings.Contains(folder, "..") {
		return types.DeleteResponse{}, &jobs.Error{Kind: jobs.KindInvalidRequest, Message: "invalid name"}
	}
	return types.DeleteResponse{Success: true, Message: "deleted " + folder}, nil
}

func (m *mockService) ResolveImage(rel string) (string, error) {
	if rel != "fox/fox.png" || m.file == "" {
		return "", &jobs.Error{Kind: jobs.KindNotFound, Message: "not found"}
	}
	return m.file, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	var e types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("json: %v body=%s", err, w.Body.String())
	}
	return e
}

func TestHealthz(t *testing.T) {
	w := do(t, NewMux(&mockService{}), http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
}

func TestReadyz(t *testing.T) {
	w := do(t, NewMux(&mockService{ready: true}), http.MethodGet, "/readyz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	w = do(t, NewMux(&mockService{status: types.StatusResponse{State: "loading"}}), http.MethodGet, "/readyz", "")
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "loading") {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
}

func TestStatusConfigModels(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{ModelLoaded: true, State: "loaded", Profile: "minimal"}, models: []types.Model{{ID: "m1"}, {ID: "m2"}}}
	r := NewMux(svc)
	w := do(t, r, http.MethodGet, "/api/status", "")
	var st types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil || st.Profile != "minimal" || !st.ModelLoaded {
		t.Fatalf("status body=%s err=%v", w.Body.String(), err)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	w = do(t, r, http.MethodGet, "/api/config", "")
	var cfg types.ConfigResponse
	if err := json.Unmarshal(w.Body.Bytes(), &cfg); err != nil || cfg.DefaultSteps != 9 {
		t.Fatalf("config body=%s", w.Body.String())
	}
	w = do(t, r, http.MethodGet, "/api/models", "")
	var models types.ModelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &models); err != nil || len(models.Models) != 2 {
		t.Fatalf("models body=%s", w.Body.String())
	}
}

func TestLoadModel(t *testing.T) {
	svc := &mockService{async: true}
	r := NewMux(svc)
	w := do(t, r, http.MethodPost, "/api/load-model", `{"optimization_mode":"low_vram","model_path":"m1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if svc.lastLoad.OptimizationMode != "low_vram" || svc.lastLoad.ModelPath != "m1" {
		t.Fatalf("request not decoded: %+v", svc.lastLoad)
	}
	w = do(t, r, http.MethodPost, "/api/load-model", `{"async":true}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("async load status=%d", w.Code)
	}
	// empty body uses defaults
	w = do(t, r, http.MethodPost, "/api/load-model", "")
	if w.Code != http.StatusOK {
		t.Fatalf("empty body status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestLoadModelErrorMapping(t *testing.T) {
	cases := []struct {
		kind   jobs.Kind
		status int
	}{
		{jobs.KindPathNotFound, http.StatusNotFound},
		{jobs.KindAlreadyLoading, http.StatusConflict},
		{jobs.KindInvalidRequest, http.StatusBadRequest},
		{jobs.KindOutOfMemory, http.StatusInsufficientStorage},
		{jobs.KindUnclassified, http.StatusInternalServerError},
	}
	for _, c := range cases {
		svc := &mockService{loadErr: &jobs.Error{Kind: c.kind, Message: "x", Hint: "h"}}
		w := do(t, NewMux(svc), http.MethodPost, "/api/load-model", `{}`)
		if w.Code != c.status {
			t.Fatalf("%s: status=%d want %d", c.kind, w.Code, c.status)
		}
		e := decodeError(t, w)
		if e.Success || e.Error != string(c.kind) || e.Code != c.status || e.Message != "x" || e.Hint != "h" {
			t.Fatalf("%s: unexpected payload %+v", c.kind, e)
		}
	}
}

func TestGenerate(t *testing.T) {
	svc := &mockService{}
	r := NewMux(svc)
	w := do(t, r, http.MethodPost, "/api/generate", `{"prompt":"a red fox","width":768,"optimize_prompt":true,"art_style":"watercolor"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp types.GenerateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.TaskID != "job-1" {
		t.Fatalf("body=%s", w.Body.String())
	}
	g := svc.lastGen
	if g.Width == nil || *g.Width != 768 || g.Height != nil || !g.OptimizePrompt || g.ArtStyle != "watercolor" {
		t.Fatalf("request not decoded: %+v", g)
	}
}

func TestGenerateErrors(t *testing.T) {
	svc := &mockService{genErr: &jobs.Error{Kind: jobs.KindNotLoaded, Message: "model not loaded"}}
	r := NewMux(svc)
	if w := do(t, r, http.MethodPost, "/api/generate", `{"prompt":"x"}`); w.Code != http.StatusConflict {
		t.Fatalf("not loaded status=%d", w.Code)
	}
	svc.genErr = &jobs.Error{Kind: jobs.KindBusy, Message: "busy"}
	if w := do(t, r, http.MethodPost, "/api/generate", `{"prompt":"x"}`); w.Code != http.StatusTooManyRequests {
		t.Fatalf("busy status=%d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/api/generate", "not-json"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json status=%d", w.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewBufferString(`{"prompt":"x"}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("media type status=%d", w.Code)
	}
}

func TestGenerateBodyTooLarge(t *testing.T) {
	big := `{"prompt":"` + strings.Repeat("a", (1<<20)+10) + `"}`
	w := do(t, NewMux(&mockService{}), http.MethodPost, "/api/generate", big)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too-large body, got %d", w.Code)
	}
}

func TestProgressJobsCancel(t *testing.T) {
	r := NewMux(&mockService{})
	w := do(t, r, http.MethodGet, "/api/generate/progress/job-1", "")
	var p types.ProgressResponse
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil || w.Code != http.StatusOK || p.Progress != 46 {
		t.Fatalf("progress status=%d body=%s", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodGet, "/api/generate/progress/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown job status=%d", w.Code)
	}
	w = do(t, r, http.MethodGet, "/api/jobs", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "job-1") {
		t.Fatalf("jobs status=%d body=%s", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodPost, "/api/jobs/job-1/cancel", ""); w.Code != http.StatusOK {
		t.Fatalf("cancel status=%d", w.Code)
	}
}

func TestEventsStreamsNDJSON(t *testing.T) {
	svc := &mockService{snapshots: []types.ProgressResponse{
		{TaskID: "job-1", Status: "running", Progress: 15},
		{TaskID: "job-1", Status: "running", Progress: 53},
		{TaskID: "job-1", Status: "succeeded", Progress: 100},
	}}
	w := do(t, NewMux(svc), http.MethodGet, "/api/jobs/job-1/events", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content-type=%s", ct)
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 ndjson lines, got %d", len(lines))
	}
	var last types.ProgressResponse
	if err := json.Unmarshal([]byte(lines[2]), &last); err != nil || last.Progress != 100 {
		t.Fatalf("last line %q", lines[2])
	}
}

func TestEventsUnknownJob(t *testing.T) {
	svc := &mockService{watchErr: &jobs.Error{Kind: jobs.KindNotFound, Message: "job not found"}}
	w := do(t, NewMux(svc), http.MethodGet, "/api/jobs/x/events", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestGalleryRoutes(t *testing.T) {
	file := filepath.Join(t.TempDir(), "fox.png")
	if err := os.WriteFile(file, []byte("\x89PNG\r\n\x1a\nfake"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewMux(&mockService{file: file})
	w := do(t, r, http.MethodGet, "/api/gallery", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/gallery/fox/fox.png") {
		t.Fatalf("gallery status=%d body=%s", w.Code, w.Body.String())
	}
	w = do(t, r, http.MethodGet, "/gallery/fox/fox.png", "")
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Body.String(), "\x89PNG") {
		t.Fatalf("serve status=%d", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/gallery/other.png", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing file status=%d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/api/gallery/delete", `{"folder_name":"fox"}`); w.Code != http.StatusOK {
		t.Fatalf("delete status=%d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/api/gallery/delete", `{"folder_name":"../etc"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("traversal status=%d", w.Code)
	}
}

func TestOptimizePromptAndUnload(t *testing.T) {
	r := NewMux(&mockService{})
	w := do(t, r, http.MethodPost, "/api/optimize-prompt", `{"prompt":"fox"}`)
	var resp types.RewriteResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.OptimizedPrompt != "fox!" {
		t.Fatalf("rewrite body=%s", w.Body.String())
	}
	if w := do(t, r, http.MethodPost, "/api/unload-model", ""); w.Code != http.StatusOK {
		t.Fatalf("unload status=%d", w.Code)
	}
}

func TestCORSWhenEnabled(t *testing.T) {
	SetCORSOptions(true, []string{"http://localhost:3000"}, nil, nil)
	defer SetCORSOptions(false, nil, nil, nil)
	r := NewMux(&mockService{})
	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow-origin=%q", got)
	}
}
