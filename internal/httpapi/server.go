// Package httpapi exposes the console over JSON/HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wenc23/zimagetool/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Ready() bool
	Status() types.StatusResponse
	Config() types.ConfigResponse
	Models() types.ModelsResponse
	Load(ctx context.Context, req types.LoadRequest) (types.LoadResponse, bool, error)
	Unload(ctx context.Context) (types.UnloadResponse, error)
	RewritePrompt(ctx context.Context, req types.RewriteRequest) (types.RewriteResponse, error)
	Generate(req types.GenerateRequest) (types.GenerateResponse, error)
	Progress(id string) (types.ProgressResponse, error)
	Jobs() types.JobsResponse
	Cancel(id string) (types.ProgressResponse, error)
	Watch(ctx context.Context, id string, fn func(types.ProgressResponse) error) error
	Gallery() (types.GalleryResponse, error)
	DeleteImage(folder string) (types.DeleteResponse, error)
	ResolveImage(rel string) (string, error)
}

type handlers struct{ svc Service }

func NewMux(svc Service) http.Handler {
	h := &handlers{svc: svc}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json", "text/plain"))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(corsHandler())
	}

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Get("/config", h.config)
		r.Get("/models", h.models)
		r.Post("/load-model", h.loadModel)
		r.Post("/unload-model", h.unloadModel)
		r.Post("/optimize-prompt", h.optimizePrompt)
		r.Post("/generate", h.generate)
		r.Get("/generate/progress/{id}", h.progress)
		r.Get("/jobs", h.jobs)
		r.Get("/jobs/{id}/events", h.events)
		r.Post("/jobs/{id}/cancel", h.cancel)
		r.Get("/gallery", h.gallery)
		r.Post("/gallery/delete", h.deleteImage)
	})
	r.Get("/gallery/*", h.serveImage)

	MountSwagger(r)
	return r
}

func corsHandler() func(http.Handler) http.Handler {
	methods := corsAllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	headers := corsAllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type", "X-Log-Level", "X-Request-Id"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: methods,
		AllowedHeaders: headers,
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON body into v. An empty body is allowed only when
// optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	if r.ContentLength != 0 || !optional {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "Content-Type must be application/json", "")
			return false
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if optional && errors.Is(err, io.EOF) {
		return true
	}
	if err != nil {
		// also covers bodies over the size limit
		badRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// healthz godoc
// @Summary  Liveness probe
// @Tags     health
// @Produce  plain
// @Success  200 {string} string "ok"
// @Router   /healthz [get]
func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyz godoc
// @Summary  Readiness probe; 200 once a model is loaded
// @Tags     health
// @Produce  plain
// @Success  200 {string} string "ready"
// @Failure  503 {string} string "loading or unloaded"
// @Router   /readyz [get]
func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if h.svc.Ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(h.svc.Status().State))
}

// status godoc
// @Summary  Model lifecycle status
// @Tags     model
// @Produce  json
// @Success  200 {object} types.StatusResponse
// @Router   /api/status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// config godoc
// @Summary  Form defaults
// @Tags     model
// @Produce  json
// @Success  200 {object} types.ConfigResponse
// @Router   /api/config [get]
func (h *handlers) config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Config())
}

// models godoc
// @Summary  Models found under the models directory
// @Tags     model
// @Produce  json
// @Success  200 {object} types.ModelsResponse
// @Router   /api/models [get]
func (h *handlers) models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Models())
}

// loadModel godoc
// @Summary  Load the model under a resource profile
// @Tags     model
// @Accept   json
// @Produce  json
// @Param    request body types.LoadRequest false "load options"
// @Success  200 {object} types.LoadResponse
// @Success  202 {object} types.LoadResponse "async load started"
// @Failure  400 {object} types.ErrorResponse
// @Failure  404 {object} types.ErrorResponse
// @Failure  409 {object} types.ErrorResponse
// @Router   /api/load-model [post]
func (h *handlers) loadModel(w http.ResponseWriter, r *http.Request) {
	var req types.LoadRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	lvl := requestLogLevel(r)
	start := time.Now()
	logStart(r, lvl, "load")
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	if loadTimeout > 0 && !req.Async {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, loadTimeout)
		defer tcancel()
	}
	resp, accepted, err := h.svc.Load(ctx, req)
	if err != nil {
		logEnd(r, lvl, "load", writeError(w, err), start, err)
		return
	}
	status := http.StatusOK
	if accepted {
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
	logEnd(r, lvl, "load", status, start, nil)
}

// unloadModel godoc
// @Summary  Unload the model after in-flight jobs drain
// @Tags     model
// @Produce  json
// @Success  200 {object} types.UnloadResponse
// @Failure  409 {object} types.ErrorResponse
// @Router   /api/unload-model [post]
func (h *handlers) unloadModel(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Unload(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// optimizePrompt godoc
// @Summary  Rewrite a prompt without generating
// @Tags     prompt
// @Accept   json
// @Produce  json
// @Param    request body types.RewriteRequest true "prompt and hints"
// @Success  200 {object} types.RewriteResponse
// @Failure  400 {object} types.ErrorResponse
// @Router   /api/optimize-prompt [post]
func (h *handlers) optimizePrompt(w http.ResponseWriter, r *http.Request) {
	var req types.RewriteRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	resp, err := h.svc.RewritePrompt(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// generate godoc
// @Summary  Submit a generation job
// @Tags     jobs
// @Accept   json
// @Produce  json
// @Param    request body types.GenerateRequest true "generation request"
// @Success  200 {object} types.GenerateResponse
// @Failure  400 {object} types.ErrorResponse
// @Failure  409 {object} types.ErrorResponse "model not loaded"
// @Failure  429 {object} types.ErrorResponse "too many active jobs"
// @Router   /api/generate [post]
func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	lvl := requestLogLevel(r)
	start := time.Now()
	resp, err := h.svc.Generate(req)
	if err != nil {
		logEnd(r, lvl, "generate", writeError(w, err), start, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	logEnd(r, lvl, "generate", http.StatusOK, start, nil)
}

// progress godoc
// @Summary  Poll a job
// @Tags     jobs
// @Produce  json
// @Param    id path string true "task id"
// @Success  200 {object} types.ProgressResponse
// @Failure  404 {object} types.ErrorResponse
// @Router   /api/generate/progress/{id} [get]
func (h *handlers) progress(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Progress(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// jobs godoc
// @Summary  List jobs, newest first
// @Tags     jobs
// @Produce  json
// @Success  200 {object} types.JobsResponse
// @Router   /api/jobs [get]
func (h *handlers) jobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Jobs())
}

// events godoc
// @Summary  Stream job snapshots as NDJSON until the job finishes
// @Tags     jobs
// @Produce  application/x-ndjson
// @Param    id path string true "task id"
// @Success  200 {object} types.ProgressResponse "one object per line"
// @Failure  404 {object} types.ErrorResponse
// @Router   /api/jobs/{id}/events [get]
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lvl := requestLogLevel(r)
	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	out := io.Writer(w)
	if lvl >= LevelDebug {
		out = io.MultiWriter(w, &loggingLineWriter{job: id})
	}
	enc := json.NewEncoder(out)
	started := false

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	err := h.svc.Watch(ctx, id, func(p types.ProgressResponse) error {
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := enc.Encode(p); err != nil {
			return err
		}
		if flush != nil {
			flush()
		}
		return nil
	})
	if err != nil && !started {
		writeError(w, err)
	}
}

// cancel godoc
// @Summary  Cancel a job
// @Tags     jobs
// @Produce  json
// @Param    id path string true "task id"
// @Success  200 {object} types.ProgressResponse "snapshot before cancelling"
// @Failure  404 {object} types.ErrorResponse
// @Router   /api/jobs/{id}/cancel [post]
func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// gallery godoc
// @Summary  List saved images, newest first
// @Tags     gallery
// @Produce  json
// @Success  200 {object} types.GalleryResponse
// @Router   /api/gallery [get]
func (h *handlers) gallery(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Gallery()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// deleteImage godoc
// @Summary  Delete one gallery folder
// @Tags     gallery
// @Accept   json
// @Produce  json
// @Param    request body types.DeleteRequest true "folder"
// @Success  200 {object} types.DeleteResponse
// @Failure  400 {object} types.ErrorResponse
// @Failure  404 {object} types.ErrorResponse
// @Router   /api/gallery/delete [post]
func (h *handlers) deleteImage(w http.ResponseWriter, r *http.Request) {
	var req types.DeleteRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	resp, err := h.svc.DeleteImage(req.FolderName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) serveImage(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.ResolveImage(chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, err)
		return
	}
	http.ServeFile(w, r, p)
}
