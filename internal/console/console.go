// Package console composes the model manager, job orchestrator, prompt
// rewriter and gallery into the operations the HTTP API and CLI expose.
package console

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wenc23/zimagetool/internal/common/fsutil"
	"github.com/wenc23/zimagetool/internal/gallery"
	"github.com/wenc23/zimagetool/internal/jobs"
	"github.com/wenc23/zimagetool/internal/manager"
	"github.com/wenc23/zimagetool/internal/profile"
	"github.com/wenc23/zimagetool/internal/registry"
	"github.com/wenc23/zimagetool/internal/rewrite"
	"github.com/wenc23/zimagetool/pkg/types"
)

// Defaults fill in request fields the caller left out.
type Defaults struct {
	Width     int
	Height    int
	Steps     int
	Filename  string
	Profile   profile.Profile
	ModelPath string
}

// Options wires a Console.
type Options struct {
	Manager  *manager.Manager
	Jobs     *jobs.Orchestrator
	Gallery  *gallery.Store
	Rewriter *rewrite.Service
	Models   []types.Model
	Defaults Defaults
	Logger   zerolog.Logger
}

type Console struct {
	mgr      *manager.Manager
	jobs     *jobs.Orchestrator
	gallery  *gallery.Store
	rewriter *rewrite.Service
	models   []types.Model
	def      Defaults
	log      zerolog.Logger

	// background loads outlive the request that started them
	bg     context.Context
	stopBg context.CancelFunc
	bgWG   sync.WaitGroup

	// loadMu guards loading and closed. loading is set from the moment a
	// load is accepted until EnsureLoaded returns.
	loadMu  sync.Mutex
	loading bool
	closed  bool
}

func New(opts Options) *Console {
	bg, stop := context.WithCancel(context.Background())
	return &Console{
		mgr:      opts.Manager,
		jobs:     opts.Jobs,
		gallery:  opts.Gallery,
		rewriter: opts.Rewriter,
		models:   opts.Models,
		def:      opts.Defaults,
		log:      opts.Logger.With().Str("component", "console").Logger(),
		bg:       bg,
		stopBg:   stop,
	}
}

// Ready reports whether a model is loaded.
func (c *Console) Ready() bool { return c.mgr.IsLoaded() }

// Status reports the lifecycle state.
func (c *Console) Status() types.StatusResponse {
	st := c.mgr.Status()
	out := types.StatusResponse{
		ModelLoaded: st.State == manager.StateLoaded,
		State:       st.State.String(),
		Degraded:    st.Degraded,
		ModelPath:   st.ModelPath,
		LastError:   st.LastError,
		ActiveJobs:  c.jobs.Registry().Active(),
	}
	if st.State != manager.StateUnloaded {
		out.Profile = st.Profile.String()
	}
	if !st.LoadedAt.IsZero() {
		out.LoadedAt = st.LoadedAt.Unix()
		out.LoadSeconds = st.LoadDuration.Seconds()
	}
	return out
}

// Config exposes form defaults.
func (c *Console) Config() types.ConfigResponse {
	return types.ConfigResponse{
		DefaultWidth:            c.def.Width,
		DefaultHeight:           c.def.Height,
		DefaultSteps:            c.def.Steps,
		DefaultFilename:         c.def.Filename,
		DefaultOptimizationMode: c.def.Profile.String(),
		ModelPath:               c.def.ModelPath,
		RewriteRemote:           c.rewriter != nil && c.rewriter.Remote(),
	}
}

// Models lists the registry, flagging the configured default.
func (c *Console) Models() types.ModelsResponse {
	def, _ := fsutil.Resolve(c.def.ModelPath)
	out := make([]types.Model, 0, len(c.models))
	for _, m := range c.models {
		m.Default = def != "" && m.Path == def
		out = append(out, m)
	}
	return types.ModelsResponse{Models: out}
}

func invalid(format string, args ...any) error {
	return &jobs.Error{Kind: jobs.KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// Load ensures a model is loaded. With req.Async the load continues in the
// background and accepted is true; preconditions are still checked first.
func (c *Console) Load(ctx context.Context, req types.LoadRequest) (resp types.LoadResponse, accepted bool, err error) {
	p, err := profile.ParseOr(req.OptimizationMode, c.def.Profile)
	if err != nil {
		return resp, false, invalid("%v", err)
	}
	ref := strings.TrimSpace(req.ModelPath)
	if ref == "" {
		ref = c.def.ModelPath
	}
	path, err := registry.Lookup(c.models, ref)
	if err != nil || !fsutil.PathExists(path) {
		return resp, false, jobs.Classify(manager.ErrPathNotFound(ref))
	}

	if c.mgr.Status().State == manager.StateLoaded {
		res, err := c.mgr.EnsureLoaded(ctx, p, path)
		if err != nil {
			return resp, false, jobs.Classify(err)
		}
		return loadResponse(res), false, nil
	}
	if err := c.claimLoad(); err != nil {
		return resp, false, err
	}

	if !req.Async {
		defer c.releaseLoad()
		res, err := c.mgr.EnsureLoaded(ctx, p, path)
		if err != nil {
			return resp, false, jobs.Classify(err)
		}
		return loadResponse(res), false, nil
	}

	go func() {
		defer c.releaseLoad()
		if _, err := c.mgr.EnsureLoaded(c.bg, p, path); err != nil {
			c.log.Warn().Err(err).Str("model", path).Msg("background load failed")
		}
	}()
	return types.LoadResponse{Success: true, Message: "model loading started", Profile: p.String()}, true, nil
}

// claimLoad admits one load at a time and none after Close. On success the
// caller must call releaseLoad once EnsureLoaded returns.
func (c *Console) claimLoad() error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if c.closed {
		return &jobs.Error{Kind: jobs.KindBusy, Message: "server is shutting down"}
	}
	if c.loading || c.mgr.Status().State == manager.StateLoading {
		return jobs.Classify(manager.ErrAlreadyLoading)
	}
	c.loading = true
	c.bgWG.Add(1)
	return nil
}

func (c *Console) releaseLoad() {
	c.loadMu.Lock()
	c.loading = false
	c.loadMu.Unlock()
	c.bgWG.Done()
}

func loadResponse(res manager.LoadResult) types.LoadResponse {
	return types.LoadResponse{
		Success:       true,
		Message:       res.Message,
		Profile:       res.Profile.String(),
		Degraded:      res.Degraded,
		AlreadyLoaded: res.AlreadyLoaded,
	}
}

// Unload releases the model.
func (c *Console) Unload(ctx context.Context) (types.UnloadResponse, error) {
	res, err := c.mgr.Unload(ctx)
	if err != nil {
		return types.UnloadResponse{}, jobs.Classify(err)
	}
	return types.UnloadResponse{Success: true, Message: res.Message}, nil
}

func hints(h types.PromptHints) rewrite.Hints {
	return rewrite.Hints{
		Style:       h.ArtStyle,
		Character:   h.Character,
		Pose:        h.Pose,
		Background:  h.Background,
		Clothing:    h.Clothing,
		Lighting:    h.Lighting,
		Composition: h.Composition,
		Details:     h.Details,
	}
}

// RewritePrompt rewrites without generating.
func (c *Console) RewritePrompt(ctx context.Context, req types.RewriteRequest) (types.RewriteResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return types.RewriteResponse{}, invalid("prompt must not be empty")
	}
	var res rewrite.Result
	if c.rewriter != nil {
		res = c.rewriter.Rewrite(ctx, req.Prompt, hints(req.PromptHints))
	} else {
		res = rewrite.Result{Prompt: rewrite.Local(req.Prompt, hints(req.PromptHints)), Source: rewrite.SourceLocal}
	}
	return types.RewriteResponse{
		Success:         true,
		OriginalPrompt:  req.Prompt,
		OptimizedPrompt: res.Prompt,
		Source:          res.Source,
	}, nil
}

func orDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// Generate submits a job with defaults applied.
func (c *Console) Generate(req types.GenerateRequest) (types.GenerateResponse, error) {
	p, err := profile.ParseOr(req.OptimizationMode, c.def.Profile)
	if err != nil {
		return types.GenerateResponse{}, invalid("%v", err)
	}
	if cur, ok := c.mgr.CurrentProfile(); ok {
		p = cur
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = c.def.Filename
	}
	jr := jobs.Request{
		Prompt:   strings.TrimSpace(req.Prompt),
		Width:    orDefault(req.Width, c.def.Width),
		Height:   orDefault(req.Height, c.def.Height),
		Steps:    orDefault(req.Steps, c.def.Steps),
		Filename: filename,
		Profile:  p,
		Rewrite:  req.OptimizePrompt,
		Hints:    hints(req.PromptHints),
	}
	id, err := c.jobs.Submit(jr)
	if err != nil {
		return types.GenerateResponse{}, jobs.Classify(err)
	}
	return types.GenerateResponse{
		Success: true,
		TaskID:  id,
		Message: "generation started",
		Warning: profile.Advise(p, jr.Width, jr.Height),
	}, nil
}

// ImageURL is the HTTP path serving a gallery-relative image path.
func ImageURL(rel string) string { return "/gallery/" + strings.TrimPrefix(rel, "/") }

func progressResponse(rec jobs.Record) types.ProgressResponse {
	out := types.ProgressResponse{
		Success:   true,
		TaskID:    rec.ID,
		Status:    string(rec.State),
		Progress:  rec.Progress,
		Stage:     rec.Stage,
		Prompt:    rec.Prompt,
		CreatedAt: rec.CreatedAt.Unix(),
	}
	if rec.Result != nil {
		out.ImageURL = ImageURL(rec.Result.ImagePath)
		out.Folder = rec.Result.Folder
		out.ElapsedSeconds = rec.Result.Elapsed.Seconds()
		out.Message = "image saved to " + rec.Result.Folder
	}
	if rec.Error != nil {
		out.Message = rec.Error.Message
		out.Error = string(rec.Error.Kind)
		out.Hint = rec.Error.Hint
	}
	return out
}

// Progress returns a job snapshot.
func (c *Console) Progress(id string) (types.ProgressResponse, error) {
	rec, err := c.jobs.Query(id)
	if err != nil {
		return types.ProgressResponse{}, jobs.Classify(err)
	}
	return progressResponse(rec), nil
}

// Jobs lists all known jobs, newest first.
func (c *Console) Jobs() types.JobsResponse {
	recs := c.jobs.Registry().List()
	out := types.JobsResponse{Jobs: make([]types.ProgressResponse, 0, len(recs))}
	for _, r := range recs {
		out.Jobs = append(out.Jobs, progressResponse(r))
	}
	return out
}

// Cancel aborts a job and returns the snapshot taken before cancelling.
func (c *Console) Cancel(id string) (types.ProgressResponse, error) {
	rec, err := c.jobs.Cancel(id)
	if err != nil {
		return types.ProgressResponse{}, jobs.Classify(err)
	}
	return progressResponse(rec), nil
}

// Watch calls fn with every snapshot of a job until it is terminal, ctx
// ends or fn fails.
func (c *Console) Watch(ctx context.Context, id string, fn func(types.ProgressResponse) error) error {
	ch, stop, err := c.jobs.Registry().Subscribe(id)
	if err != nil {
		return jobs.Classify(err)
	}
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-ch:
			if !ok {
				return nil
			}
			if err := fn(progressResponse(rec)); err != nil {
				return err
			}
		}
	}
}

// Gallery lists saved images.
func (c *Console) Gallery() (types.GalleryResponse, error) {
	items, err := c.gallery.List()
	if err != nil {
		return types.GalleryResponse{}, err
	}
	out := types.GalleryResponse{Images: make([]types.GalleryItem, 0, len(items))}
	for _, it := range items {
		out.Images = append(out.Images, types.GalleryItem{
			Name:   it.File,
			Folder: it.Folder,
			Path:   ImageURL(it.RelPath()),
			Info:   it.Info,
		})
	}
	return out, nil
}

// DeleteImage removes one gallery folder.
func (c *Console) DeleteImage(folder string) (types.DeleteResponse, error) {
	if err := c.gallery.Delete(folder); err != nil {
		return types.DeleteResponse{}, jobs.Classify(err)
	}
	return types.DeleteResponse{Success: true, Message: "deleted " + folder}, nil
}

// ResolveImage maps a gallery-relative path to a file on disk.
func (c *Console) ResolveImage(rel string) (string, error) {
	p, err := c.gallery.Resolve(rel)
	if err != nil {
		return "", jobs.Classify(err)
	}
	return p, nil
}

// Close stops jobs, waits for background loads and unloads the model.
func (c *Console) Close(ctx context.Context) error {
	c.loadMu.Lock()
	c.closed = true
	c.loadMu.Unlock()
	c.stopBg()
	jerr := c.jobs.Close(ctx)
	done := make(chan struct{})
	go func() {
		c.bgWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.mgr.Close(ctx); err != nil {
		return err
	}
	return jerr
}
