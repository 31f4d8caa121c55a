// Package jobs runs generation requests in the background and tracks each
// one in a Registry until it succeeds or fails.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/wenc23/zimagetool/internal/gallery"
	"github.com/wenc23/zimagetool/internal/manager"
	"github.com/wenc23/zimagetool/internal/pipeline"
	"github.com/wenc23/zimagetool/internal/rewrite"
)

// Models is the part of the lifecycle manager jobs depend on.
type Models interface {
	IsLoaded() bool
	WithHandle(fn func(manager.Handle) error) error
}

// Rewriter expands prompts. It never fails.
type Rewriter interface {
	Rewrite(ctx context.Context, prompt string, h rewrite.Hints) rewrite.Result
}

// Sink persists finished images.
type Sink interface {
	Save(ctx context.Context, img image.Image, meta gallery.Metadata) (gallery.Artifact, error)
}

// Options tune the orchestrator. Zero values pick defaults.
type Options struct {
	// MaxActive bounds non-terminal jobs; further submissions get Busy.
	MaxActive int
	// MaxConcurrentInference bounds simultaneous inference calls.
	MaxConcurrentInference int
	// Timeout bounds one job end to end; 0 disables.
	Timeout time.Duration
	// TTL removes terminal records after this long; 0 keeps them.
	TTL          time.Duration
	ReapInterval time.Duration
	Logger       zerolog.Logger
}

const (
	defaultMaxActive    = 32
	defaultReapInterval = time.Minute
)

// Progress checkpoints.
const (
	progressRewriting    = 5
	progressPreparing    = 10
	progressInitializing = 15
	progressGenerated    = 85
	progressFinalizing   = 88
)

type Orchestrator struct {
	models   Models
	rewriter Rewriter
	sink     Sink
	reg      *Registry
	sem      *semaphore.Weighted
	opts     Options
	log      zerolog.Logger

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	// admitMu makes the active count and the insert one step.
	admitMu sync.Mutex

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New starts an orchestrator. rewriter may be nil, in which case rewriting
// uses the deterministic local combination.
func New(models Models, rewriter Rewriter, sink Sink, opts Options) *Orchestrator {
	if opts.MaxActive <= 0 {
		opts.MaxActive = defaultMaxActive
	}
	if opts.MaxConcurrentInference <= 0 {
		opts.MaxConcurrentInference = 1
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = defaultReapInterval
	}
	ctx, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		models:   models,
		rewriter: rewriter,
		sink:     sink,
		reg:      NewRegistry(),
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrentInference)),
		opts:     opts,
		log:      opts.Logger.With().Str("component", "jobs").Logger(),
		ctx:      ctx,
		stop:     stop,
		cancels:  make(map[string]context.CancelFunc),
	}
	if opts.TTL > 0 {
		o.wg.Add(1)
		go o.reaper()
	}
	return o
}

// Registry exposes the record store for queries and subscriptions.
func (o *Orchestrator) Registry() *Registry { return o.reg }

// Submit validates req, creates a pending record and starts the job. Errors
// are returned synchronously and leave no record.
func (o *Orchestrator) Submit(req Request) (string, error) {
	if err := req.Validate(); err != nil {
		jobsRejected.WithLabelValues(string(KindOf(err))).Inc()
		return "", err
	}
	if !o.models.IsLoaded() {
		jobsRejected.WithLabelValues(string(KindNotLoaded)).Inc()
		return "", wrapError(KindNotLoaded, manager.ErrNotLoaded)
	}
	o.admitMu.Lock()
	if o.ctx.Err() != nil {
		o.admitMu.Unlock()
		return "", newError(KindBusy, "job orchestrator is shutting down")
	}
	if n := o.reg.Active(); n >= o.opts.MaxActive {
		o.admitMu.Unlock()
		jobsRejected.WithLabelValues(string(KindBusy)).Inc()
		return "", newError(KindBusy, fmt.Sprintf("too many active jobs (%d)", n))
	}
	id := uuid.NewString()
	o.reg.insert(Record{ID: id, State: StatePending, Stage: "queued", Request: req, Prompt: req.Prompt})
	ctx, cancel := o.jobContext()
	o.mu.Lock()
	o.cancels[id] = cancel
	o.mu.Unlock()
	o.wg.Add(1)
	o.admitMu.Unlock()

	jobsSubmitted.Inc()
	jobsActive.Inc()
	go o.run(ctx, id, req)
	return id, nil
}

func (o *Orchestrator) jobContext() (context.Context, context.CancelFunc) {
	if o.opts.Timeout > 0 {
		return context.WithTimeout(o.ctx, o.opts.Timeout)
	}
	return context.WithCancel(o.ctx)
}

// Query returns a copy of the job record or a NotFound error.
func (o *Orchestrator) Query(id string) (Record, error) { return o.reg.Get(id) }

// Cancel aborts a job. Cancelling a finished job changes nothing and
// returns its record.
func (o *Orchestrator) Cancel(id string) (Record, error) {
	rec, err := o.reg.Get(id)
	if err != nil {
		return Record{}, err
	}
	if rec.State.Terminal() {
		return rec, nil
	}
	o.mu.Lock()
	cancel := o.cancels[id]
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return rec, nil
}

// Close cancels every running job, stops the reaper and waits for the
// background work to end or ctx to expire.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.admitMu.Lock()
	o.stop()
	o.admitMu.Unlock()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) reaper() {
	defer o.wg.Done()
	t := time.NewTicker(o.opts.ReapInterval)
	defer t.Stop()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-t.C:
			if n := o.reg.Reap(time.Now().Add(-o.opts.TTL)); n > 0 {
				o.log.Debug().Int("reaped", n).Msg("removed expired jobs")
			}
		}
	}
}

func (o *Orchestrator) progress(id string, pct int, stage string) {
	o.reg.update(id, func(r *Record) {
		r.State = StateRunning
		if pct > r.Progress {
			r.Progress = pct
		}
		r.Stage = stage
	})
}

func (o *Orchestrator) run(ctx context.Context, id string, req Request) {
	log := o.log.With().Str("job", id).Logger()
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		cancel := o.cancels[id]
		delete(o.cancels, id)
		o.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		jobsActive.Dec()
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("job panicked")
			o.fail(id, newError(KindUnclassified, fmt.Sprintf("internal error: %v", r)))
		}
	}()

	res, err := o.execute(ctx, id, req, log)
	if err != nil {
		je := Classify(err)
		if cerr := ctx.Err(); cerr != nil && je.Kind == KindUnclassified {
			je = Classify(cerr)
		}
		log.Warn().Str("kind", string(je.Kind)).Err(err).Msg("job failed")
		o.fail(id, je)
		return
	}
	o.reg.update(id, func(r *Record) {
		r.State = StateSucceeded
		r.Stage = "done"
		r.Result = &res
	})
	jobsFinished.WithLabelValues(string(StateSucceeded), "").Inc()
	log.Info().Str("image", res.ImagePath).Dur("elapsed", res.Elapsed).Msg("job succeeded")
}

func (o *Orchestrator) fail(id string, je *Error) {
	if _, ok := o.reg.update(id, func(r *Record) {
		r.State = StateFailed
		r.Stage = "failed"
		r.Error = je
	}); ok {
		jobsFinished.WithLabelValues(string(StateFailed), string(je.Kind)).Inc()
	}
}

func (o *Orchestrator) execute(ctx context.Context, id string, req Request, log zerolog.Logger) (Result, error) {
	prompt := req.Prompt
	if req.Rewrite {
		o.progress(id, progressRewriting, "rewriting prompt")
		var rw rewrite.Result
		if o.rewriter != nil {
			rw = o.rewriter.Rewrite(ctx, req.Prompt, req.Hints)
		} else {
			rw = rewrite.Result{Prompt: rewrite.Local(req.Prompt, req.Hints), Source: rewrite.SourceLocal}
		}
		if rw.Prompt != "" {
			prompt = rw.Prompt
		}
		log.Debug().Str("source", rw.Source).Msg("prompt rewritten")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	o.reg.update(id, func(r *Record) {
		r.State = StateRunning
		r.Progress = progressPreparing
		r.Stage = "preparing"
		r.Prompt = prompt
	})
	if err := req.checkBound(); err != nil {
		return Result{}, err
	}
	o.progress(id, progressInitializing, "initializing")

	params := pipeline.Params{
		Prompt:        prompt,
		Width:         req.Width,
		Height:        req.Height,
		Steps:         req.Steps,
		GuidanceScale: req.GuidanceScale,
		Seed:          req.Seed,
	}
	var (
		img     image.Image
		elapsed time.Duration
		meta    gallery.Metadata
	)
	// Wait for the inference slot before borrowing so a queued job does not
	// hold the model open across an unload.
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	err := o.borrowSlot(func(h manager.Handle) error {
		start := time.Now()
		var err error
		img, err = h.Generate(ctx, params, o.stepFunc(ctx, id))
		if errors.Is(err, pipeline.ErrStepCallbackUnsupported) {
			o.progress(id, progressInitializing, "generating")
			img, err = h.Generate(ctx, params, nil)
		}
		elapsed = time.Since(start)
		if err != nil {
			return err
		}
		if img == nil {
			return errors.New("pipeline returned no image")
		}
		inferenceDuration.Observe(elapsed.Seconds())
		label := h.Profile.String()
		if h.Degraded {
			label += " (degraded)"
		}
		meta = gallery.Metadata{
			Filename: req.Filename,
			Prompt:   prompt,
			Width:    req.Width,
			Height:   req.Height,
			Steps:    req.Steps,
			Profile:  label,
			Elapsed:  elapsed,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	o.progress(id, progressGenerated, "generating")

	o.progress(id, progressFinalizing, "finalizing")
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	art, err := o.sink.Save(ctx, img, meta)
	if err != nil {
		return Result{}, &Error{Kind: KindPersistenceFailed, Message: "save image: " + err.Error(), Err: err}
	}
	return Result{
		Prompt:    prompt,
		Location:  art.Dir,
		ImagePath: art.RelPath(),
		Folder:    art.Folder,
		Elapsed:   elapsed,
	}, nil
}

// borrowSlot runs fn on the loaded model and gives back the inference slot
// taken by the caller.
func (o *Orchestrator) borrowSlot(fn func(manager.Handle) error) error {
	defer o.sem.Release(1)
	return o.models.WithHandle(fn)
}

// stepFunc maps inference steps onto 15..85 and doubles as the cancellation
// checkpoint.
func (o *Orchestrator) stepFunc(ctx context.Context, id string) pipeline.StepFunc {
	return func(step, total int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if total <= 0 {
			return nil
		}
		pct := progressInitializing + (step+1)*70/total
		if pct > progressGenerated {
			pct = progressGenerated
		}
		if pct < progressInitializing {
			pct = progressInitializing
		}
		o.progress(id, pct, fmt.Sprintf("generating: %d/%d steps", step+1, total))
		return nil
	}
}
