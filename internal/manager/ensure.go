package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/wenc23/zimagetool/internal/common/fsutil"
	"github.com/wenc23/zimagetool/internal/pipeline"
	"github.com/wenc23/zimagetool/internal/profile"
)

// LoadResult describes the outcome of EnsureLoaded.
type LoadResult struct {
	Message       string
	Profile       profile.Profile
	AlreadyLoaded bool
	Degraded      bool
	Duration      time.Duration
}

// EnsureLoaded loads modelPath under p unless a pipeline is already loaded.
//
// An already loaded pipeline is kept even when p differs from its profile;
// switching profiles requires Unload first. While another load or unload
// runs, ErrAlreadyLoading is returned at once. A missing path fails with a
// PathNotFound error and leaves the state untouched. Any other failure
// returns the manager to StateUnloaded.
func (m *Manager) EnsureLoaded(ctx context.Context, p profile.Profile, modelPath string) (LoadResult, error) {
	m.mu.RLock()
	st := m.state
	if st == StateLoaded {
		res := m.alreadyLoadedLocked(p)
		m.mu.RUnlock()
		return res, nil
	}
	m.mu.RUnlock()
	if st == StateLoading {
		return LoadResult{}, ErrAlreadyLoading
	}

	if !m.opMu.TryLock() {
		return LoadResult{}, ErrAlreadyLoading
	}
	defer m.opMu.Unlock()

	path, err := fsutil.Resolve(modelPath)
	if err != nil || modelPath == "" || !fsutil.PathExists(path) {
		return LoadResult{}, ErrPathNotFound(modelPath)
	}

	m.mu.Lock()
	if m.state == StateLoaded {
		// a load finished between the fast path and opMu
		res := m.alreadyLoadedLocked(p)
		m.mu.Unlock()
		return res, nil
	}
	m.state = StateLoading
	m.profile = p
	m.modelPath = path
	m.lastErr = ""
	m.mu.Unlock()

	m.log.Info().Str("event", "ensure_start").Str("model", path).Str("profile", p.String()).Msg("manager")
	m.publisher.Publish(Event{Name: "load_start", ModelPath: path, Fields: map[string]any{"profile": p.String()}})
	start := time.Now()

	pipe, applied, err := m.load(ctx, p, path)
	dur := time.Since(start)
	if err != nil {
		m.mu.Lock()
		m.state = StateUnloaded
		m.modelPath = ""
		m.lastErr = err.Error()
		m.mu.Unlock()
		modelLoadsTotal.WithLabelValues(p.String(), "error").Inc()
		m.log.Error().Str("event", "ensure_error").Str("model", path).Dur("dur", dur).Err(err).Msg("manager")
		m.publisher.Publish(Event{Name: "load_failed", ModelPath: path, Fields: map[string]any{"error": err.Error()}})
		return LoadResult{}, fmt.Errorf("load model: %w", err)
	}

	m.mu.Lock()
	m.state = StateLoaded
	m.lease = &lease{pipe: pipe}
	m.applied = applied
	m.loadedAt = time.Now()
	m.loadDur = dur
	m.mu.Unlock()
	modelLoaded.Set(1)
	modelLoadDuration.WithLabelValues(p.String()).Observe(dur.Seconds())

	res := LoadResult{Profile: p, Degraded: applied.Degraded, Duration: dur}
	res.Message = fmt.Sprintf("model loaded in %.2fs (%s)", dur.Seconds(), p)
	if applied.Degraded {
		res.Message += "; " + applied.Note
		modelLoadsTotal.WithLabelValues(p.String(), "degraded").Inc()
		m.log.Warn().Str("event", "ensure_degraded").Str("model", path).Str("note", applied.Note).Msg("manager")
		m.publisher.Publish(Event{Name: "load_degraded", ModelPath: path, Fields: map[string]any{"note": applied.Note}})
	} else {
		modelLoadsTotal.WithLabelValues(p.String(), "ok").Inc()
	}
	m.log.Info().Str("event", "ensure_ready").Str("model", path).Dur("dur", dur).Msg("manager")
	m.publisher.Publish(Event{Name: "load_ready", ModelPath: path, Fields: map[string]any{"profile": p.String(), "seconds": dur.Seconds()}})
	return res, nil
}

func (m *Manager) alreadyLoadedLocked(p profile.Profile) LoadResult {
	res := LoadResult{Profile: m.profile, AlreadyLoaded: true, Degraded: m.applied.Degraded}
	res.Message = fmt.Sprintf("model already loaded (%s)", m.profile)
	if p != m.profile {
		res.Message += fmt.Sprintf("; requested %s ignored, unload first to switch", p)
		m.log.Info().Str("event", "ensure_profile_mismatch").Str("loaded", m.profile.String()).Str("requested", p.String()).Msg("manager")
	}
	return res
}

// load runs the loader and the profile plan. A panic in either is turned
// into an error and a partially loaded pipeline is closed.
func (m *Manager) load(ctx context.Context, p profile.Profile, path string) (pipe pipeline.Pipeline, applied profile.Applied, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during load: %v", r)
			if pipe != nil {
				_ = pipe.Close()
				pipe = nil
			}
		}
	}()
	if m.loader == nil {
		return nil, applied, fmt.Errorf("no pipeline loader configured")
	}
	pipe, err = m.loader.Load(ctx, path, p.LoadOptions(m.offloadDir))
	if err != nil {
		return nil, applied, err
	}
	opt, _ := pipe.(pipeline.Optimizer)
	applied, err = profile.Apply(ctx, p, opt)
	if err != nil {
		_ = pipe.Close()
		return nil, applied, err
	}
	return pipe, applied, nil
}
