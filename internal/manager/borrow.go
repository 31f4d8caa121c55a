package manager

import (
	"github.com/wenc23/zimagetool/internal/pipeline"
	"github.com/wenc23/zimagetool/internal/profile"
)

// Handle is temporary access to the loaded pipeline. It must not be kept
// after the borrowing function returns.
type Handle struct {
	pipeline.Pipeline
	Profile   profile.Profile
	Degraded  bool
	ModelPath string
}

// WithHandle runs fn with the loaded pipeline, or returns ErrNotLoaded.
// The pipeline is not closed before fn returns, even if Unload runs
// concurrently, unless the borrow outlives the drain timeout.
func (m *Manager) WithHandle(fn func(Handle) error) error {
	m.mu.RLock()
	if m.state != StateLoaded || m.lease == nil {
		m.mu.RUnlock()
		return ErrNotLoaded
	}
	l := m.lease
	h := Handle{Pipeline: l.pipe, Profile: m.profile, Degraded: m.applied.Degraded, ModelPath: m.modelPath}
	l.wg.Add(1)
	m.mu.RUnlock()
	defer l.wg.Done()
	return fn(h)
}

// Borrow is WithHandle for functions that produce a value.
func Borrow[T any](m *Manager, fn func(Handle) (T, error)) (T, error) {
	var out T
	err := m.WithHandle(func(h Handle) error {
		var err error
		out, err = fn(h)
		return err
	})
	return out, err
}
