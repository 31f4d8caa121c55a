package manager

import (
	"context"
	"fmt"
	"time"
)

// UnloadResult describes the outcome of Unload.
type UnloadResult struct {
	Message string
	// Drained is false when borrowers were still running at the deadline.
	Drained bool
}

// Unload releases the loaded pipeline.
//   - Safe when nothing is loaded (no-op).
//   - Returns ErrAlreadyLoading while a load is in flight.
//   - Switches to StateUnloaded at once so new borrows fail, then waits up to
//     the drain timeout for in-flight borrows before closing the pipeline.
func (m *Manager) Unload(ctx context.Context) (UnloadResult, error) {
	m.mu.RLock()
	st := m.state
	m.mu.RUnlock()
	switch st {
	case StateUnloaded:
		return UnloadResult{Message: "no model loaded", Drained: true}, nil
	case StateLoading:
		return UnloadResult{}, ErrAlreadyLoading
	}
	if !m.opMu.TryLock() {
		return UnloadResult{}, ErrAlreadyLoading
	}
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.state != StateLoaded {
		m.mu.Unlock()
		return UnloadResult{Message: "no model loaded", Drained: true}, nil
	}
	l := m.lease
	path := m.modelPath
	m.lease = nil
	m.state = StateUnloaded
	m.modelPath = ""
	m.mu.Unlock()
	modelLoaded.Set(0)
	m.publisher.Publish(Event{Name: "unload_start", ModelPath: path, Fields: map[string]any{}})

	drained := m.drain(ctx, l)
	if !drained {
		m.log.Warn().Str("event", "unload_timeout").Str("model", path).Msg("manager")
		m.publisher.Publish(Event{Name: "unload_timeout", ModelPath: path, Fields: map[string]any{}})
	}
	err := l.pipe.Close()
	m.log.Info().Str("event", "unload").Str("model", path).Bool("drained", drained).Err(err).Msg("manager")
	m.publisher.Publish(Event{Name: "unload", ModelPath: path, Fields: map[string]any{"drained": drained}})
	if err != nil {
		return UnloadResult{Message: "model unloaded with errors", Drained: drained}, fmt.Errorf("close pipeline: %w", err)
	}
	return UnloadResult{Message: "model unloaded", Drained: drained}, nil
}

func (m *Manager) drain(ctx context.Context, l *lease) bool {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	t := time.NewTimer(m.drainTimeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Close unloads the model on shutdown.
func (m *Manager) Close(ctx context.Context) error {
	_, err := m.Unload(ctx)
	return err
}
