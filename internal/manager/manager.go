package manager

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wenc23/zimagetool/internal/pipeline"
	"github.com/wenc23/zimagetool/internal/profile"
)

// State is the lifecycle state of the model handle.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// lease wraps one loaded pipeline and counts its borrowers.
type lease struct {
	pipe pipeline.Pipeline
	wg   sync.WaitGroup
}

type Manager struct {
	loader       pipeline.Loader
	offloadDir   string
	drainTimeout time.Duration
	publisher    EventPublisher
	log          zerolog.Logger

	// opMu is held for the whole of a load or unload.
	opMu sync.Mutex

	// mu guards the fields below and is only held briefly.
	mu        sync.RWMutex
	state     State
	profile   profile.Profile
	applied   profile.Applied
	modelPath string
	lease     *lease
	loadedAt  time.Time
	loadDur   time.Duration
	lastErr   string
}

// Status is a point-in-time view of the manager.
type Status struct {
	State        State
	Profile      profile.Profile
	Degraded     bool
	Note         string
	ModelPath    string
	LoadedAt     time.Time
	LoadDuration time.Duration
	LastError    string
}

// IsLoaded reports whether a pipeline is loaded. It never waits for a load.
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateLoaded
}

// CurrentProfile returns the profile of the loaded pipeline.
func (m *Manager) CurrentProfile() (profile.Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateLoaded {
		return profile.Balanced, false
	}
	return m.profile, true
}

// Status returns a snapshot of the lifecycle state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Status{State: m.state, LastError: m.lastErr}
	if m.state == StateUnloaded {
		return st
	}
	st.Profile = m.profile
	st.ModelPath = m.modelPath
	if m.state == StateLoaded {
		st.Degraded = m.applied.Degraded
		st.Note = m.applied.Note
		st.LoadedAt = m.loadedAt
		st.LoadDuration = m.loadDur
	}
	return st
}

// Ready is an alias of IsLoaded for readiness probes.
func (m *Manager) Ready() bool { return m.IsLoaded() }
