package manager

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/wenc23/zimagetool/internal/pipeline"
)

// defaultDrainTimeout bounds how long Unload waits for in-flight borrows.
const defaultDrainTimeout = 30 * time.Second

// Config encapsulates all tunables for Manager construction.
type Config struct {
	Loader pipeline.Loader
	// OffloadDir receives weight segments under the minimal profile.
	OffloadDir   string
	DrainTimeout time.Duration
	Publisher    EventPublisher
	Logger       zerolog.Logger
}

// New constructs a Manager from Config.
func New(cfg Config) *Manager {
	m := &Manager{
		loader:       cfg.Loader,
		offloadDir:   cfg.OffloadDir,
		drainTimeout: cfg.DrainTimeout,
		publisher:    cfg.Publisher,
		log:          cfg.Logger.With().Str("component", "manager").Logger(),
		state:        StateUnloaded,
	}
	if m.drainTimeout <= 0 {
		m.drainTimeout = defaultDrainTimeout
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	return m
}
