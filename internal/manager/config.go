package manager

import (
	"time"

	"github.com/rs/zerolog"

	"llmcore/internal/backend"
	"llmcore/internal/locator"
	"llmcore/internal/metrics"
	"llmcore/internal/sysinfo"
)

// Locator resolves the model artifact path.
type Locator interface {
	Locate() (string, bool)
	Candidates() []string
}

// ManagerConfig encapsulates all dependencies for Manager construction.
type ManagerConfig struct {
	// Backend defaults to the llama.cpp backend with default options.
	Backend backend.Backend
	// Locator defaults to locator.New with default options.
	Locator Locator
	// Memory defaults to the host probe.
	Memory    sysinfo.Probe
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	Publisher EventPublisher
}

// NewWithConfig constructs a Manager from ManagerConfig. No backend work
// happens until the first GetOrLoad.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		backend:   cfg.Backend,
		locator:   cfg.Locator,
		mem:       cfg.Memory,
		log:       cfg.Logger.With().Str("component", "manager").Logger(),
		metrics:   cfg.Metrics,
		publisher: cfg.Publisher,
		state:     StateUnloaded,
	}
	if m.backend == nil {
		m.backend = backend.NewLlama(backend.Options{})
	}
	if m.locator == nil {
		m.locator = locator.New(locator.Options{Logger: cfg.Logger})
	}
	if m.mem == nil {
		m.mem = sysinfo.Host{}
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	m.startTime = time.Now()
	return m
}
