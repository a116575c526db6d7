package manager

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"llmcore/internal/backend"
	"llmcore/internal/metrics"
	"llmcore/internal/sysinfo"
)

type Manager struct {
	mu        sync.RWMutex
	state     State
	inst      *SharedInstance
	err       string
	attempts  uint64
	inited    bool
	closed    bool
	startTime time.Time

	loads singleflight.Group

	backend   backend.Backend
	locator   Locator
	mem       sysinfo.Probe
	log       zerolog.Logger
	metrics   *metrics.Metrics
	publisher EventPublisher
}

// New constructs a Manager over b and loc with default logging and no metrics.
func New(b backend.Backend, loc Locator) *Manager {
	// Delegate to NewWithConfig to centralize defaults
	return NewWithConfig(ManagerConfig{Backend: b, Locator: loc})
}

// Ready reports whether the model is loaded.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady && m.inst != nil
}

// SetEventPublisher replaces the event sink; nil restores the no-op sink.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	m.mu.Lock()
	m.publisher = p
	m.mu.Unlock()
}

func (m *Manager) publish(e Event) {
	m.mu.RLock()
	p := m.publisher
	m.mu.RUnlock()
	if e.Fields == nil {
		e.Fields = map[string]any{}
	}
	p.Publish(e)
}
