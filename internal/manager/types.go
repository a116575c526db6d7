package manager

import (
	"time"

	"llmcore/internal/backend"
	"llmcore/internal/metrics"
	"llmcore/internal/tokenizer"
)

// State represents lifecycle state of the manager.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateError    State = "error"
)

// ModelInfo is a minimal view of the loaded model.
type ModelInfo struct {
	Name      string
	Path      string
	SizeBytes int64
	LoadedAt  time.Time
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State        State
	CurrentModel *ModelInfo
	Err          string
	LoadAttempts uint64
	Busy         bool
}

// SharedInstance is the loaded model shared by all callers. Generation must
// hold the slot obtained from Acquire for its whole duration.
type SharedInstance struct {
	Name      string
	Path      string
	SizeBytes int64
	LoadedAt  time.Time

	model backend.Model
	tok   *tokenizer.Adapter
	// genCh has capacity 1: single in-flight generation.
	genCh   chan struct{}
	freed   bool // guarded by genCh
	metrics *metrics.Metrics
}

func newSharedInstance(name, path string, size int64, mdl backend.Model, mx *metrics.Metrics) *SharedInstance {
	return &SharedInstance{
		Name:      name,
		Path:      path,
		SizeBytes: size,
		LoadedAt:  time.Now(),
		model:     mdl,
		tok:       tokenizer.New(mdl),
		genCh:     make(chan struct{}, 1),
		metrics:   mx,
	}
}

// Model returns the backend model. Callers must hold the slot.
func (s *SharedInstance) Model() backend.Model { return s.model }

// Tokenizer returns the adapter bound to the model's vocabulary.
func (s *SharedInstance) Tokenizer() *tokenizer.Adapter { return s.tok }

func (s *SharedInstance) info() *ModelInfo {
	return &ModelInfo{Name: s.Name, Path: s.Path, SizeBytes: s.SizeBytes, LoadedAt: s.LoadedAt}
}
