package manager

import (
	"context"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"llmcore/internal/backend"
	"llmcore/internal/llmerr"
	"llmcore/internal/metrics"
)

const loadKey = "model"

// GetOrLoad returns the shared instance, loading the model on first use.
// Concurrent first callers share a single load. A failed load is not
// remembered; the next call tries again. ctx bounds only the wait, an
// in-progress load runs to completion for the callers that remain.
func (m *Manager) GetOrLoad(ctx context.Context) (*SharedInstance, error) {
	m.mu.RLock()
	inst, closed := m.inst, m.closed
	m.mu.RUnlock()
	if inst != nil {
		return inst, nil
	}
	if closed {
		return nil, ErrClosed
	}

	ch := m.loads.DoChan(loadKey, func() (any, error) { return m.load() })
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*SharedInstance), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) load() (*SharedInstance, error) {
	m.mu.Lock()
	if m.inst != nil {
		inst := m.inst
		m.mu.Unlock()
		return inst, nil
	}
	m.state = StateLoading
	m.err = ""
	m.attempts++
	attempt := m.attempts
	m.mu.Unlock()

	start := time.Now()
	m.log.Info().Str("event", EventLoadStart).Uint64("attempt", attempt).Msg("loading model")
	m.publish(Event{Name: EventLoadStart, Fields: map[string]any{"attempt": attempt}})

	if err := m.initBackend(); err != nil {
		return nil, m.fail("", llmerr.New(llmerr.KindBackendInit, "initialize backend", err), start)
	}

	path, ok := m.locator.Locate()
	if !ok {
		err := llmerr.Newf(llmerr.KindModelNotFound, "locate model",
			"no model file at any of: %s", strings.Join(m.locator.Candidates(), ", "))
		return nil, m.fail("", err, start)
	}
	name := displayName(path)
	size := fileSize(path)
	m.checkMemory(name, size)

	mdl, err := m.backend.LoadModel(path, backend.LoadOptions{GPULayers: backend.AllGPULayers})
	if err != nil {
		return nil, m.fail(name, llmerr.New(llmerr.KindModelLoad, "load "+path, err), start)
	}
	if mdl == nil {
		return nil, m.fail(name, llmerr.Newf(llmerr.KindModelLoad, "load "+path, "backend returned no model"), start)
	}

	inst := newSharedInstance(name, path, size, mdl, m.metrics)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = mdl.Close()
		return nil, m.fail(name, ErrClosed, start)
	}
	m.inst = inst
	m.state = StateReady
	m.err = ""
	m.mu.Unlock()

	dur := time.Since(start)
	m.metrics.ObserveLoad(metrics.LoadOK, size, dur)
	m.log.Info().
		Str("event", EventLoadReady).
		Str("model", name).
		Str("path", path).
		Str("size", humanize.IBytes(uint64(size))).
		Dur("dur", dur).
		Msg("model loaded")
	m.publish(Event{Name: EventLoadReady, Model: name, Fields: map[string]any{
		"path":    path,
		"size":    size,
		"dur_ms":  dur.Milliseconds(),
		"attempt": attempt,
	}})
	return inst, nil
}

// initBackend runs backend initialization until it first succeeds.
func (m *Manager) initBackend() error {
	m.mu.RLock()
	done := m.inited
	m.mu.RUnlock()
	if done {
		return nil
	}
	if err := m.backend.Init(); err != nil {
		return err
	}
	m.mu.Lock()
	m.inited = true
	m.mu.Unlock()
	return nil
}

func (m *Manager) checkMemory(name string, size int64) {
	mem, err := m.mem.Memory()
	if err != nil {
		m.log.Debug().Err(err).Msg("memory probe failed")
		return
	}
	if !mem.Fits(size) {
		m.log.Warn().
			Str("event", "load_memory_pressure").
			Str("model", name).
			Str("size", humanize.IBytes(uint64(size))).
			Str("available", humanize.IBytes(mem.Available)).
			Msg("model file is larger than available memory")
	}
}

// fail records err as the last error, leaves no instance behind and
// reports it through logs, events and metrics.
func (m *Manager) fail(name string, err error, start time.Time) error {
	m.mu.Lock()
	if m.closed {
		m.state = StateUnloaded
	} else {
		m.state = StateError
	}
	m.err = err.Error()
	m.mu.Unlock()

	outcome, event := metrics.LoadError, EventLoadError
	if llmerr.IsModelNotFound(err) {
		outcome, event = metrics.LoadNotFound, EventModelNotFound
	}
	m.metrics.ObserveLoad(outcome, 0, time.Since(start))
	m.log.Error().Err(err).Str("event", event).Str("model", name).Msg("model load failed")
	m.publish(Event{Name: event, Model: name, Fields: map[string]any{"error": err.Error()}})
	return err
}
