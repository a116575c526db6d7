package manager

import "context"

// Close waits for the in-flight generation, if any, to finish and frees the
// model. ctx bounds that wait. After Close every GetOrLoad returns ErrClosed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	inst := m.inst
	m.mu.Unlock()
	if inst == nil {
		return nil
	}

	select {
	case inst.genCh <- struct{}{}:
	case <-ctx.Done():
		m.log.Warn().Str("event", "unload_timeout").Str("model", inst.Name).Msg("generation still running")
		return ctx.Err()
	}
	defer func() { <-inst.genCh }()
	if inst.freed {
		return nil
	}
	inst.freed = true

	m.mu.Lock()
	m.inst = nil
	m.state = StateUnloaded
	m.mu.Unlock()

	err := inst.model.Close()
	m.metrics.ModelUnloaded()
	m.log.Info().Str("event", EventUnloadDone).Str("model", inst.Name).Msg("model released")
	m.publish(Event{Name: EventUnloadDone, Model: inst.Name})
	return err
}
