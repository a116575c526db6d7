package manager

import "context"

// Warm starts loading the model in the background and returns immediately.
// Callers can poll Status to observe state transitions; errors are recorded
// there and retried by the next GetOrLoad.
func (m *Manager) Warm() {
	go func() {
		// Detached so the load outlives the caller that asked for it.
		_, _ = m.GetOrLoad(context.Background())
	}()
}
