package manager

import (
	"time"

	"llmcore/pkg/types"
)

// Snapshot returns a read-only view of the manager state. It never loads.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{State: m.state, Err: m.err, LoadAttempts: m.attempts}
	if m.inst != nil {
		s.CurrentModel = m.inst.info()
		s.Busy = m.inst.Busy()
	}
	return s
}

// Status builds the manager's part of the status report.
func (m *Manager) Status() types.StatusResponse {
	s := m.Snapshot()
	m.mu.RLock()
	started := m.startTime
	m.mu.RUnlock()
	resp := types.StatusResponse{
		State:         string(s.State),
		LastError:     s.Err,
		LoadAttempts:  s.LoadAttempts,
		Busy:          s.Busy,
		UptimeSeconds: int64(time.Since(started) / time.Second),
	}
	if s.CurrentModel != nil {
		resp.ModelName = s.CurrentModel.Name
		resp.ModelPath = s.CurrentModel.Path
		resp.ModelSizeBytes = s.CurrentModel.SizeBytes
	}
	return resp
}
