// Package sysinfo reports host resources relevant to loading a model.
package sysinfo

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

// Memory is a point-in-time view of physical memory, in bytes.
type Memory struct {
	Total     uint64
	Available uint64
}

// Probe returns host memory statistics.
type Probe interface {
	Memory() (Memory, error)
}

// Host reads memory from the operating system.
type Host struct{}

func (Host) Memory() (Memory, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Memory{}, fmt.Errorf("virtual memory: %w", err)
	}
	return Memory{Total: vm.Total, Available: vm.Available}, nil
}

// Static returns fixed figures; used where the host must not be queried.
type Static Memory

func (s Static) Memory() (Memory, error) { return Memory(s), nil }

// Fits reports whether a file of size bytes fits in available memory. An
// unknown availability (zero) is treated as fitting.
func (m Memory) Fits(size int64) bool {
	if m.Available == 0 || size <= 0 {
		return true
	}
	return uint64(size) <= m.Available
}
