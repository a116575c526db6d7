package manager

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
)

// ggufMagic opens every GGUF file.
var ggufMagic = []byte("GGUF")

// PreflightCheck is the outcome of one preflight probe.
type PreflightCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Preflight inspects the model artifact without loading it or touching the
// backend. It does not mutate state and is safe to call at any time.
func (m *Manager) Preflight() []PreflightCheck {
	var checks []PreflightCheck
	path, ok := m.locator.Locate()
	if !ok {
		return append(checks, PreflightCheck{
			Name:    "model_located",
			Message: fmt.Sprintf("searched %d locations", len(m.locator.Candidates())),
		})
	}
	checks = append(checks, PreflightCheck{Name: "model_located", OK: true, Message: path})

	f, err := os.Open(path)
	if err != nil {
		return append(checks, PreflightCheck{Name: "model_readable", Message: err.Error()})
	}
	defer f.Close()
	checks = append(checks, PreflightCheck{Name: "model_readable", OK: true})

	head := make([]byte, len(ggufMagic))
	if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, ggufMagic) {
		checks = append(checks, PreflightCheck{Name: "model_gguf_magic", Message: "file does not start with GGUF magic"})
	} else {
		checks = append(checks, PreflightCheck{Name: "model_gguf_magic", OK: true})
	}

	size := fileSize(path)
	mem, err := m.mem.Memory()
	switch {
	case err != nil:
		checks = append(checks, PreflightCheck{Name: "memory_fits", OK: true, Message: "memory unknown: " + err.Error()})
	case mem.Fits(size):
		checks = append(checks, PreflightCheck{Name: "memory_fits", OK: true,
			Message: fmt.Sprintf("%s of %s available", humanize.IBytes(uint64(size)), humanize.IBytes(mem.Available))})
	default:
		checks = append(checks, PreflightCheck{Name: "memory_fits",
			Message: fmt.Sprintf("model is %s, only %s available", humanize.IBytes(uint64(size)), humanize.IBytes(mem.Available))})
	}
	return checks
}

// PreflightOK reports whether every check passed.
func PreflightOK(checks []PreflightCheck) bool {
	for _, c := range checks {
		if !c.OK {
			return false
		}
	}
	return len(checks) > 0
}
