package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"llmcore/internal/backend/backendtest"
	"llmcore/internal/locator"
	"llmcore/internal/metrics"
	"llmcore/internal/sysinfo"
)

const testModelFile = "tiny-chat-q4.gguf"

// createModelFile writes a file of size bytes and returns its path.
func createModelFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

// testEnv bundles a manager wired to fakes and a temp model directory.
type testEnv struct {
	m        *Manager
	backend  *backendtest.Backend
	pub      *MemoryPublisher
	metrics  *metrics.Metrics
	reg      *prometheus.Registry
	modelDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	loc := locator.New(locator.Options{
		ModelFile:   testModelFile,
		DataDir:     filepath.Join(root, "data"),
		ResourceDir: filepath.Join(root, "res"),
		DevPaths:    []string{filepath.Join(root, "dev")},
	})
	reg := prometheus.NewRegistry()
	env := &testEnv{
		backend:  backendtest.New(),
		pub:      NewMemoryPublisher(),
		metrics:  metrics.New(reg),
		reg:      reg,
		modelDir: filepath.Join(root, "data", "models"),
	}
	env.m = NewWithConfig(ManagerConfig{
		Backend:   env.backend,
		Locator:   loc,
		Memory:    sysinfo.Static{Total: 1 << 30, Available: 1 << 30},
		Metrics:   env.metrics,
		Publisher: env.pub,
	})
	return env
}

// installModel places the model artifact where the locator finds it.
func (e *testEnv) installModel(t *testing.T) string {
	t.Helper()
	return createModelFile(t, e.modelDir, testModelFile, 2048)
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
