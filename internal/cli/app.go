package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"llmcore/internal/backend"
	"llmcore/internal/config"
	"llmcore/internal/engine"
	"llmcore/internal/locator"
	"llmcore/internal/logging"
	"llmcore/internal/manager"
	"llmcore/internal/metrics"
	"llmcore/internal/sysinfo"
)

// shutdownTimeout bounds the wait for a running generation at exit.
const shutdownTimeout = 30 * time.Second

// app is the runtime composed for one CLI invocation.
type app struct {
	cfg config.Config
	log zerolog.Logger
	reg *prometheus.Registry
	mgr *manager.Manager
	svc *engine.Service
}

func newApp(cfg config.Config, b backend.Backend, stderr io.Writer) *app {
	log := logging.New(cfg.LogLevel, cfg.LogFormat, stderr)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	mx := metrics.New(reg)
	if b == nil {
		b = backend.NewLlama(backend.Options{LibraryPath: cfg.LibraryPath})
	}
	loc := locator.New(locator.Options{
		ModelPath:   cfg.ModelPath,
		ModelFile:   cfg.ModelFile,
		DataDir:     cfg.DataDir,
		ResourceDir: cfg.ResourceDir,
		DevPaths:    cfg.DevPaths,
		Logger:      logging.Component(log, "locator"),
	})
	mem := sysinfo.Host{}
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Backend:   b,
		Locator:   loc,
		Memory:    mem,
		Logger:    log,
		Metrics:   mx,
		Publisher: manager.NewLogPublisher(log),
	})
	svc := engine.New(engine.Options{
		Manager: mgr,
		Lister:  loc,
		Memory:  mem,
		Config:  cfg,
		Logger:  log,
		Metrics: mx,
	})
	return &app{cfg: cfg, log: log, reg: reg, mgr: mgr, svc: svc}
}

// close releases the model and writes the metrics textfile when configured.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := a.svc.Close(ctx)
	if a.cfg.MetricsFile != "" {
		if werr := metrics.WriteTextfile(a.cfg.MetricsFile, a.reg); werr != nil {
			a.log.Error().Err(werr).Str("path", a.cfg.MetricsFile).Msg("write metrics textfile")
			if err == nil {
				err = fmt.Errorf("write metrics: %w", werr)
			}
		}
	}
	return err
}
