// Package app wires every control-core package into one Components
// bundle: a single place that loads config, constructs the hardware
// stack, and returns the fully assembled dependency graph so
// cmd/enosectl and any future entry point (a test harness, an HTTP
// front end) build it identically instead of duplicating wiring.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/enose-rig/enosectl/internal/actuator"
	"github.com/enose-rig/enosectl/internal/cancel"
	"github.com/enose-rig/enosectl/internal/dispatch"
	"github.com/enose-rig/enosectl/internal/events"
	"github.com/enose-rig/enosectl/internal/executor"
	"github.com/enose-rig/enosectl/internal/hwstate"
	"github.com/enose-rig/enosectl/internal/logging"
	"github.com/enose-rig/enosectl/internal/persistence"
	"github.com/enose-rig/enosectl/internal/primitives"
	"github.com/enose-rig/enosectl/internal/program"
	"github.com/enose-rig/enosectl/internal/rigconfig"
	"github.com/enose-rig/enosectl/internal/scheduler"
	"github.com/enose-rig/enosectl/internal/sensor"
	"github.com/enose-rig/enosectl/internal/sweep"
	"github.com/enose-rig/enosectl/internal/telemetry"
	"github.com/enose-rig/enosectl/internal/validator"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Components bundles the assembled control core so the CLI, a future
// HTTP front end, or a test harness can all build the same graph from
// the same entry point.
type Components struct {
	Config   *rigconfig.RigConfig
	Logger   *logging.Logger
	Emitter  events.Emitter
	Rig      *hwstate.Rig
	Registry *executor.Registry
	Cancel   *cancel.Token
	Dispatch *dispatch.Dispatcher
	Sched    *scheduler.Scheduler
	Validate *validator.Validator
	Sweep    *sweep.Controller
	Metrics  *telemetry.Metrics
	Tracer   *sdktrace.TracerProvider
	Store    *persistence.Store

	cfgWatcher *rigconfig.Watcher
}

// ConfigPathFinder locates the rig's config.yaml: a flag wins, then the
// directory next to the running binary (autonomous-deployment
// default), then a bare "config.yaml" in the working directory.
type ConfigPathFinder struct {
	ConfigFlag string
}

// FindConfigPath resolves the config path per the priority above.
func (f ConfigPathFinder) FindConfigPath() string {
	if f.ConfigFlag != "" {
		return f.ConfigFlag
	}
	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return "config.yaml"
}

// Options tunes Initialize for contexts that don't want every
// collaborator (e.g. a validate-only invocation skips the actuator
// driver and persistence entirely).
type Options struct {
	ConfigPath   string
	Driver       actuator.Driver     // nil uses an in-memory fake (dry run / validate-only)
	LoadCell     sensor.LoadCell     // nil uses an in-memory fake
	Heater       sensor.HeaterCycleCounter
	PersistPath  string // "" disables persistence
	WatchConfig  bool
}

// Initialize loads config and constructs the full Components graph.
// Callers own the returned Components' lifetime and should call Close
// when done.
func Initialize(opts Options) (*Components, error) {
	cfg, err := rigconfig.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load rig config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Dir)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	emitter := events.NewChanEmitter(256)

	driver := opts.Driver
	if driver == nil {
		driver = &fakeDriver{}
	}
	limited := actuator.NewLimiter(driver, cfg.Actuator.RatePerSec, cfg.Actuator.Burst)
	rig := hwstate.New(limited, emitter, logger)

	loadCell := opts.LoadCell
	if loadCell == nil {
		loadCell = &sensor.Fake{Stable: true}
	}
	heater := opts.Heater
	if heater == nil {
		if fake, ok := loadCell.(*sensor.Fake); ok {
			heater = fake
		} else {
			heater = &sensor.Fake{}
		}
	}

	hw := cfg.HardwareConstraints()
	reg := executor.NewRegistry()
	tok := cancel.NewToken()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	tracer := telemetry.NewTracerProvider(cfg.Telemetry.ServiceName)

	d := &dispatch.Dispatcher{Registry: reg, Emitter: emitter, Logger: logger, Cancel: tok, Metrics: metrics, Tracer: tracer.Tracer("enosectl")}

	deps := primitives.Deps{
		Rig:      rig,
		LoadCell: loadCell,
		Heater:   heater,
		Hardware: hw,
		Emitter:  emitter,
		Logger:   logger,
		Registry: reg,
		Cancel:   tok,
		Volume:   cfg.VolumeConverter(),
		Dispatch: d.AsFunc(),
		EmptyWeight: &primitives.EmptyWeightTracker{},
	}
	primitives.RegisterAll(reg, deps)

	sched := scheduler.New(d, tok, logger,
		func() program.ActivityState { return rig.Snapshot().Activity },
		func(ctx context.Context) { rig.ForceActivity(ctx, program.ActivityIdle) },
	)
	sched.Metrics = metrics
	v := validator.New(hw, reg)
	sc := sweep.New(sweepCallbacks(rig, loadCell, cfg.VolumeConverter(), deps.EmptyWeight), emitter, logger)
	sc.Metrics = metrics

	var store *persistence.Store
	if opts.PersistPath != "" {
		store, err = persistence.Open(opts.PersistPath)
		if err != nil {
			return nil, fmt.Errorf("open persistence store: %w", err)
		}
	}

	c := &Components{
		Config: cfg, Logger: logger, Emitter: emitter, Rig: rig,
		Registry: reg, Cancel: tok, Dispatch: d, Sched: sched,
		Validate: v, Sweep: sc, Metrics: metrics, Tracer: tracer, Store: store,
	}

	if opts.WatchConfig {
		w, err := rigconfig.Watch(opts.ConfigPath, func(newCfg *rigconfig.RigConfig, err error) {
			if err != nil {
				logger.Error("config reload failed", "error", err)
				return
			}
			c.Config = newCfg
		}, logger)
		if err != nil {
			logger.Warn("config hot-reload unavailable", "error", err)
		} else {
			c.cfgWatcher = w
		}
	}

	return c, nil
}

// Close releases every collaborator that owns an OS resource.
func (c *Components) Close() {
	if c.cfgWatcher != nil {
		c.cfgWatcher.Close()
	}
	if c.Store != nil {
		c.Store.Close()
	}
	c.Emitter.Close()
	c.Logger.Close()
}

// fakeDriver accepts every command and discards it, used when no real
// actuator driver is wired (dry-run validation, local testing).
type fakeDriver struct{}

func (fakeDriver) SendCommand(ctx context.Context, line string) error {
	return nil
}
