// Package rigconfig loads the rig's YAML configuration and watches it
// for changes: a root struct mirroring the config file's shape,
// environment variable expansion before parsing, and a validate() pass
// over the fields that matter operationally.
package rigconfig

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/enose-rig/enosectl/internal/calibration"
	"github.com/enose-rig/enosectl/internal/logging"
	"github.com/enose-rig/enosectl/internal/program"
)

// RigConfig is the root configuration structure, mirroring the rig's
// config.yaml.
type RigConfig struct {
	Hardware  HardwareConfig  `yaml:"hardware"`
	Drain     DrainConfig     `yaml:"drain"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Actuator  ActuatorConfig  `yaml:"actuator"`
}

// LiquidConfig is one entry of the hardware's liquid inventory.
type LiquidConfig struct {
	ID            string  `yaml:"id"`
	Name          string  `yaml:"name"`
	PumpIndex     int     `yaml:"pump_index"`
	Type          string  `yaml:"type"` // "rinse", "sample", "calibration"
	AvailableML   float64 `yaml:"available_ml"`
	DensityGPerML float64 `yaml:"density_g_per_ml"`
}

// HardwareConfig is the rig's static hardware constraints plus the
// linear volume-to-distance calibration constant.
type HardwareConfig struct {
	BottleCapacityML float64        `yaml:"bottle_capacity_ml"`
	MaxFillML        float64        `yaml:"max_fill_ml"`
	MaxGasPumpPWM    float64        `yaml:"max_gas_pump_pwm"`
	MMPerML          float64        `yaml:"mm_per_ml"`
	Liquids          []LiquidConfig `yaml:"liquids"`
}

// DrainConfig holds empty-weight settling parameters. The Drain and Wait
// primitives do not read it; they use the fixed constants in drain.go.
type DrainConfig struct {
	ToleranceG float64 `yaml:"tolerance_g"`
	WindowS    float64 `yaml:"window_s"`
}

// SweepConfig tunes the default sweep controller behavior.
type SweepConfig struct {
	ResetEmptyWeightBetweenRuns bool `yaml:"reset_empty_weight_between_runs"`
}

// TelemetryConfig configures the Prometheus/OpenTelemetry exporters.
type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	MetricsAddr    string `yaml:"metrics_addr"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	ServiceName    string `yaml:"service_name"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Dir string `yaml:"dir"`
}

// ActuatorConfig tunes the actuator command rate limiter.
type ActuatorConfig struct {
	RatePerSec float64 `yaml:"rate_per_sec"`
	Burst      int     `yaml:"burst"`
}

// Load reads path, expands ${VAR}/$VAR environment references, parses
// the YAML, and validates the result.
func Load(path string) (*RigConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("rig config not found at %s", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rig config: %w", err)
	}

	expanded := os.ExpandEnv(string(raw))

	var cfg RigConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse rig config yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("rig config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *RigConfig) validate() error {
	if c.Hardware.BottleCapacityML <= 0 {
		return fmt.Errorf("hardware.bottle_capacity_ml is required")
	}
	if c.Hardware.MaxFillML <= 0 {
		return fmt.Errorf("hardware.max_fill_ml is required")
	}
	if c.Hardware.MaxFillML > c.Hardware.BottleCapacityML {
		return fmt.Errorf("hardware.max_fill_ml (%.2f) exceeds bottle_capacity_ml (%.2f)", c.Hardware.MaxFillML, c.Hardware.BottleCapacityML)
	}
	if c.Hardware.MMPerML <= 0 {
		return fmt.Errorf("hardware.mm_per_ml is required")
	}
	seen := make(map[int]bool, len(c.Hardware.Liquids))
	for _, l := range c.Hardware.Liquids {
		if l.PumpIndex < 0 || l.PumpIndex >= program.PumpCount {
			return fmt.Errorf("liquid %q has out-of-range pump_index %d", l.ID, l.PumpIndex)
		}
		if seen[l.PumpIndex] {
			return fmt.Errorf("pump_index %d is assigned to more than one liquid", l.PumpIndex)
		}
		seen[l.PumpIndex] = true
	}
	if c.Drain.ToleranceG <= 0 {
		c.Drain.ToleranceG = 0.5
	}
	if c.Drain.WindowS <= 0 {
		c.Drain.WindowS = 2.0
	}
	return nil
}

// HardwareConstraints converts the YAML hardware section into the
// program package's runtime type.
func (c *RigConfig) HardwareConstraints() *program.HardwareConstraints {
	hw := &program.HardwareConstraints{
		BottleCapacityML: c.Hardware.BottleCapacityML,
		MaxFillML:        c.Hardware.MaxFillML,
		MaxGasPumpPWM:    c.Hardware.MaxGasPumpPWM,
	}
	for _, l := range c.Hardware.Liquids {
		hw.Liquids = append(hw.Liquids, program.LiquidInventory{
			ID:            l.ID,
			Name:          l.Name,
			PumpIndex:     l.PumpIndex,
			Type:          liquidType(l.Type),
			AvailableML:   l.AvailableML,
			DensityGPerML: l.DensityGPerML,
		})
	}
	return hw
}

func liquidType(s string) program.LiquidType {
	switch s {
	case "rinse":
		return program.LiquidRinse
	case "sample":
		return program.LiquidSample
	case "calibration":
		return program.LiquidCalibration
	default:
		return program.LiquidUnspecified
	}
}

// VolumeConverter returns the linear calibration.VolumeToDistance this
// config implies.
func (c *RigConfig) VolumeConverter() calibration.VolumeToDistance {
	return calibration.Linear{MMPerML: c.Hardware.MMPerML}
}

// Watcher reloads a RigConfig from disk whenever it changes on disk,
// using fsnotify-style file watching for
// hot-reloadable application settings.
type Watcher struct {
	fsw    *fsnotify.Watcher
	path   string
	logger *logging.Logger
}

// Watch starts watching the config file at path and invokes onReload
// with the freshly parsed config, or the error if the reload failed, on
// every write or create event.
func Watch(path string, onReload func(*RigConfig, error), logger *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch config path: %w", err)
	}

	w := &Watcher{fsw: fsw, path: path, logger: logger}

	go func() {
		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Error("rig config reload failed", "path", path, "error", err)
				} else {
					logger.Info("rig config reloaded", "path", path)
				}
				onReload(cfg, err)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				logger.Error("rig config watcher error", "error", err)
			}
		}
	}()

	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }
