package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/randalmurphal/platformcore/pkg/platform/observability"
)

// EnvPrefix is the prefix for environment overrides, e.g. PLATFORM_POOL_WORKERS.
const EnvPrefix = "platform"

// EnvConfigPath names the variable holding an optional settings file path.
const EnvConfigPath = "PLATFORM_CONFIG"

// Sentinel errors for configuration.
var (
	// ErrUnsupportedFormat is returned by FromFile for unknown file extensions.
	ErrUnsupportedFormat = errors.New("unsupported config file extension")

	// ErrInvalidSettings is wrapped by every Validate failure.
	ErrInvalidSettings = errors.New("invalid settings")
)

// Settings is the runtime configuration for one pipeline process.
//
// Values are resolved in order: Defaults, then the settings file, then
// PLATFORM_* environment variables.
type Settings struct {
	LogLevel  string `split_words:"true"`
	LogFormat string `split_words:"true"`
	Sensor    SensorSettings
	Pool      PoolSettings
	Control   ControlSettings
	Telemetry TelemetrySettings
}

// SensorSettings configures the periodic sensor stage.
type SensorSettings struct {
	Name   string
	Period time.Duration
}

// PoolSettings configures the worker pool.
type PoolSettings struct {
	// Workers <= 0 means one worker per CPU.
	Workers       int
	QueueCapacity int `split_words:"true"`
}

// WorkerCount resolves Workers to a concrete positive count.
func (p PoolSettings) WorkerCount() int {
	if p.Workers <= 0 {
		return runtime.NumCPU()
	}
	return p.Workers
}

// ControlSettings configures the control law.
type ControlSettings struct {
	Gain float64
}

// TelemetrySettings toggles the OTel providers.
type TelemetrySettings struct {
	Metrics bool
	Tracing bool
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		LogLevel:  "info",
		LogFormat: observability.FormatText,
		Sensor: SensorSettings{
			Name:   "imu",
			Period: 50 * time.Millisecond,
		},
		Pool: PoolSettings{
			Workers:       0,
			QueueCapacity: 256,
		},
		Control: ControlSettings{
			Gain: 0.5,
		},
	}
}

// FromConfig overlays a decoded settings document on Defaults.
//
// Recognized keys:
//
//	log_level, log_format
//	sensor.name, sensor.period
//	pool.workers, pool.queue_capacity
//	control.gain
//	telemetry.metrics, telemetry.tracing
func FromConfig(cfg Config) Settings {
	s := Defaults()

	s.LogLevel = cfg.String("log_level", s.LogLevel)
	s.LogFormat = cfg.String("log_format", s.LogFormat)

	sensor := cfg.Section("sensor")
	s.Sensor.Name = sensor.String("name", s.Sensor.Name)
	s.Sensor.Period = sensor.Duration("period", s.Sensor.Period)

	pool := cfg.Section("pool")
	s.Pool.Workers = pool.Int("workers", s.Pool.Workers)
	s.Pool.QueueCapacity = pool.Int("queue_capacity", s.Pool.QueueCapacity)

	s.Control.Gain = cfg.Float("control.gain", s.Control.Gain)

	tel := cfg.Section("telemetry")
	s.Telemetry.Metrics = tel.Bool("metrics", s.Telemetry.Metrics)
	s.Telemetry.Tracing = tel.Bool("tracing", s.Telemetry.Tracing)

	return s
}

// Load builds validated Settings from an optional file and the environment.
// An empty path skips the file.
func Load(path string) (Settings, error) {
	s := Defaults()
	if path != "" {
		cfg, err := FromFile(path)
		if err != nil {
			return Settings{}, err
		}
		s = FromConfig(cfg)
	}

	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return Settings{}, fmt.Errorf("environment overrides: %w", err)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// LoadFromEnv is Load with the path taken from PLATFORM_CONFIG.
func LoadFromEnv() (Settings, error) {
	return Load(os.Getenv(EnvConfigPath))
}

// Validate reports the first invalid field, wrapped in ErrInvalidSettings.
func (s Settings) Validate() error {
	if _, err := observability.ParseLevel(s.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %w", ErrInvalidSettings, err)
	}
	switch strings.ToLower(s.LogFormat) {
	case observability.FormatText, observability.FormatJSON:
	default:
		return fmt.Errorf("%w: log_format %q (want text or json)", ErrInvalidSettings, s.LogFormat)
	}
	if strings.TrimSpace(s.Sensor.Name) == "" {
		return fmt.Errorf("%w: sensor.name is empty", ErrInvalidSettings)
	}
	if s.Sensor.Period <= 0 {
		return fmt.Errorf("%w: sensor.period must be positive, got %s", ErrInvalidSettings, s.Sensor.Period)
	}
	if s.Pool.Workers < 0 {
		return fmt.Errorf("%w: pool.workers must not be negative, got %d", ErrInvalidSettings, s.Pool.Workers)
	}
	if s.Pool.QueueCapacity < 0 {
		return fmt.Errorf("%w: pool.queue_capacity must not be negative, got %d", ErrInvalidSettings, s.Pool.QueueCapacity)
	}
	return nil
}
