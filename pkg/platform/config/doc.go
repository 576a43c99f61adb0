/*
Package config loads runtime settings for the platform pipeline.

# Documents

A settings document is YAML or JSON decoded into a Config, a read-only map
view with typed accessors. Keys may be dotted paths into nested maps:

	cfg, err := config.FromFile("platform.yaml")
	if err != nil {
	    return err
	}
	period := cfg.Duration("sensor.period", 50*time.Millisecond)
	pool := cfg.Section("pool")
	workers := pool.Int("workers", 0)

Every accessor returns its default when the key is missing or the value has
the wrong type. Durations accept Go duration strings ("20ms") or bare numbers
in milliseconds.

# Settings

Settings is the typed result. Load resolves it from Defaults, an optional
file, and PLATFORM_* environment variables, then validates:

	s, err := config.Load(os.Getenv(config.EnvConfigPath))

Environment variable names follow the struct layout:

	PLATFORM_LOG_LEVEL            debug | info | warn | error
	PLATFORM_LOG_FORMAT           text | json
	PLATFORM_SENSOR_NAME
	PLATFORM_SENSOR_PERIOD        Go duration, e.g. 20ms
	PLATFORM_POOL_WORKERS         0 means one per CPU
	PLATFORM_POOL_QUEUE_CAPACITY
	PLATFORM_CONTROL_GAIN
	PLATFORM_TELEMETRY_METRICS    true | false
	PLATFORM_TELEMETRY_TRACING    true | false

Validation failures wrap ErrInvalidSettings.

# Thread Safety

Config and Settings are safe for concurrent reads. Config does not copy the
map it wraps; callers must not modify it afterwards.
*/
package config
