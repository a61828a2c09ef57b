package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" envDefault:"dev"`
	APIAddr   string `env:"API_ADDR" envDefault:":8130"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	Tick               time.Duration `env:"TICK_INTERVAL" envDefault:"200ms"`
	WheelSize          int           `env:"WHEEL_SIZE" envDefault:"60"`
	Lease              time.Duration `env:"LEASE_DURATION" envDefault:"3500ms"`
	EventLimit         int           `env:"EVENT_LIMIT" envDefault:"220"`
	ExecutionLimit     int           `env:"EXECUTION_LIMIT" envDefault:"220"`
	MaxDispatchPerTick int           `env:"MAX_DISPATCH_PER_TICK" envDefault:"6"`
	ShardCount         int           `env:"SHARD_COUNT" envDefault:"3"`
	ShardHash          string        `env:"SHARD_HASH" envDefault:"sum"`
	Assignment         string        `env:"ASSIGNMENT" envDefault:"modulo"`

	RetryStrategy   string        `env:"RETRY_STRATEGY" envDefault:"constant"`
	RetryBackoff    time.Duration `env:"RETRY_BACKOFF" envDefault:"2s"`
	RetryBackoffMax time.Duration `env:"RETRY_BACKOFF_MAX" envDefault:"1m"`
	LeaseRetryDelay time.Duration `env:"LEASE_RETRY_DELAY" envDefault:"1s"`

	DefaultMaxAttempts int     `env:"DEFAULT_MAX_ATTEMPTS" envDefault:"3"`
	DefaultFailureRate float64 `env:"DEFAULT_FAILURE_RATE" envDefault:"0.12"`

	SimMinLatency time.Duration `env:"SIM_MIN_LATENCY" envDefault:"400ms"`
	SimMaxLatency time.Duration `env:"SIM_MAX_LATENCY" envDefault:"1200ms"`
	SimCrashRate  float64       `env:"SIM_CRASH_RATE" envDefault:"0"`

	DemoNodes         []string `env:"DEMO_NODES" envSeparator:","`
	HeartbeatSchedule string   `env:"HEARTBEAT_SCHEDULE" envDefault:"@every 1s"`

	SubmitRate  float64 `env:"SUBMIT_RATE" envDefault:"0"`
	SubmitBurst int     `env:"SUBMIT_BURST" envDefault:"10"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisStream   string `env:"REDIS_STREAM" envDefault:"wheelsched:events"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
	SinkBuffer    int    `env:"SINK_BUFFER" envDefault:"1024"`
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads the configuration from the given variables only.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects values the scheduler cannot run with.
func (c Config) Validate() error {
	var err error
	check := func(ok bool, msg string) {
		if !ok {
			err = multierr.Append(err, errors.New(msg))
		}
	}
	check(c.Tick > 0, "TICK_INTERVAL must be positive")
	check(c.WheelSize > 0, "WHEEL_SIZE must be positive")
	check(c.Lease > 0, "LEASE_DURATION must be positive")
	check(c.EventLimit > 0, "EVENT_LIMIT must be positive")
	check(c.ExecutionLimit > 0, "EXECUTION_LIMIT must be positive")
	check(c.MaxDispatchPerTick > 0, "MAX_DISPATCH_PER_TICK must be positive")
	check(c.ShardCount > 0, "SHARD_COUNT must be positive")
	check(c.DefaultMaxAttempts > 0, "DEFAULT_MAX_ATTEMPTS must be positive")
	check(c.DefaultFailureRate >= 0 && c.DefaultFailureRate <= 1, "DEFAULT_FAILURE_RATE must be within [0,1]")
	check(c.SimCrashRate >= 0 && c.SimCrashRate <= 1, "SIM_CRASH_RATE must be within [0,1]")
	check(c.SimMinLatency >= 0 && c.SimMaxLatency >= c.SimMinLatency, "SIM_MAX_LATENCY must not be below SIM_MIN_LATENCY")
	check(c.SubmitRate >= 0, "SUBMIT_RATE must not be negative")
	if err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}
