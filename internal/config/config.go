// Package config loads scheduler tunables with viper: config file with
// environment-variable overrides and sane defaults, so Load never fails
// just because no config file exists.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of the scheduler runtime.
type Config struct {
	Scheduler SchedulerConfig
	LogLevel  string
	LogPretty bool
}

// SchedulerConfig controls the worker pool the scheduler singleton starts.
type SchedulerConfig struct {
	// WorkerCount is the number of worker contexts to run. Zero means
	// "use available hardware parallelism, with a minimum of 2".
	WorkerCount int

	// DefaultStackHint is recorded on every routine spawned without an
	// explicit stack size and surfaced in logs/diagnostics; Go goroutines
	// grow their own stacks, so it has no effect on allocation.
	DefaultStackHint int

	// ShutdownTimeout bounds how long Shutdown waits for worker goroutines
	// to drain before returning anyway.
	ShutdownTimeout time.Duration

	// MetricsEnabled controls whether the scheduler updates the
	// internal/metrics gauges: the active-context count at startup, the
	// ready-queue depth on every dequeue, and the periodic suspended-depth
	// scan. Counters and the park-latency histogram are always updated.
	MetricsEnabled bool
}

// Load reads configuration from a file named config in ., ./config or
// /etc/routines (its content is always parsed as YAML, whatever the
// extension), falling back to defaults and environment
// variable overrides (ROUTINES_SCHEDULER_WORKERCOUNT, etc.) for anything
// not present in a file. A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/routines")

	v.SetEnvPrefix("ROUTINES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
	}

	cfg := &Config{
		LogLevel:  v.GetString("loglevel"),
		LogPretty: v.GetBool("logpretty"),
		Scheduler: SchedulerConfig{
			WorkerCount:      v.GetInt("scheduler.workercount"),
			DefaultStackHint: v.GetInt("scheduler.defaultstackhint"),
			ShutdownTimeout:  v.GetDuration("scheduler.shutdowntimeout"),
			MetricsEnabled:   v.GetBool("scheduler.metricsenabled"),
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("loglevel", "info")
	v.SetDefault("logpretty", true)
	v.SetDefault("scheduler.workercount", 0)
	v.SetDefault("scheduler.defaultstackhint", 1<<20)
	v.SetDefault("scheduler.shutdowntimeout", 10*time.Second)
	v.SetDefault("scheduler.metricsenabled", true)
}
