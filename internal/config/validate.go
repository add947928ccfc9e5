package config

import (
	"fmt"
	"strings"
)

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDefaults(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if err := c.validateSupervisor(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ConfigDir) == "" {
		return fmt.Errorf("paths.config_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return fmt.Errorf("paths.state_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.RuntimeDir) == "" {
		return fmt.Errorf("paths.runtime_dir must not be empty")
	}
	return nil
}

func (c *Config) validateDefaults() error {
	if c.Defaults.Shell == "" {
		return fmt.Errorf("defaults.shell must not be empty")
	}
	if c.Defaults.Terminal == "" {
		return fmt.Errorf("defaults.terminal must not be empty")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if c.Events.BufferSize <= 0 {
		return fmt.Errorf("events.buffer_size must be positive, got %d", c.Events.BufferSize)
	}
	if c.Events.ReplayOnSubscribe <= 0 {
		return fmt.Errorf("events.replay_on_subscribe must be positive, got %d", c.Events.ReplayOnSubscribe)
	}
	if c.Events.SubscriberQueue <= 0 {
		return fmt.Errorf("events.subscriber_queue must be positive, got %d", c.Events.SubscriberQueue)
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	if c.Supervisor.StopTimeoutSeconds <= 0 {
		return fmt.Errorf("supervisor.stop_timeout_seconds must be positive, got %d", c.Supervisor.StopTimeoutSeconds)
	}
	if c.Supervisor.BackoffBaseSeconds <= 0 {
		return fmt.Errorf("supervisor.backoff_base_seconds must be positive, got %d", c.Supervisor.BackoffBaseSeconds)
	}
	if c.Supervisor.BackoffCapSeconds < c.Supervisor.BackoffBaseSeconds {
		return fmt.Errorf("supervisor.backoff_cap_seconds must be at least backoff_base_seconds")
	}
	if c.Supervisor.StabilitySeconds <= 0 {
		return fmt.Errorf("supervisor.stability_seconds must be positive, got %d", c.Supervisor.StabilitySeconds)
	}
	if c.Supervisor.MaxRestarts < 1 {
		return fmt.Errorf("supervisor.max_restarts must be at least 1, got %d", c.Supervisor.MaxRestarts)
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if c.Daemon.PersistIntervalSeconds <= 0 {
		return fmt.Errorf("daemon.persist_interval_seconds must be positive, got %d", c.Daemon.PersistIntervalSeconds)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
