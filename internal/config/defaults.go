package config

import "drift/internal/paths"

const (
	defaultTerminal = "ghostty"
	defaultEditor   = "nvim"
	defaultShell    = "zsh"

	defaultBufferSize        = 200
	defaultReplayOnSubscribe = 20
	defaultSubscriberQueue   = 64

	defaultStopTimeoutSeconds = 5
	defaultBackoffBaseSeconds = 1
	defaultBackoffCapSeconds  = 30
	defaultStabilitySeconds   = 5
	defaultMaxRestarts        = 10

	defaultPersistIntervalSeconds = 5
)

// Default returns a fully populated configuration.
func Default() Config {
	return Config{
		Paths: Paths{
			ConfigDir:  paths.DefaultConfigDir(),
			StateDir:   paths.DefaultStateDir(),
			RuntimeDir: paths.DefaultRuntimeDir(),
		},
		Defaults: Defaults{
			Terminal: defaultTerminal,
			Editor:   defaultEditor,
			Shell:    defaultShell,
		},
		Events: Events{
			BufferSize:        defaultBufferSize,
			ReplayOnSubscribe: defaultReplayOnSubscribe,
			SubscriberQueue:   defaultSubscriberQueue,
		},
		Supervisor: Supervisor{
			StopTimeoutSeconds: defaultStopTimeoutSeconds,
			BackoffBaseSeconds: defaultBackoffBaseSeconds,
			BackoffCapSeconds:  defaultBackoffCapSeconds,
			StabilitySeconds:   defaultStabilitySeconds,
			MaxRestarts:        defaultMaxRestarts,
		},
		Daemon: Daemon{
			PersistIntervalSeconds: defaultPersistIntervalSeconds,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}
