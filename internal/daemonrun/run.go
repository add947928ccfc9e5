// Package daemonrun assembles and runs the daemon process: logger,
// project registry, daemon components, and the control server. It blocks
// until a termination signal arrives or a stop request comes in over the
// control socket.
package daemonrun

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"drift/internal/config"
	"drift/internal/daemon"
	"drift/internal/ipc"
	"drift/internal/logging"
	"drift/internal/project"
)

// Options configures daemon process runtime behavior. Empty fields fall
// back to the configuration file.
type Options struct {
	LogLevel  string
	LogFormat string
}

// Run starts the drift daemon and blocks until shutdown.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	layout := cfg.Layout()

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	format := strings.TrimSpace(opts.LogFormat)
	if format == "" {
		format = cfg.Logging.Format
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           format,
		OutputPaths:      []string{"stdout", layout.DaemonLog()},
		ErrorOutputPaths: []string{"stderr", layout.DaemonLog()},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	registry, err := project.LoadRegistry(layout)
	if err != nil {
		logger.Error("load project registry", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, registry, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	server, err := ipc.NewServer(signalCtx, layout.ControlSocket(), d, logger)
	if err != nil {
		return fmt.Errorf("start control server: %w", err)
	}
	defer server.Close()
	server.Serve()

	// An unusable event socket or a second daemon instance is fatal; a
	// missing compositor is not, the tracker reconnects on its own.
	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for a running drift instance and socket permissions"))
		return err
	}

	select {
	case <-signalCtx.Done():
		logger.Info("drift daemon shutting down",
			logging.String(logging.FieldEventType, "daemon_signal"))
	case <-d.Done():
		// Stop arrived over the control socket; the daemon is already
		// down, the defers only clean up the server.
	}
	return nil
}
