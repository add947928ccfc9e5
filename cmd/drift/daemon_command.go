package main

import (
	"github.com/spf13/cobra"

	"drift/internal/daemonrun"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var logFormat string
	cmd := &cobra.Command{
		Use:          "daemon",
		Short:        "Run the drift daemon in the foreground",
		Hidden:       true,
		Annotations:  map[string]string{"skipConfigLoad": "true"},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:  logLevel,
				LogFormat: logFormat,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "Override the configured log format (console or json)")
	return cmd
}
