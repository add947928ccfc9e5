// driftd runs the drift daemon as a dedicated executable for service
// managers. It is the same daemon the CLI starts with `drift daemon`,
// without the rest of the command graph.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"drift/internal/config"
	"drift/internal/daemonrun"
)

func main() {
	var configFlag string
	var logLevel string
	var logFormat string

	cmd := &cobra.Command{
		Use:           "driftd",
		Short:         "Project workspace daemon for niri",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, _, err := config.Load(configFlag)
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:  logLevel,
				LogFormat: logFormat,
			})
		},
	}
	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "Override the configured log format (console or json)")

	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
