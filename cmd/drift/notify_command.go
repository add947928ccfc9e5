package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"drift/internal/events"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	var (
		eventType string
		project   string
		level     string
		title     string
		body      string
		source    string
		metaJSON  string
	)
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Emit an event onto the daemon bus",
		Long: "Emit an event onto the daemon bus. Intended for hooks and scripts;\n" +
			"the project defaults to $DRIFT_PROJECT.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if project == "" {
				project = strings.TrimSpace(os.Getenv("DRIFT_PROJECT"))
			}
			if project == "" {
				return errors.New("no project given; pass --project or set DRIFT_PROJECT")
			}

			ev := events.Event{
				Type:      strings.TrimSpace(eventType),
				Project:   project,
				Source:    source,
				Timestamp: events.Stamp(time.Now()),
				Level:     level,
				Title:     title,
				Body:      body,
			}
			if metaJSON != "" {
				if err := json.Unmarshal([]byte(metaJSON), &ev.Meta); err != nil {
					return fmt.Errorf("parse --meta: %w", err)
				}
			}

			if err := events.Emit(ctx.layout().EmitSocket(), ev); err != nil {
				if errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED) {
					return fmt.Errorf("%w; start the daemon with `drift start`", err)
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "dot-namespaced event type, e.g. build.finished")
	cmd.Flags().StringVar(&project, "project", "", "owning project (defaults to $DRIFT_PROJECT)")
	cmd.Flags().StringVar(&level, "level", events.LevelInfo, "severity: info, warn, error or success")
	cmd.Flags().StringVar(&title, "title", "", "short headline")
	cmd.Flags().StringVar(&body, "body", "", "longer description")
	cmd.Flags().StringVar(&source, "source", "cli", "producer name")
	cmd.Flags().StringVar(&metaJSON, "meta", "", "extra payload as a JSON object")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
