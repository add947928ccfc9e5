package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"drift/internal/bus"
	"drift/internal/daemon"
	"drift/internal/events"
	"drift/internal/paths"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var (
		projectFilter string
		typeFilter    string
		limit         int
		follow        bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent events or stream them live",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := bus.Filter{Types: typeFilter, Project: projectFilter}
			if follow {
				return followEvents(cmd, ctx.layout().SubscribeSocket(), filter)
			}
			return printRecentEvents(cmd, ctx.layout(), filter, limit)
		},
	}
	cmd.Flags().StringVar(&projectFilter, "project", "", "only events for this project")
	cmd.Flags().StringVar(&typeFilter, "type", "", "event type glob, e.g. service.*")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream events as they arrive")
	return cmd
}

// printRecentEvents renders the buffered history from the daemon state
// document, so it works whether or not the daemon is up.
func printRecentEvents(cmd *cobra.Command, layout paths.Layout, filter bus.Filter, limit int) error {
	state, err := daemon.LoadState(layout)
	if err != nil {
		return err
	}

	var matched []events.Event
	if state != nil {
		for _, buffered := range state.RecentEvents {
			for _, ev := range buffered {
				if filter.Matches(ev) {
					matched = append(matched, ev)
				}
			}
		}
	}
	if len(matched) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No events recorded")
		return nil
	}

	// Wire timestamps are RFC 3339 UTC, so lexical order is time order.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp < matched[j].Timestamp
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}

	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)
	for _, ev := range matched {
		fmt.Fprintln(stdout, formatEventLine(ev, colorize))
	}
	return nil
}

// followEvents subscribes to the live stream. The filter is declared up
// front even when empty so the replay starts without waiting out the
// handshake window.
func followEvents(cmd *cobra.Command, socket string, filter bus.Filter) error {
	conn, err := net.DialTimeout("unix", socket, 2*time.Second)
	if err != nil {
		return wrapDialError(err, socket)
	}
	defer conn.Close()

	line, err := json.Marshal(filter)
	if err != nil {
		return fmt.Errorf("encode filter: %w", err)
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("send filter: %w", err)
	}

	// Close the socket on ^C so the blocked read below returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-cmd.Context().Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		ev, err := events.Parse(scanner.Bytes())
		if err != nil {
			continue
		}
		fmt.Fprintln(stdout, formatEventLine(ev, colorize))
	}
	if cmd.Context().Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("event stream: %w", err)
	}
	return errors.New("event stream closed by daemon")
}

func formatEventLine(ev events.Event, colorize bool) string {
	clock := ev.Timestamp
	if t, err := time.Parse(time.RFC3339, ev.Timestamp); err == nil {
		clock = t.Local().Format("15:04:05")
	}

	priority := ev.Priority
	if priority == "" {
		priority = events.PriorityMedium
	}
	tag := fmt.Sprintf("%-8s", priority)
	if colorize {
		if color := priorityColor(priority); color != "" {
			tag = color + tag + ansiReset
		}
	}

	text := ev.Title
	if ev.Body != "" {
		if text != "" {
			text += ": "
		}
		text += ev.Body
	}
	line := fmt.Sprintf("%s  %s %-22s %-14s %s", clock, tag, ev.Type, ev.Project, text)
	return line
}

func priorityColor(priority string) string {
	switch priority {
	case events.PriorityCritical:
		return ansiRed
	case events.PriorityHigh:
		return ansiYellow
	case events.PriorityMedium:
		return ""
	case events.PriorityLow, events.PrioritySilent:
		return ansiDim
	default:
		return ""
	}
}
