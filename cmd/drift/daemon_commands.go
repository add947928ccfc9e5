package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"drift/internal/daemonctl"
	"drift/internal/ipc"
)

const (
	daemonStartTimeout = 10 * time.Second
	daemonStopGrace    = 5 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the drift daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.controlSocket(),
				exe,
				daemonLaunchOptions(ctx, startLogLevel),
				daemonStartTimeout,
			)
			if err != nil {
				return err
			}

			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			default:
				if result.PID > 0 {
					fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
				} else {
					fmt.Fprintln(stdout, "Daemon started")
				}
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override the daemon log level")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the drift daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.controlSocket(), ctx.layout(), daemonStopGrace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon did not exit in time, killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the drift daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(
				ctx.controlSocket(),
				ctx.layout(),
				exe,
				daemonLaunchOptions(ctx, restartLogLevel),
				daemonStopGrace,
				daemonStartTimeout,
			)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Killed unresponsive daemon (pid %d)\n", result.Stop.PID)
				} else {
					fmt.Fprintln(stdout, "Daemon stopped")
				}
			}
			if result.Start.PID > 0 {
				fmt.Fprintf(stdout, "Daemon restarted (pid %d)\n", result.Start.PID)
			} else {
				fmt.Fprintln(stdout, "Daemon restarted")
			}
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Override the daemon log level")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, workspace, and service status",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := daemonctl.StatusSnapshot(ctx.controlSocket(), ctx.layout())
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			printDaemonSection(stdout, resp, colorize)
			fmt.Fprintln(stdout)
			printWorkspaceSection(stdout, resp, colorize)
			fmt.Fprintln(stdout)
			printServiceSection(stdout, resp, colorize)
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func printDaemonSection(out io.Writer, resp *ipc.StatusResponse, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	if !resp.Running {
		fmt.Fprintln(out, renderStatusLine("Drift", statusWarn, "Not running (run `drift start`)", colorize))
		if resp.PID > 0 {
			detail := fmt.Sprintf("pid %d", resp.PID)
			if resp.StartedAt != "" {
				detail += ", started " + resp.StartedAt
			}
			fmt.Fprintln(out, renderStatusLine("Last run", statusInfo, detail, colorize))
		}
		return
	}

	fmt.Fprintln(out, renderStatusLine("Drift", statusOK, fmt.Sprintf("Running (pid %d)", resp.PID), colorize))
	if uptime := uptimeString(resp.StartedAt); uptime != "" {
		fmt.Fprintln(out, renderStatusLine("Uptime", statusInfo, uptime, colorize))
	}
	if resp.CompositorConnected {
		fmt.Fprintln(out, renderStatusLine("Compositor", statusOK, "Connected", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Compositor", statusWarn, "Disconnected (niri socket unavailable)", colorize))
	}
	active := resp.ActiveProject
	if active == "" {
		active = "none"
	}
	fmt.Fprintln(out, renderStatusLine("Active project", statusInfo, active, colorize))
	fmt.Fprintln(out, renderStatusLine("Event bus", statusInfo, fmt.Sprintf(
		"%d subscribers, %d buffered, %d dropped, %d malformed",
		resp.Bus.Subscribers, resp.Bus.BufferedEvents, resp.Bus.DroppedEvents, resp.Bus.MalformedEvents), colorize))
	if resp.MemoryRSS > 0 {
		fmt.Fprintln(out, renderStatusLine("Resources", statusInfo, fmt.Sprintf(
			"%.1f%% cpu, %.1f MiB rss", resp.CPUPercent, float64(resp.MemoryRSS)/(1024*1024)), colorize))
	}
}

func printWorkspaceSection(out io.Writer, resp *ipc.StatusResponse, colorize bool) {
	for _, line := range renderSectionHeader("Workspaces", colorize) {
		fmt.Fprintln(out, line)
	}
	if len(resp.Workspaces) == 0 {
		fmt.Fprintln(out, "No project workspaces")
		return
	}

	rows := make([][]string, 0, len(resp.Workspaces))
	for _, ws := range resp.Workspaces {
		rows = append(rows, []string{
			ws.WorkspaceName,
			ws.Project,
			ws.Output,
			strconv.Itoa(ws.WindowCount),
			yesNo(ws.IsFocused),
		})
	}
	table := renderTable(
		[]string{"Workspace", "Project", "Output", "Windows", "Focused"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
	fmt.Fprintln(out, table)
}

func printServiceSection(out io.Writer, resp *ipc.StatusResponse, colorize bool) {
	title := "Services"
	if !resp.Running && len(resp.Services) > 0 {
		title = "Services (last run)"
	}
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}
	if len(resp.Services) == 0 {
		fmt.Fprintln(out, "No supervised services")
		return
	}

	projects := make([]string, 0, len(resp.Services))
	for name := range resp.Services {
		projects = append(projects, name)
	}
	sort.Strings(projects)

	var rows [][]string
	for _, projectName := range projects {
		for _, svc := range resp.Services[projectName] {
			name := svc.Name
			if svc.IsAgent {
				name += " (agent)"
			}
			pid := ""
			if svc.PID > 0 {
				pid = strconv.Itoa(svc.PID)
			}
			rows = append(rows, []string{
				projectName,
				name,
				string(svc.Status),
				pid,
				strconv.Itoa(svc.Restarts),
			})
		}
	}
	table := renderTable(
		[]string{"Project", "Service", "Status", "PID", "Restarts"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
	fmt.Fprintln(out, table)
}

func uptimeString(startedAt string) string {
	started, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return ""
	}
	up := time.Since(started).Truncate(time.Second)
	if up < 0 {
		return ""
	}
	return up.String()
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{LogLevel: strings.TrimSpace(logLevel)}
	if ctx.configFlag != nil {
		if configPath := strings.TrimSpace(*ctx.configFlag); configPath != "" {
			opts.ConfigPath = configPath
		}
	}
	return opts
}
