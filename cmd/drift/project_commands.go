package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"drift/internal/ipc"
	"drift/internal/project"
	"drift/internal/workspace"
)

func newOpenCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "open <project>",
		Short: "Open a project workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.OpenProject(args[0])
				if err != nil {
					return err
				}
				printOpenResult(cmd, resp.Result)
				return nil
			})
		},
	}
}

func printOpenResult(cmd *cobra.Command, result ipc.OpenResult) {
	stdout := cmd.OutOrStdout()
	if result.Focused {
		fmt.Fprintf(stdout, "Focused existing workspace %s\n", result.Project)
		return
	}
	parts := []string{fmt.Sprintf("%d windows", result.Windows)}
	if result.Services > 0 {
		parts = append(parts, fmt.Sprintf("%d services", result.Services))
	}
	if result.Agents > 0 {
		parts = append(parts, fmt.Sprintf("%d agents", result.Agents))
	}
	fmt.Fprintf(stdout, "Opened %s: %s\n", result.Project, strings.Join(parts, ", "))
}

func newCloseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "close [project]",
		Short: "Close a project workspace",
		Long: "Close a project workspace. Without an argument the project is taken\n" +
			"from $DRIFT_PROJECT, then from the daemon's active project.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				name, err := resolveCloseTarget(client, args)
				if err != nil {
					return err
				}
				resp, err := client.CloseProject(name)
				if err != nil {
					return err
				}
				result := resp.Result
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Closed %s: %d services stopped, %d windows closed\n",
					result.Project, result.ServicesStopped, result.WindowsClosed)
				if result.SnapshotSaved {
					fmt.Fprintln(stdout, "Workspace snapshot saved")
				}
				return nil
			})
		},
	}
}

func resolveCloseTarget(client *ipc.Client, args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	if env := strings.TrimSpace(os.Getenv("DRIFT_PROJECT")); env != "" {
		return env, nil
	}
	status, err := client.Status()
	if err != nil {
		return "", err
	}
	if status.ActiveProject == "" {
		return "", errors.New("no project given and no project is active")
	}
	return status.ActiveProject, nil
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Reopen the projects from the last session",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := workspace.LoadSession(ctx.layout())
			if err != nil {
				return err
			}
			if session == nil || len(session.Projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No session to resume")
				return nil
			}

			return ctx.withClient(func(client *ipc.Client) error {
				stdout := cmd.OutOrStdout()
				failures := 0
				for _, name := range session.Projects {
					resp, err := client.OpenProject(name)
					if err != nil {
						failures++
						fmt.Fprintf(stdout, "%s: %v\n", name, err)
						continue
					}
					printOpenResult(cmd, resp.Result)
				}
				if failures > 0 {
					return fmt.Errorf("%d of %d projects failed to open", failures, len(session.Projects))
				}
				return nil
			})
		},
	}
}

func newProjectsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List configured projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout := ctx.layout()
			registry, err := project.LoadRegistry(layout)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if registry.Len() == 0 {
				fmt.Fprintf(stdout, "No projects defined under %s\n", layout.ProjectsDir())
				return nil
			}

			// Live state is optional decoration; the listing works with
			// the daemon down.
			open := map[string]bool{}
			active := ""
			if client, err := ctx.dialClient(); err == nil {
				if status, statusErr := client.Status(); statusErr == nil {
					for _, ws := range status.Workspaces {
						open[ws.Project] = true
					}
					active = status.ActiveProject
				}
				_ = client.Close()
			}

			rows := make([][]string, 0, registry.Len())
			for _, p := range registry.All() {
				state := ""
				switch {
				case p.Meta.Name == active:
					state = "active"
				case open[p.Meta.Name]:
					state = "open"
				}
				rows = append(rows, []string{
					project.DisplayName(p),
					p.Meta.Repo,
					strconv.Itoa(len(p.Windows)),
					strconv.Itoa(len(p.Services.Processes)),
					state,
				})
			}
			table := renderTable(
				[]string{"Project", "Repo", "Windows", "Services", "State"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			)
			fmt.Fprintln(stdout, table)
			return nil
		},
	}
}
