package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"drift/internal/ipc"
)

func newServiceCommand(ctx *commandContext) *cobra.Command {
	serviceCmd := &cobra.Command{
		Use:   "service",
		Short: "Manage supervised services",
	}

	restartCmd := &cobra.Command{
		Use:   "restart <project> <service>",
		Short: "Restart one supervised service",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RestartService(args[0], args[1])
				if err != nil {
					return err
				}
				if resp.Restarted {
					fmt.Fprintf(cmd.OutOrStdout(), "Restarted %s/%s\n", args[0], args[1])
				}
				return nil
			})
		},
	}
	serviceCmd.AddCommand(restartCmd)
	return serviceCmd
}
