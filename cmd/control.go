package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/whr-sorting/simbridge/app"
)

var controlRaw bool

var controlCmd = &cobra.Command{
	Use:   "control <manual|auto>",
	Short: "Switch the simulation between teleoperation and automatic mode",
	Long: "Switch the simulation between teleoperation (manual) and automatic mode.\n" +
		"With --raw the argument is sent to the control endpoint unchanged.",
	Args: cobra.ExactArgs(1),
	RunE: runControl,
}

func init() {
	controlCmd.Flags().BoolVar(&controlRaw, "raw", false, "send the argument as a raw control command")
	rootCmd.AddCommand(controlCmd)
}

func runControl(cmd *cobra.Command, args []string) error {
	show := func(reply string) { fmt.Fprintln(cmd.OutOrStdout(), reply) }
	return withServe(cmd,
		func(ctx context.Context, ops *app.OpsClient) error {
			send := ops.SetMode
			if controlRaw {
				send = ops.Control
			}
			reply, err := send(ctx, args[0])
			if err != nil {
				return err
			}
			show(reply)
			return nil
		},
		viaOperator(func(ctx context.Context, op *app.Operator) error {
			send := op.Controller.SetMode
			if controlRaw {
				send = op.Controller.SendControlCommand
			}
			reply, err := send(ctx, args[0])
			if err != nil {
				return err
			}
			show(reply)
			return nil
		}))
}
