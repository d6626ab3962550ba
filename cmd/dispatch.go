package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/whr-sorting/simbridge/app"
	"github.com/whr-sorting/simbridge/core/dispatch"
)

var dispatchPriority int

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <order-id>",
	Short: "Assign an order to a crate on the mapping service",
	Args:  cobra.ExactArgs(1),
	RunE:  runDispatch,
}

func init() {
	dispatchCmd.Flags().IntVarP(&dispatchPriority, "priority", "p", 0, "order priority; 1 selects the express crate")
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	return withServe(cmd,
		func(ctx context.Context, ops *app.OpsClient) error {
			sum, err := ops.Dispatch(ctx, args[0], dispatchPriority)
			if err != nil {
				return err
			}
			printSummary(cmd, sum)
			return nil
		},
		viaOperator(func(ctx context.Context, op *app.Operator) error {
			sum, err := op.Orchestrator.DispatchOrder(ctx, args[0], dispatchPriority)
			if err != nil {
				return err
			}
			printSummary(cmd, sum)
			return nil
		}))
}

func printSummary(cmd *cobra.Command, sum dispatch.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "order %s dispatched as %s\n", sum.OrderID, sum.ShortID)
	fmt.Fprintf(out, "  crate:    %d\n", sum.CrateNumber)
	fmt.Fprintf(out, "  priority: %d\n", sum.Priority)
	fmt.Fprintf(out, "  products: %d (%s)\n", sum.TotalProducts, strings.Join(sum.Products, ", "))
}

// withHint appends the operator hint of a dispatch error, if any.
func withHint(err error) error {
	if err == nil {
		return nil
	}
	if hint := dispatch.HintOf(err); hint != "" {
		return fmt.Errorf("%w\nhint: %s", err, hint)
	}
	return err
}
