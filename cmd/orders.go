package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/whr-sorting/simbridge/app"
	"github.com/whr-sorting/simbridge/core/model"
)

var orderCustomer string

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Order related commands",
}

var ordersAddCmd = &cobra.Command{
	Use:   "add <product[:quantity]>...",
	Short: "Create a pending order",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runOrdersAdd,
}

var ordersLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored orders",
	Args:  cobra.NoArgs,
	RunE:  runOrdersLs,
}

func init() {
	ordersAddCmd.Flags().StringVar(&orderCustomer, "customer", "", "customer name")
	ordersCmd.AddCommand(ordersAddCmd, ordersLsCmd)
	rootCmd.AddCommand(ordersCmd)
}

// parseItems reads "name" or "name:quantity" arguments.
func parseItems(args []string) ([]model.Item, error) {
	items := make([]model.Item, 0, len(args))
	for _, a := range args {
		name, qty, found := strings.Cut(a, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("empty product name in %q", a)
		}
		n := 1
		if found {
			var err error
			if n, err = strconv.Atoi(qty); err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid quantity in %q", a)
			}
		}
		items = append(items, model.Item{Name: name, Quantity: n})
	}
	return items, nil
}

func runOrdersAdd(cmd *cobra.Command, args []string) error {
	items, err := parseItems(args)
	if err != nil {
		return err
	}
	return withOperator(func(ctx context.Context, op *app.Operator) error {
		now := time.Now().UTC()
		o := model.Order{
			ID:        strings.ReplaceAll(uuid.NewString(), "-", ""),
			Customer:  orderCustomer,
			Items:     items,
			Status:    model.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := op.Orders.Save(ctx, o); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", o.ID, model.ShortID(o.ID))
		return nil
	})
}

func runOrdersLs(cmd *cobra.Command, args []string) error {
	return withOperator(func(ctx context.Context, op *app.Operator) error {
		orders, err := op.Orders.List(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSHORT\tSTATUS\tCRATE\tPRIORITY\tPRODUCTS")
		for _, o := range orders {
			crate := "-"
			if o.CrateNumber != nil {
				crate = strconv.Itoa(*o.CrateNumber)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", o.ID, model.ShortID(o.ID), o.Status, crate, o.Priority, strings.Join(o.ProductNames(), ","))
		}
		return w.Flush()
	})
}
