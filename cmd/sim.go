package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/whr-sorting/simbridge/app"
	"github.com/whr-sorting/simbridge/config"
	"github.com/whr-sorting/simbridge/core/activity"
	"github.com/whr-sorting/simbridge/internal/runstate"
)

var (
	logsCategory string
	logsClear    bool
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Control the simulation supervised by serve",
}

var simStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Launch the simulation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServe(cmd, func(ctx context.Context, ops *app.OpsClient) error {
			res, err := ops.StartSimulation(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		}, nil)
	},
}

var simStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Interrupt the simulation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServe(cmd, func(ctx context.Context, ops *app.OpsClient) error {
			res, err := ops.StopSimulation(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		}, nil)
	},
}

var simStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the simulation is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServe(cmd,
			func(ctx context.Context, ops *app.OpsClient) error {
				st, err := ops.Status(ctx)
				if err != nil {
					return err
				}
				printStatus(cmd, st)
				return nil
			},
			func(_ context.Context, cfg *config.Config) error {
				st := app.SimStatus{Running: runstate.Probe{Path: cfg.StateFile}.IsRunning()}
				if rs, err := runstate.Read(cfg.StateFile); err == nil && st.Running {
					st.PID = rs.SimulationPID
				}
				printStatus(cmd, st)
				return nil
			})
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show or clear the activity log of serve",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

func init() {
	logsCmd.Flags().StringVar(&logsCategory, "category", "", "only show entries of this category (default, info, success, error)")
	logsCmd.Flags().BoolVar(&logsClear, "clear", false, "drop every entry instead of showing them")
	simCmd.AddCommand(simStartCmd, simStopCmd, simStatusCmd)
	rootCmd.AddCommand(simCmd, logsCmd)
}

func printStatus(cmd *cobra.Command, st app.SimStatus) {
	if !st.Running {
		fmt.Fprintln(cmd.OutOrStdout(), "simulation is not running")
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "simulation is running (pid %d)\n", st.PID)
}

func runLogs(cmd *cobra.Command, _ []string) error {
	var cat activity.Category
	if logsCategory != "" {
		c, ok := activity.ParseCategory(logsCategory)
		if !ok {
			return fmt.Errorf("unknown category %q", logsCategory)
		}
		cat = c
	}
	return withServe(cmd, func(ctx context.Context, ops *app.OpsClient) error {
		if logsClear {
			if err := ops.ClearLogs(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "activity log cleared")
			return nil
		}
		entries, err := ops.Logs(ctx, cat)
		if err != nil {
			return err
		}
		printEntries(cmd, entries)
		return nil
	}, nil)
}

func printEntries(cmd *cobra.Command, entries []activity.Entry) {
	out := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintf(out, "%s %-7s %s\n", e.Timestamp.Local().Format("15:04:05"), e.Category, e.Message)
	}
}
