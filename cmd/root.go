package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/whr-sorting/simbridge/app"
	"github.com/whr-sorting/simbridge/config"
	"github.com/whr-sorting/simbridge/infra/logger"
)

var (
	cfgPath      string
	noSimulation bool
)

var rootCmd = &cobra.Command{
	Use:           "simbridge",
	Short:         "Bridge between the order backend and the warehouse simulation",
	Args:          cobra.NoArgs,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Supervise the simulation and receive completion notifications",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (YAML or JSON)")
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().BoolVar(&noSimulation, "no-simulation", false, "do not launch the simulation on startup")
	}
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx, !noSimulation)
}

// withOperator loads the configuration and runs fn against a one-shot
// operator.
func withOperator(fn func(ctx context.Context, op *app.Operator) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return runOperator(ctx, cfg, fn)
}

func runOperator(ctx context.Context, cfg *config.Config, fn func(ctx context.Context, op *app.Operator) error) error {
	op, err := app.NewOperator(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := op.Close(); err != nil {
			logger.New("main").Errorf("operator close: %v", err)
		}
	}()
	return fn(ctx, op)
}

// viaOperator adapts an operator action into a withServe fallback.
func viaOperator(fn func(ctx context.Context, op *app.Operator) error) func(context.Context, *config.Config) error {
	return func(ctx context.Context, cfg *config.Config) error {
		return runOperator(ctx, cfg, fn)
	}
}

// withServe runs fn against the ops endpoint of the serve process. When serve
// does not answer, fallback runs instead; without one the command fails.
func withServe(cmd *cobra.Command, fn func(ctx context.Context, ops *app.OpsClient) error, fallback func(ctx context.Context, cfg *config.Config) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ops := app.NewOpsClient(cfg.Ops)
	err = fn(ctx, ops)
	if err == nil || !app.Unreachable(err) {
		return withHint(err)
	}
	if fallback == nil {
		return fmt.Errorf("serve is not reachable at %s: %w\nhint: start it with simbridge serve", ops.Addr(), err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "serve is not reachable at %s, running without it\n", ops.Addr())
	return withHint(fallback(ctx, cfg))
}
