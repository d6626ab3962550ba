package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/whr-sorting/simbridge/core/protocol"
	"github.com/whr-sorting/simbridge/infra/logger"
	"github.com/whr-sorting/simbridge/internal/mapsim"
)

func main() {
	cfg := parseFlags()
	if err := (&cfg).Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}
	level := cfg.LogLevel
	if cfg.Verbose {
		level = "debug"
	}
	if err := logger.SetLevel(level); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := logger.New("simulator")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := &mapsim.Notifier{
		Addr:     cfg.CompletionAddr,
		Attempts: cfg.NotifyAttempts,
		Timeout:  cfg.NotifyTimeout,
		Pause:    cfg.NotifyPause,
		Log:      logger.New("notifier"),
	}
	mapping := mapsim.NewMappingServer(notifier, cfg.Strategy(), logger.New("mapping"))
	if err := mapping.Start(ctx, cfg.MappingAddr); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
	var control *mapsim.ControlServer
	if !cfg.NoControl {
		control = mapsim.NewControlServer(logger.New("control"))
		if err := control.Start(ctx, cfg.ControlAddr); err != nil {
			log.Errorf("%v", err)
			stop()
			mapping.Wait()
			os.Exit(1)
		}
	}

	<-ctx.Done()
	log.Infof("shutting down")
	mapping.Wait()
	if control != nil {
		control.Wait()
	}
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.MappingAddr, "mapping-addr", fmt.Sprintf(":%d", protocol.DefaultMappingPort), "mapping service listen address")
	flag.StringVar(&cfg.ControlAddr, "control-addr", fmt.Sprintf(":%d", protocol.DefaultControlPort), "control endpoint listen address")
	flag.StringVar(&cfg.CompletionAddr, "completion-addr", fmt.Sprintf("127.0.0.1:%d", protocol.DefaultCompletionPort), "bridge completion listener address")
	flag.BoolVar(&cfg.NoControl, "no-control", false, "do not emulate the control endpoint")
	flag.BoolVar(&cfg.AutoProcess, "auto-process", false, "process products automatically after each UPDATE")
	flag.DurationVar(&cfg.Interval, "interval", time.Second, "delay between automatically processed products")
	flag.Float64Var(&cfg.DropRate, "drop-rate", 0, "probability of losing an automatically processed product")
	flag.IntVar(&cfg.NotifyAttempts, "notify-attempts", mapsim.DefaultNotifyAttempts, "completion notification attempts")
	flag.DurationVar(&cfg.NotifyTimeout, "notify-timeout", mapsim.DefaultNotifyTimeout, "completion notification timeout")
	flag.DurationVar(&cfg.NotifyPause, "notify-pause", mapsim.DefaultNotifyPause, "pause between notification attempts")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "log level")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "enable debug logging")
	flag.Parse()
	return cfg
}
