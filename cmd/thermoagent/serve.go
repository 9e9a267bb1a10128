package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ishmatuaulia/thermoagent"
	"github.com/ishmatuaulia/thermoagent/internal/logger"
)

// ServeFlags holds serve-only flags.
type ServeFlags struct {
	Daemonize bool
	PIDFile   string
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	flags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if globalFlags.ConfigPath == "" {
				return fmt.Errorf("--config is required for serve")
			}
			if flags.Daemonize {
				if err := daemonize(flags.PIDFile); err != nil {
					return err
				}
			}
			defer func() { _ = removePidFile(flags.PIDFile) }()
			return runServe(globalFlags.ConfigPath)
		},
	}
	cmd.Flags().BoolVar(&flags.Daemonize, "daemonize", false, "run detached in the background")
	cmd.Flags().StringVar(&flags.PIDFile, "pidfile", "", "write the daemon PID to this file")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := thermoagent.LoadConfig(configPath)
	if err != nil {
		return err
	}

	_, closer, err := logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Color:      cfg.Log.Color,
		Dir:        cfg.Log.Dir,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}.Setup()
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	agent, err := thermoagent.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = agent.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}
