package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moodtrail/tracker/internal/app/runtime"
	"github.com/moodtrail/tracker/internal/config"
)

type configLoader func() (*config.Config, error)

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log := runtime.NewLogger(cfg.Logging)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := runtime.NewApplication(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}

			runErr := application.Run(ctx)
			log.Info("shutting down")
			if err := application.Shutdown(context.Background()); err != nil {
				log.WithError(err).Error("shutdown")
			}
			return runErr
		},
	}
}
