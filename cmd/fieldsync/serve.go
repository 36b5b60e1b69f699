package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roofmanager/fieldsync/internal/syncer"
	"github.com/roofmanager/fieldsync/internal/web"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the device API and keep the cache in sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// Leave the interfaces nil rather than holding typed nil pointers.
	var (
		runner web.Syncer
		tokens web.TokenSetter
	)
	if a.syncer != nil {
		runner = a.syncer
		tokens = a.client.Tokens()

		monitor := syncer.NewMonitor(a.syncer, a.client, a.cfg.ProbeInterval, a.cfg.SyncInterval, a.logger)
		go func() {
			if err := monitor.Run(ctx); err != nil {
				a.logger.Error("connectivity monitor stopped", "error", err)
			}
		}()
	}

	server := web.NewServer(a.service, runner, tokens, a.logger)
	return server.ListenAndServe(ctx, a.cfg.ListenAddr)
}
