package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	_ = opts.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	gateway, err := newGateway(cfg)
	if err != nil {
		return err
	}
	a, err := wireApp(cfg, log, gateway)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.ListenAndServe(cfg.Server.Addr) }()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		log.Info("signal received, draining", zap.Duration("grace", cfg.Server.ShutdownGrace))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := a.shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
		if serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}
