package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HerbHall/creditdesk/internal/auth"
	"github.com/HerbHall/creditdesk/internal/casework"
	"github.com/HerbHall/creditdesk/internal/monitor"
	"github.com/HerbHall/creditdesk/internal/payments"
	"github.com/HerbHall/creditdesk/internal/postal"
	"github.com/HerbHall/creditdesk/internal/server"
	"github.com/HerbHall/creditdesk/internal/version"
	"github.com/HerbHall/creditdesk/internal/ws"
	"github.com/HerbHall/creditdesk/pkg/platform"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, health monitor and revocation sweeper",
		Long: `Run the CreditDesk API server.

Examples:
  creditdesk serve
  creditdesk serve --config /etc/creditdesk/creditdesk.yaml
  CD_SERVER_PORT=9090 CD_AUTH_JWT_SECRET=... creditdesk serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configFlag(cmd))
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	logger.Info("CreditDesk server starting", zap.String("version", version.Short()))

	authSvc, acfg, err := a.buildAuth(ctx)
	if err != nil {
		return err
	}
	authHandler := auth.NewHandler(authSvc, acfg.LoginRate, logger.Named("auth"))

	mcfg, err := a.monitorConfig()
	if err != nil {
		return err
	}
	mon, err := a.buildMonitor(ctx, mcfg)
	if err != nil {
		return err
	}

	caseSvc, err := a.buildCasework(ctx)
	if err != nil {
		return err
	}

	wsHandler := ws.NewHandler(authSvc, a.bus, logger.Named("ws"))
	defer wsHandler.Close()

	var scfg server.Config
	if err := a.cfg.Sub("server").Unmarshal(&scfg); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	srv := server.New(server.Options{
		Addr:   scfg.Addr(),
		Logger: logger.Named("server"),
		Ready: func(ctx context.Context) error {
			return a.db.Ping(ctx)
		},
		Auth:      authHandler,
		DevMode:   scfg.DevMode,
		RateLimit: scfg.RateLimit,
		Clock:     a.clock,
		Modules: []platform.RouteRegistrar{
			monitor.NewHandler(mon, logger.Named("monitor")),
			casework.NewHandler(caseSvc, logger.Named("casework")),
			postal.NewHandler(a.postal, logger.Named("postal")),
			payments.NewHandler(a.pay, a.bus, a.clock, logger.Named("payments")),
			wsHandler,
		},
		ModuleNames: []string{"auth", "monitor", "casework", "postal", "payments", "ws"},
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go authSvc.RunSweeper(runCtx, acfg.Revocation.SweepInterval)
	if mcfg.Enabled {
		mon.Start(runCtx)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.Info("CreditDesk server ready", zap.String("addr", scfg.Addr()))
	fmt.Fprintf(os.Stderr, "\n  CreditDesk %s is listening on %s\n\n", version.Short(), scfg.Addr())

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			mon.Stop()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()
	mon.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("CreditDesk server stopped")
	return nil
}
