package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/sla-monitor/internal/api/http"
	"github.com/spec-kit/sla-monitor/internal/api/http/handlers"
	"github.com/spec-kit/sla-monitor/internal/auth"
	"github.com/spec-kit/sla-monitor/internal/worker"
)

const (
	slaScanTask       = "sla-scan"
	mailIngestionTask = "mail-ingestion"
	shutdownTimeout   = 15 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the SLA scan and the mail connector",
	Long: `serve starts the ticket API and supervises the background tasks: the periodic
SLA scan, the mailbox connector and the outbound notification worker. SIGINT or
SIGTERM cancels every task and drains the HTTP server.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Bool("no-sla-scan", false, "do not schedule the SLA scan")
	serveCmd.Flags().Bool("no-mail", false, "do not schedule mailbox polling")
}

func runServe(cmd *cobra.Command, args []string) error {
	noScan, err := cmd.Flags().GetBool("no-sla-scan")
	if err != nil {
		return err
	}
	noMail, err := cmd.Flags().GetBool("no-mail")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	if err := a.bootstrapAdmin(ctx); err != nil {
		logger.Error("bootstrap administrator", zap.Error(err))
	}

	sup := worker.NewSupervisor(ctx, logger)
	if _, err := worker.StartNotificationWorker(sup, a.notifier); err != nil {
		return err
	}
	if !noScan {
		if _, err := sup.Start(slaScanTask, func(ctx context.Context) error {
			return worker.RunPeriodic(ctx, slaScanTask, worker.Every(a.cfg.SLA.ScanInterval()), a.sla.Run, logger)
		}); err != nil {
			return err
		}
	}
	if !noMail {
		if _, err := sup.Start(mailIngestionTask, func(ctx context.Context) error {
			return worker.RunPeriodic(ctx, mailIngestionTask, a.ingestion.PollInterval, a.ingestion.Run, logger)
		}); err != nil {
			return err
		}
	}

	app := fiber.New(fiber.Config{
		AppName:               a.cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, a.metrics, a.cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(a.cfg.App.Name, a.cfg.App.Version, map[string]handlers.Pinger{
			"postgres": a.postgres,
			"redis":    a.redis,
		}),
		Users:          handlers.NewUsersHandler(a.auth),
		Tickets:        handlers.NewTicketsHandler(a.lifecycle, a.sla),
		Ops:            handlers.NewOpsHandler(a.sla, a.ingestion, sup),
		Metrics:        a.metrics,
		AuthMiddleware: auth.NewAuthMiddleware(a.tokens, a.users),
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", a.cfg.App.Addr()))
		listenErr <- app.Listen(a.cfg.App.Addr())
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-listenErr:
		if err != nil {
			logger.Error("fiber listen", zap.Error(err))
		}
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return sup.Shutdown(shutdownCtx)
}
