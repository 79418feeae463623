package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SevenofThr4wn/HardwareStore/cmd/storeapi/cmd/cmdutil"
	"github.com/SevenofThr4wn/HardwareStore/internal/auth"
	"github.com/SevenofThr4wn/HardwareStore/internal/server"
	"github.com/SevenofThr4wn/HardwareStore/internal/services/directory"
	"github.com/SevenofThr4wn/HardwareStore/internal/services/iam"
	"github.com/SevenofThr4wn/HardwareStore/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HardwareStore API server",
	Long: `Starts the HTTP server and, unless sync.enabled is false, the directory
sync scheduler. SIGHUP triggers an immediate sync; SIGINT/SIGTERM shut down.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		shutdownTelemetry, err := telemetry.Init(ctx, cfg.Observability, logger)
		if err != nil {
			return fmt.Errorf("initialize telemetry: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(sctx); err != nil {
				logger.Warn("telemetry shutdown failed", zap.Error(err))
			}
		}()

		stack, err := cmdutil.OpenStack(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer stack.Close()

		enforcer, err := cmdutil.NewEnforcer(stack.DB, cfg)
		if err != nil {
			return err
		}

		keys, err := auth.NewRemoteKeySet(cfg.Keycloak.Issuer(), auth.RemoteKeySetOptions{
			Timeout: cfg.Keycloak.RequestTimeout,
			Logger:  logger.Named("jwks"),
		})
		if err != nil {
			return fmt.Errorf("create key set: %w", err)
		}
		validator := auth.NewTokenValidator(auth.TokenValidatorConfig{
			Issuer:              cfg.Keycloak.Issuer(),
			ClientID:            cfg.Keycloak.ClientID,
			AdditionalAudiences: cfg.Keycloak.AdditionalAudiences,
			ClockSkew:           cfg.Keycloak.ClockSkew,
		}, keys, logger.Named("token"))

		kc := cmdutil.NewKeycloakClient(cfg, logger)

		serverMetrics, err := telemetry.NewServerMetrics()
		if err != nil {
			return fmt.Errorf("create server metrics: %w", err)
		}
		authMetrics, err := telemetry.NewAuthMetrics()
		if err != nil {
			return fmt.Errorf("create auth metrics: %w", err)
		}
		syncMetrics, err := telemetry.NewSyncMetrics()
		if err != nil {
			return fmt.Errorf("create sync metrics: %w", err)
		}

		iamService, err := iam.NewIAMService(ctx, iam.IAMServiceDependencies{
			Sessions:  stack.Sessions,
			Users:     stack.Users,
			Enforcer:  enforcer,
			Validator: validator,
			Provider:  kc,
			Metrics:   authMetrics,
			Logger:    logger.Named("iam"),
		}, iam.IAMServiceConfig{
			SessionTTL:   cfg.Session.TTL,
			FallbackRole: cfg.Sync.FallbackRole,
		})
		if err != nil {
			return fmt.Errorf("create IAM service: %w", err)
		}

		// A nil *Scheduler must not reach RouterOptions as a non-nil interface.
		var syncController server.SyncController
		var scheduler *directory.Scheduler
		if cfg.Sync.Enabled {
			engine := cmdutil.NewSyncEngine(cfg, kc, stack.Users, syncMetrics, logger)
			scheduler = directory.NewScheduler(engine, directory.SchedulerOptions{
				Interval: cfg.Sync.Interval,
				Sessions: stack.Sessions,
				OnRun: func(ctx context.Context, run directory.SyncRun) {
					if err := iamService.RefreshUserRoleCache(ctx); err != nil {
						logger.Error("user role cache refresh failed", zap.String("run_id", run.ID), zap.Error(err))
					}
				},
			}, logger.Named("scheduler"))
			if err := scheduler.Start(ctx); err != nil {
				return fmt.Errorf("start directory sync: %w", err)
			}
			syncController = scheduler
		} else {
			logger.Warn("directory sync disabled", zap.String("reason", "sync.enabled=false"))
		}

		router := server.NewRouter(server.RouterOptions{
			IAMService: iamService,
			Sync:       syncController,
			Cfg:        cfg,
			Metrics:    serverMetrics,
			Logger:     logger.Named("http"),
		})

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 2 * time.Minute, // POST /admin/sync waits for the run
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting server", zap.String("addr", cfg.ServerAddr), zap.String("url", cfg.ServerURL))
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// SIGHUP triggers a manual directory sync
		resync := make(chan os.Signal, 1)
		signal.Notify(resync, syscall.SIGHUP)

		for {
			select {
			case err := <-serverErrors:
				if scheduler != nil {
					stopScheduler(scheduler)
				}
				return fmt.Errorf("server error: %w", err)

			case sig := <-resync:
				if scheduler == nil {
					logger.Warn("ignoring signal, directory sync disabled", zap.Stringer("signal", sig))
					continue
				}
				logger.Info("signal received, running directory sync", zap.Stringer("signal", sig))
				go func() {
					run, err := scheduler.TriggerSyncNow(context.Background())
					if err != nil && !errors.Is(err, directory.ErrSchedulerStopped) {
						logger.Warn("signal-triggered sync did not run", zap.Error(err))
						return
					}
					if err == nil && run.Err != nil {
						logger.Warn("signal-triggered sync failed", zap.String("run_id", run.ID), zap.Error(run.Err))
					}
				}()

			case sig := <-shutdown:
				logger.Info("shutting down gracefully", zap.Stringer("signal", sig))

				sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				// Stop the scheduler first so POST /admin/sync handlers unblock.
				if scheduler != nil {
					stopScheduler(scheduler)
				}
				if err := srv.Shutdown(sctx); err != nil {
					_ = srv.Close()
					return fmt.Errorf("graceful shutdown failed: %w", err)
				}

				logger.Info("server stopped")
				return nil
			}
		}
	},
}

func stopScheduler(s *directory.Scheduler) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("directory sync scheduler did not stop cleanly", zap.Error(err))
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
