package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/careerlens/careerlens/internal/admission"
	"github.com/careerlens/careerlens/internal/analysis"
	apperrors "github.com/careerlens/careerlens/internal/errors"
	"github.com/careerlens/careerlens/internal/metrics"
	"github.com/careerlens/careerlens/internal/observability"
	"github.com/careerlens/careerlens/internal/server"
	"github.com/careerlens/careerlens/internal/server/handlers"
	"github.com/careerlens/careerlens/internal/store"
)

var (
	serverPort int
	serverHost string
)

func telemetryChecker(ctx context.Context) error {
	if observability.TelemetrySystem == nil {
		return apperrors.New(apperrors.CodeInternal, "telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the careerlens HTTP API with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload config and swap operation policies

Policies are also swapped when the config file changes on disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		cfg, err := loadConfig()
		if err != nil {
			return apperrors.Wrap(ctx, apperrors.CodeConfigInvalid, err, "invalid configuration")
		}

		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()
		observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, cfg.Logging.Profile, namespace)
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port, namespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return apperrors.WrapInternal(ctx, err, "metrics initialization failed")
			}
		}

		svc, err := buildServices(ctx, cfg, logger, true)
		if err != nil {
			return apperrors.Wrap(ctx, apperrors.CodeConfigInvalid, err, "service initialization failed")
		}
		if err := svc.attachStats(ctx, cfg.Stats, logger); err != nil {
			svc.Close(ctx)
			return apperrors.Wrap(ctx, apperrors.CodeConfigInvalid, err, "admission stats initialization failed")
		}
		if err := svc.attachObjects(ctx, cfg.Documents); err != nil {
			svc.Close(ctx)
			return apperrors.WrapExternalService(ctx, err, "object storage initialization failed")
		}

		controller := admission.New(admission.NewMemoryStore(admission.WithEvictAfter(cfg.Admission.EvictAfter)))
		sweeper := admission.NewSweeper(controller, cfg.Admission.SweepSchedule, logger)
		if err := sweeper.Start(ctx); err != nil {
			svc.Close(ctx)
			return apperrors.Wrap(ctx, apperrors.CodeConfigInvalid, err, "admission sweeper failed to start")
		}

		var retention *store.Retention
		if svc.store != nil && cfg.Store.Retention > 0 {
			retention = store.NewRetention(svc.store, cfg.Store.Retention, cfg.Store.RetentionSchedule, logger)
			if err := retention.Start(ctx); err != nil {
				sweeper.Stop()
				svc.Close(ctx)
				return apperrors.Wrap(ctx, apperrors.CodeConfigInvalid, err, "outcome retention failed to start")
			}
		}

		build := handlers.BuildInfo{
			Name:      identity.BinaryName,
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
		}
		hm := handlers.NewHealthManager(build.Version)
		registerHealthChecks(hm, svc, cfg.Metrics.Enabled)

		deps := server.Deps{
			Service:        svc.service,
			Admission:      controller,
			ClientKey:      admission.ClientKey(cfg.Admission.KeyHeader, cfg.Admission.TrustForwarded),
			TrustForwarded: cfg.Admission.TrustForwarded,
			Extractor:      svc.extractor,
			Objects:        svc.objects,
			Health:         hm,
			Build:          build,
			AdminToken:     viper.GetString("admin_token"),
		}
		if svc.statsQ != nil {
			deps.Stats = svc.statsQ
		}
		if serverHost != "" {
			cfg.Server.Host = serverHost
		}
		if serverPort != 0 {
			cfg.Server.Port = serverPort
		}
		srv := server.New(cfg.Server, deps)

		logger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", build.Version),
			zap.String("provider", svc.service.Gateway.Provider()),
			zap.String("model", cfg.Inference.Model),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("store", svc.store != nil),
			zap.Bool("events", svc.publisher != nil),
			zap.Bool("redis_stats", svc.stats != nil),
			zap.Bool("object_storage", svc.objects != nil))

		watchPolicies(svc.policies)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout <= 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: the HTTP server stops first and the
		// logger flushes last.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			closeCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			svc.Close(closeCtx)
			if svc.sink != nil && svc.sink.Dropped() > 0 {
				logger.Warn("Outcome events dropped", zap.Int64("dropped", svc.sink.Dropped()))
			}
			logger.Info("Outcome sinks closed")
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			sweeper.Stop()
			if retention != nil {
				retention.Stop()
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return apperrors.WrapInternal(ctx, err, "server shutdown failed")
			}
			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: reloading configuration")
			if err := viper.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					logger.Error("Failed to reload config file",
						zap.String("file", viper.ConfigFileUsed()),
						zap.Error(err))
					return apperrors.Wrap(ctx, apperrors.CodeConfigInvalid, err, "config reload failed")
				}
			}
			if err := reloadPolicies(svc.policies); err != nil {
				logger.Error("Policy reload rejected", zap.Error(err))
				return apperrors.Wrap(ctx, apperrors.CodeConfigInvalid, err, "policy reload failed")
			}
			logger.Info("Operation policies reloaded", zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 2)
		go func() {
			logger.Info("Starting HTTP server...",
				zap.String("host", cfg.Server.Host),
				zap.Int("port", cfg.Server.Port))
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		go func() {
			err := signals.Listen(ctx)
			if err != nil {
				logger.Error("Signal handler error", zap.Error(err))
			}
			errChan <- err
		}()

		hm.MarkStarted()
		metrics.SetServerStartTime(time.Now().Unix())

		if err := <-errChan; err != nil {
			return apperrors.WrapInternal(ctx, err, "server error")
		}
		return nil
	},
}

func registerHealthChecks(hm *handlers.HealthManager, svc *services, telemetry bool) {
	if telemetry {
		hm.RegisterChecker("telemetry", handlers.CheckFunc(telemetryChecker))
	}
	if svc.store != nil {
		hm.RegisterChecker("store", handlers.CheckFunc(svc.store.Ping))
	}
	if svc.stats != nil {
		stats, queue := svc.stats, svc.statsQ
		hm.RegisterChecker("redis", handlers.Optional(handlers.CheckFunc(func(ctx context.Context) error {
			if _, _, err := stats.Totals(ctx); err != nil {
				return err
			}
			if queue != nil && queue.Dropped() > 0 {
				return apperrors.New(apperrors.CodeServiceUnavailable, "admission stats are being dropped")
			}
			return nil
		})))
	}
	if svc.sink != nil {
		sink := svc.sink
		hm.RegisterChecker("outcome_sink", handlers.Optional(handlers.CheckFunc(func(ctx context.Context) error {
			if dropped := sink.Dropped(); dropped > 0 {
				return apperrors.New(apperrors.CodeServiceUnavailable, "outcome events are being dropped")
			}
			return nil
		})))
	}
}

// reloadPolicies re-resolves the policy table from the current settings and
// swaps it in. An invalid table leaves the active one untouched.
func reloadPolicies(policies *analysis.Policies) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	table, err := cfg.Policies()
	if err != nil {
		return err
	}
	policies.Swap(table)
	return nil
}

func watchPolicies(policies *analysis.Policies) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		logger := observability.ServerLogger
		if err := reloadPolicies(policies); err != nil {
			logger.Warn("Ignoring config change", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info("Operation policies reloaded", zap.String("file", e.Name), zap.String("op", e.Op.String()))
	})
	viper.WatchConfig()
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (overrides server.host)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "server port (overrides server.port)")
}
